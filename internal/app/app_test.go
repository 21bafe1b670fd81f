package app

import (
	"context"
	"strings"
	"testing"

	"github.com/vantagecrm/courier/internal/config"
)

func TestValidMode(t *testing.T) {
	tests := []struct {
		mode string
		want bool
	}{
		{mode: "api", want: true},
		{mode: "migrate", want: true},
		{mode: "worker", want: false},
		{mode: "", want: false},
		{mode: "API", want: false},
	}

	for _, tt := range tests {
		t.Run("mode "+tt.mode, func(t *testing.T) {
			if got := validMode(tt.mode); got != tt.want {
				t.Errorf("validMode(%q) = %v, want %v", tt.mode, got, tt.want)
			}
		})
	}
}

func TestRunRejectsUnknownMode(t *testing.T) {
	cfg := &config.Config{Mode: "worker", LogLevel: "error", LogFormat: "text"}

	err := Run(context.Background(), cfg)
	if err == nil || !strings.Contains(err.Error(), "unknown mode") {
		t.Fatalf("expected unknown mode error, got %v", err)
	}
}
