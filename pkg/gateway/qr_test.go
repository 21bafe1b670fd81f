package gateway

import (
	"encoding/base64"
	"strings"
	"testing"
)

func TestNormalizeQR(t *testing.T) {
	rawImage := base64.StdEncoding.EncodeToString(make([]byte, 512))

	tests := []struct {
		name    string
		payload string
		want    string
	}{
		{"empty", "", ""},
		{"data URI passthrough", "data:image/png;base64,QUJD", "data:image/png;base64,QUJD"},
		{"raw base64 gets prefix", rawImage, dataURIPrefix + rawImage},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeQR(tt.payload)
			if err != nil {
				t.Fatalf("NormalizeQR() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("NormalizeQR() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestNormalizeQRRendersPairingCode(t *testing.T) {
	got, err := NormalizeQR("2@AbCdEf,GhIjKl,MnOpQr")
	if err != nil {
		t.Fatalf("NormalizeQR() error: %v", err)
	}
	if !strings.HasPrefix(got, dataURIPrefix) {
		t.Fatalf("NormalizeQR() = %q, want a data URI", got[:min(len(got), 40)])
	}

	png, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(got, dataURIPrefix))
	if err != nil {
		t.Fatalf("decoding rendered payload: %v", err)
	}
	if len(png) < 8 || string(png[1:4]) != "PNG" {
		t.Error("rendered payload is not a PNG")
	}
}
