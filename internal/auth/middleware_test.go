package auth

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
)

type fakeDirectory struct {
	users map[string]*DirectoryUser
}

func (d *fakeDirectory) FindBySubject(_ context.Context, subject string) (*DirectoryUser, error) {
	u, ok := d.users[subject]
	if !ok {
		return nil, ErrUserNotFound
	}
	return u, nil
}

func TestMiddleware(t *testing.T) {
	tenantID := uuid.New()
	userID := uuid.New()
	dir := &fakeDirectory{users: map[string]*DirectoryUser{
		"auth0|alice": {ID: userID, Email: "alice@acme.test", Role: RoleManager, TenantID: tenantID, Active: true},
		"auth0|gone":  {ID: uuid.New(), Email: "gone@acme.test", Role: RoleAgent, TenantID: tenantID, Active: false},
	}}

	var gotIdentity *Identity
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotIdentity = FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	})
	handler := Middleware(dir, slog.New(slog.NewTextHandler(io.Discard, nil)))(next)

	t.Run("active user passes with directory role and tenant", func(t *testing.T) {
		gotIdentity = nil
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+makeToken(t, map[string]any{"sub": "auth0|alice", "email": "alice@acme.test"}))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusOK {
			t.Fatalf("status = %d, want %d; body = %s", w.Code, http.StatusOK, w.Body.String())
		}
		if gotIdentity == nil {
			t.Fatal("no identity in context")
		}
		if gotIdentity.Role != RoleManager {
			t.Errorf("Role = %q, want %q", gotIdentity.Role, RoleManager)
		}
		if gotIdentity.TenantID != tenantID {
			t.Errorf("TenantID = %s, want %s", gotIdentity.TenantID, tenantID)
		}
		if gotIdentity.UserID != userID {
			t.Errorf("UserID = %s, want %s", gotIdentity.UserID, userID)
		}
	})

	t.Run("missing token is 401", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("garbage token is 401", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer not.a.token")
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusUnauthorized {
			t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
		}
	})

	t.Run("unknown subject is 404", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+makeToken(t, map[string]any{"sub": "auth0|nobody"}))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})

	t.Run("deactivated user is 404 even with valid token", func(t *testing.T) {
		r := httptest.NewRequest(http.MethodGet, "/", nil)
		r.Header.Set("Authorization", "Bearer "+makeToken(t, map[string]any{"sub": "auth0|gone"}))
		w := httptest.NewRecorder()

		handler.ServeHTTP(w, r)

		if w.Code != http.StatusNotFound {
			t.Errorf("status = %d, want %d", w.Code, http.StatusNotFound)
		}
	})
}
