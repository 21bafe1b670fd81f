package auth

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"
)

// DirectoryUser is the directory row the middleware resolves a token subject
// against.
type DirectoryUser struct {
	ID       uuid.UUID
	Email    string
	Role     string
	TenantID uuid.UUID
	Active   bool
}

// ErrUserNotFound is returned by Directory implementations when no row
// matches the subject.
var ErrUserNotFound = errors.New("user not found")

// Directory looks up users by the external subject id carried in the token.
type Directory interface {
	FindBySubject(ctx context.Context, subject string) (*DirectoryUser, error)
}

// Middleware returns an HTTP middleware that authenticates the caller from
// the Authorization header and stores the resulting Identity in the request
// context.
//
// Rejections:
//   - missing/unparseable token      → 401 unauthorized
//   - unknown or deactivated subject → 404 user_not_found
func Middleware(directory Directory, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims, err := ExtractClaims(r.Header.Get("Authorization"))
			if err != nil {
				if !errors.Is(err, ErrNoToken) {
					logger.Warn("rejecting malformed bearer token", "error", err)
				}
				respondErr(w, http.StatusUnauthorized, "unauthorized", "missing or invalid bearer token")
				return
			}

			u, err := directory.FindBySubject(r.Context(), claims.Subject)
			if err != nil {
				if errors.Is(err, ErrUserNotFound) {
					respondErr(w, http.StatusNotFound, "user_not_found", "user not found")
					return
				}
				logger.Error("user directory lookup failed", "sub", claims.Subject, "error", err)
				respondErr(w, http.StatusInternalServerError, "internal_error", "user lookup failed")
				return
			}
			if !u.Active {
				// A deactivated account never passes, token validity aside.
				respondErr(w, http.StatusNotFound, "user_not_found", "user is deactivated")
				return
			}

			identity := &Identity{
				UserID:   u.ID,
				Subject:  claims.Subject,
				Email:    u.Email,
				Role:     u.Role,
				TenantID: u.TenantID,
				Active:   u.Active,
			}

			logger.Debug("authenticated",
				"sub", claims.Subject,
				"tenant_id", u.TenantID,
				"role", u.Role,
			)

			ctx := NewContext(r.Context(), identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireAuth rejects requests that have no authenticated identity.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if FromContext(r.Context()) == nil {
			respondErr(w, http.StatusUnauthorized, "unauthorized", "authentication required")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func respondErr(w http.ResponseWriter, status int, errStr, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":   errStr,
		"message": message,
	})
}
