package tenant

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/httpserver"
)

// Lookup fetches a tenant by ID. Satisfied by *Store; tests substitute a fake.
type Lookup interface {
	Get(ctx context.Context, id uuid.UUID) (*Info, error)
}

// Middleware resolves the tenant from the authenticated identity and stores
// its Info in the request context. Must be mounted after auth.Middleware.
func Middleware(lookup Lookup, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id := auth.FromContext(r.Context())
			if id == nil {
				httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "authentication required")
				return
			}

			info, err := lookup.Get(r.Context(), id.TenantID)
			if err != nil {
				if errors.Is(err, ErrNotFound) {
					logger.Warn("authenticated user references unknown tenant", "tenant_id", id.TenantID)
					httpserver.RespondError(w, http.StatusUnauthorized, "unauthorized", "tenant not found")
					return
				}
				logger.Error("tenant lookup failed", "tenant_id", id.TenantID, "error", err)
				httpserver.RespondError(w, http.StatusInternalServerError, "internal_error", "tenant lookup failed")
				return
			}

			ctx := NewContext(r.Context(), info)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
