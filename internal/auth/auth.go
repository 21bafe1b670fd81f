// Package auth authenticates inbound requests from bearer tokens and guards
// routes by role.
//
// Architectural note: the bearer token signature and expiry are verified by
// the identity provider integration at the transport edge (API gateway /
// reverse proxy). This layer only extracts claims and resolves the caller
// against the user directory. Do not add in-process signature verification
// here, and do not remove the directory lookup — a deactivated account must
// not pass with a structurally valid token.
package auth

import (
	"context"

	"github.com/google/uuid"
)

// Roles supported by the CRM, in descending privilege order.
const (
	RoleOwner   = "owner"
	RoleAdmin   = "admin"
	RoleManager = "manager"
	RoleAgent   = "agent"
)

// ValidRoles lists all known roles.
var ValidRoles = []string{RoleOwner, RoleAdmin, RoleManager, RoleAgent}

// IsValidRole reports whether role is one of the Role* constants.
func IsValidRole(role string) bool {
	for _, r := range ValidRoles {
		if r == role {
			return true
		}
	}
	return false
}

// Identity represents the authenticated caller for the current request.
type Identity struct {
	UserID   uuid.UUID // directory row id
	Subject  string    // token subject (external identity provider id)
	Email    string
	Role     string // one of the Role* constants
	TenantID uuid.UUID
	Active   bool
}

type contextKey string

const identityKey contextKey = "auth_identity"

// NewContext stores the identity in the context.
func NewContext(ctx context.Context, id *Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext extracts the identity from the context. Returns nil if the
// request was not authenticated.
func FromContext(ctx context.Context) *Identity {
	v, _ := ctx.Value(identityKey).(*Identity)
	return v
}
