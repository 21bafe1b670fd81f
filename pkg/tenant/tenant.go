// Package tenant resolves the authenticated caller's tenant and owns the
// tenant-level webhook configuration.
package tenant

import (
	"context"

	"github.com/google/uuid"
)

// Info holds the resolved tenant metadata for the current request.
type Info struct {
	ID   uuid.UUID
	Name string
	Slug string
}

// WebhookConfig is the tenant's event fan-out configuration. Both fields are
// nullable: webhooks are opt-in per tenant.
type WebhookConfig struct {
	URL    *string
	Secret *string
}

// Enabled reports whether the tenant has a destination URL configured.
func (c WebhookConfig) Enabled() bool {
	return c.URL != nil && *c.URL != ""
}

type contextKey string

const infoKey contextKey = "tenant_info"

// NewContext stores tenant info in the context.
func NewContext(ctx context.Context, info *Info) context.Context {
	return context.WithValue(ctx, infoKey, info)
}

// FromContext extracts the tenant info from the context.
// Returns nil if no tenant is set.
func FromContext(ctx context.Context) *Info {
	v, _ := ctx.Value(infoKey).(*Info)
	return v
}
