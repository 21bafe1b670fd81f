// Package lead is the read-side store for prospective-customer records that
// conversations and messages attach to.
package lead

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no lead matches within the tenant.
var ErrNotFound = errors.New("lead not found")

// Lead is the subset of the CRM lead row this subsystem reads.
type Lead struct {
	ID        uuid.UUID `json:"id"`
	TenantID  uuid.UUID `json:"tenant_id"`
	Name      string    `json:"name"`
	Phone     *string   `json:"phone"`
	Stage     string    `json:"stage"`
	CreatedAt time.Time `json:"created_at"`
}
