// Package connection owns the per-(tenant, operator) gateway connection
// record and its lifecycle state machine.
package connection

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Connection lifecycle statuses. Transitions move forward through
// not_configured → initializing → connecting → connected, but the gateway can
// drop a session at any time, so any status may fall back to disconnected. No
// status is terminal: disconnected and not_configured both permit re-init.
const (
	StatusNotConfigured = "not_configured"
	StatusInitializing  = "initializing"
	StatusConnecting    = "connecting"
	StatusConnected     = "connected"
	StatusDisconnected  = "disconnected"
)

var (
	// ErrNotFound is returned when the tenant has no active connection record.
	ErrNotFound = errors.New("connection not found")

	// ErrAlreadyConnected is returned by Init when the active connection is
	// already connected; re-provisioning a live session would drop it.
	ErrAlreadyConnected = errors.New("connection already connected")
)

// Connection is one gateway connection record. Credential is the encrypted
// blob from the vault; it never leaves the package in plaintext.
type Connection struct {
	ID           uuid.UUID
	TenantID     uuid.UUID
	OperatorID   uuid.UUID
	BaseURL      string
	Credential   []byte
	InstanceName string
	Status       string
	Phone        *string
	QRCode       *string
	LastSyncAt   *time.Time
	Active       bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Response is the API representation of a connection. The credential is
// deliberately absent: no operation ever returns the raw token.
type Response struct {
	ID           uuid.UUID  `json:"id"`
	InstanceName string     `json:"instance_name"`
	BaseURL      string     `json:"base_url"`
	Status       string     `json:"status"`
	Phone        *string    `json:"phone,omitempty"`
	QRCode       *string    `json:"qr_code_url,omitempty"`
	LastSyncAt   *time.Time `json:"last_sync_at,omitempty"`
	Stale        bool       `json:"stale,omitempty"`
}

// ToResponse converts a connection row to its API shape.
func (c *Connection) ToResponse() Response {
	return Response{
		ID:           c.ID,
		InstanceName: c.InstanceName,
		BaseURL:      c.BaseURL,
		Status:       c.Status,
		Phone:        c.Phone,
		QRCode:       c.QRCode,
		LastSyncAt:   c.LastSyncAt,
	}
}
