// Package events appends entries to the lead_events audit log. Entries are
// append-only facts: never updated, never deleted.
package events

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/db"
)

// Event type tags recorded by this subsystem.
const (
	TypeConnectionInit         = "connection_init"
	TypeConnectionConnecting   = "connection_connecting"
	TypeConnectionRestarted    = "connection_restarted"
	TypeConnectionDisconnected = "connection_disconnected"
	TypeMessageOut             = "message_out"
)

// Event is a single lead_events row to be appended.
type Event struct {
	TenantID uuid.UUID
	LeadID   uuid.UUID // uuid.Nil for tenant-level events (connection lifecycle)
	Type     string
	Actor    string
	Payload  json.RawMessage
}

// Sink persists batches of events. Satisfied by *Store; tests substitute a fake.
type Sink interface {
	InsertBatch(ctx context.Context, events []Event) error
}

// Store writes lead events to the database.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates an event Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// InsertBatch appends all events in one round of inserts.
func (s *Store) InsertBatch(ctx context.Context, evs []Event) error {
	query := `INSERT INTO lead_events (tenant_id, lead_id, event_type, actor, payload, created_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	now := time.Now().UTC()
	for _, e := range evs {
		var leadID any
		if e.LeadID != uuid.Nil {
			leadID = e.LeadID
		}
		if _, err := s.dbtx.Exec(ctx, query, e.TenantID, leadID, e.Type, e.Actor, e.Payload, now); err != nil {
			return fmt.Errorf("inserting lead event %s: %w", e.Type, err)
		}
	}
	return nil
}

// List returns the most recent events for a lead, newest first.
func (s *Store) List(ctx context.Context, tenantID, leadID uuid.UUID, limit int) ([]Row, error) {
	query := `SELECT id, tenant_id, lead_id, event_type, actor, payload, created_at
	FROM lead_events WHERE tenant_id = $1 AND lead_id = $2
	ORDER BY created_at DESC LIMIT $3`

	rows, err := s.dbtx.Query(ctx, query, tenantID, leadID, limit)
	if err != nil {
		return nil, fmt.Errorf("listing lead events: %w", err)
	}
	defer rows.Close()

	var items []Row
	for rows.Next() {
		var r Row
		if err := rows.Scan(&r.ID, &r.TenantID, &r.LeadID, &r.Type, &r.Actor, &r.Payload, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning lead event: %w", err)
		}
		items = append(items, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating lead events: %w", err)
	}
	return items, nil
}

// Row is a persisted lead event.
type Row struct {
	ID        uuid.UUID       `json:"id"`
	TenantID  uuid.UUID       `json:"tenant_id"`
	LeadID    *uuid.UUID      `json:"lead_id"`
	Type      string          `json:"event_type"`
	Actor     string          `json:"actor"`
	Payload   json.RawMessage `json:"payload"`
	CreatedAt time.Time       `json:"created_at"`
}
