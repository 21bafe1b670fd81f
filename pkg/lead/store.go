package lead

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vantagecrm/courier/internal/db"
)

// Store provides database operations for leads.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a lead Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// Get returns a lead by ID, scoped to the tenant.
func (s *Store) Get(ctx context.Context, tenantID, id uuid.UUID) (*Lead, error) {
	query := `SELECT id, tenant_id, name, phone, stage, created_at
	FROM leads WHERE id = $1 AND tenant_id = $2`

	var l Lead
	err := s.dbtx.QueryRow(ctx, query, id, tenantID).Scan(
		&l.ID, &l.TenantID, &l.Name, &l.Phone, &l.Stage, &l.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting lead: %w", err)
	}
	return &l, nil
}
