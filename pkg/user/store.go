// Package user is the read-side directory of CRM users, consumed by the auth
// middleware to resolve token subjects into identities.
package user

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vantagecrm/courier/internal/auth"
	"github.com/vantagecrm/courier/internal/db"
)

// Store provides database operations for users.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a user Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const userColumns = `id, external_id, email, display_name, role, tenant_id, is_active, created_at, updated_at`

// Row represents a row from the users table.
type Row struct {
	ID          uuid.UUID
	ExternalID  string
	Email       string
	DisplayName string
	Role        string
	TenantID    uuid.UUID
	IsActive    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Ensure the store satisfies the auth middleware's directory contract.
var _ auth.Directory = (*Store)(nil)

// FindBySubject looks a user up by the external identity-provider subject id.
// Returns auth.ErrUserNotFound when no row matches; deactivation is the
// middleware's call, so inactive rows are returned as-is.
func (s *Store) FindBySubject(ctx context.Context, subject string) (*auth.DirectoryUser, error) {
	query := `SELECT ` + userColumns + ` FROM users WHERE external_id = $1`

	row, err := scanRow(s.dbtx.QueryRow(ctx, query, subject))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, auth.ErrUserNotFound
		}
		return nil, fmt.Errorf("looking up user by subject: %w", err)
	}

	return &auth.DirectoryUser{
		ID:       row.ID,
		Email:    row.Email,
		Role:     row.Role,
		TenantID: row.TenantID,
		Active:   row.IsActive,
	}, nil
}

func scanRow(r pgx.Row) (Row, error) {
	var u Row
	err := r.Scan(
		&u.ID, &u.ExternalID, &u.Email, &u.DisplayName,
		&u.Role, &u.TenantID, &u.IsActive, &u.CreatedAt, &u.UpdatedAt,
	)
	return u, err
}
