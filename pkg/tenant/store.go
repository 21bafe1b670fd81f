package tenant

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vantagecrm/courier/internal/db"
)

// ErrNotFound is returned when no tenant row matches.
var ErrNotFound = errors.New("tenant not found")

// Store provides database operations for tenants.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a tenant Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// Get returns a tenant by ID.
func (s *Store) Get(ctx context.Context, id uuid.UUID) (*Info, error) {
	query := `SELECT id, name, slug FROM tenants WHERE id = $1`

	var t Info
	err := s.dbtx.QueryRow(ctx, query, id).Scan(&t.ID, &t.Name, &t.Slug)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting tenant: %w", err)
	}
	return &t, nil
}

// GetWebhookConfig returns the tenant's webhook destination and signing
// secret. A tenant with webhooks disabled has both columns NULL.
func (s *Store) GetWebhookConfig(ctx context.Context, id uuid.UUID) (*WebhookConfig, error) {
	query := `SELECT webhook_url, webhook_secret FROM tenants WHERE id = $1`

	var cfg WebhookConfig
	err := s.dbtx.QueryRow(ctx, query, id).Scan(&cfg.URL, &cfg.Secret)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("getting webhook config: %w", err)
	}
	return &cfg, nil
}

// UpdateWebhookConfig replaces the tenant's webhook destination and secret.
// Passing nils disables webhooks for the tenant.
func (s *Store) UpdateWebhookConfig(ctx context.Context, id uuid.UUID, cfg WebhookConfig) error {
	query := `UPDATE tenants SET webhook_url = $2, webhook_secret = $3, updated_at = now() WHERE id = $1`

	tag, err := s.dbtx.Exec(ctx, query, id, cfg.URL, cfg.Secret)
	if err != nil {
		return fmt.Errorf("updating webhook config: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
