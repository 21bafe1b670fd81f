package connection

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/vantagecrm/courier/internal/db"
)

// Store provides database operations for gateway connections.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a connection Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

// connectionColumns is the shared column list for connection queries.
const connectionColumns = `id, tenant_id, operator_id, base_url, credential, instance_name,
	status, phone, qr_code, last_sync_at, active, created_at, updated_at`

func scanConnection(row pgx.Row) (*Connection, error) {
	var c Connection
	err := row.Scan(
		&c.ID, &c.TenantID, &c.OperatorID, &c.BaseURL, &c.Credential,
		&c.InstanceName, &c.Status, &c.Phone, &c.QRCode, &c.LastSyncAt,
		&c.Active, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scanning connection row: %w", err)
	}
	return &c, nil
}

// GetActive returns the tenant's active connection for the given operator.
// The partial unique index on (tenant_id, operator_id) WHERE active
// guarantees at most one row.
func (s *Store) GetActive(ctx context.Context, tenantID, operatorID uuid.UUID) (*Connection, error) {
	query := `SELECT ` + connectionColumns + `
	FROM gateway_connections
	WHERE tenant_id = $1 AND operator_id = $2 AND active`
	return scanConnection(s.dbtx.QueryRow(ctx, query, tenantID, operatorID))
}

// GetActiveForTenant returns any active connection for the tenant, regardless
// of operator. Used by the send pipeline, which runs under whichever agent
// triggered the send.
func (s *Store) GetActiveForTenant(ctx context.Context, tenantID uuid.UUID) (*Connection, error) {
	query := `SELECT ` + connectionColumns + `
	FROM gateway_connections
	WHERE tenant_id = $1 AND active
	ORDER BY updated_at DESC
	LIMIT 1`
	return scanConnection(s.dbtx.QueryRow(ctx, query, tenantID))
}

// UpsertParams holds the provisioning result persisted by Init.
type UpsertParams struct {
	TenantID     uuid.UUID
	OperatorID   uuid.UUID
	BaseURL      string
	Credential   []byte
	InstanceName string
	Status       string
	QRCode       *string
}

// Upsert creates the active connection for (tenant, operator) or overwrites
// the existing one in place. Phone is cleared: a re-provisioned instance has
// no session yet.
func (s *Store) Upsert(ctx context.Context, p UpsertParams) (*Connection, error) {
	query := `INSERT INTO gateway_connections (
		tenant_id, operator_id, base_url, credential, instance_name, status, qr_code, active
	) VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE)
	ON CONFLICT (tenant_id, operator_id) WHERE active DO UPDATE SET
		base_url = EXCLUDED.base_url,
		credential = EXCLUDED.credential,
		instance_name = EXCLUDED.instance_name,
		status = EXCLUDED.status,
		qr_code = EXCLUDED.qr_code,
		phone = NULL,
		updated_at = now()
	RETURNING ` + connectionColumns
	return scanConnection(s.dbtx.QueryRow(ctx, query,
		p.TenantID, p.OperatorID, p.BaseURL, p.Credential, p.InstanceName, p.Status, p.QRCode,
	))
}

// SetState persists a reconciled lifecycle state. Phone and QR are written
// as given (nil clears them); last_sync_at is stamped on every call.
func (s *Store) SetState(ctx context.Context, id uuid.UUID, status string, phone, qrCode *string) (*Connection, error) {
	query := `UPDATE gateway_connections SET
		status = $2, phone = $3, qr_code = $4, last_sync_at = now(), updated_at = now()
	WHERE id = $1
	RETURNING ` + connectionColumns
	return scanConnection(s.dbtx.QueryRow(ctx, query, id, status, phone, qrCode))
}

// SetStatus updates only the lifecycle status, leaving phone and QR as-is.
func (s *Store) SetStatus(ctx context.Context, id uuid.UUID, status string) (*Connection, error) {
	query := `UPDATE gateway_connections SET status = $2, updated_at = now()
	WHERE id = $1
	RETURNING ` + connectionColumns
	return scanConnection(s.dbtx.QueryRow(ctx, query, id, status))
}

// Deactivate soft-deletes the connection: status disconnected, phone and QR
// cleared, active flag dropped. The row is kept for audit history.
func (s *Store) Deactivate(ctx context.Context, id uuid.UUID) (*Connection, error) {
	query := `UPDATE gateway_connections SET
		status = $2, phone = NULL, qr_code = NULL, active = FALSE, updated_at = now()
	WHERE id = $1
	RETURNING ` + connectionColumns
	return scanConnection(s.dbtx.QueryRow(ctx, query, id, StatusDisconnected))
}
