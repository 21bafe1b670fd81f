package connection

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/db"
	"github.com/vantagecrm/courier/internal/events"
	"github.com/vantagecrm/courier/internal/vault"
	"github.com/vantagecrm/courier/pkg/gateway"
)

// ErrMissingCredential is returned by Init when no token was supplied and no
// prior record exists to reuse one from.
var ErrMissingCredential = errors.New("no gateway credential supplied and none stored")

// GatewayClient is the subset of the gateway API the lifecycle operations use.
// Satisfied by *gateway.Client; tests substitute a fake.
type GatewayClient interface {
	CreateInstance(ctx context.Context, instanceName string) (*gateway.CreateInstanceResult, error)
	Connect(ctx context.Context, instanceName string) (string, error)
	ConnectionState(ctx context.Context, instanceName string) (*gateway.State, error)
	Restart(ctx context.Context, instanceName string) error
	Logout(ctx context.Context, instanceName string) error
}

// ClientFactory builds a gateway client for a connection's base URL and
// decrypted credential. Connections carry their own gateway endpoint, so a
// client cannot be constructed ahead of time.
type ClientFactory func(baseURL, credential string) GatewayClient

// storage is the persistence surface the service needs from the Store.
type storage interface {
	GetActive(ctx context.Context, tenantID, operatorID uuid.UUID) (*Connection, error)
	Upsert(ctx context.Context, p UpsertParams) (*Connection, error)
	SetState(ctx context.Context, id uuid.UUID, status string, phone, qrCode *string) (*Connection, error)
	SetStatus(ctx context.Context, id uuid.UUID, status string) (*Connection, error)
	Deactivate(ctx context.Context, id uuid.UUID) (*Connection, error)
}

// Service implements the connection lifecycle operations.
type Service struct {
	store   storage
	vault   *vault.Vault
	events  *events.Writer
	clients ClientFactory
	logger  *slog.Logger
}

// NewService creates a connection Service backed by the given database
// connection.
func NewService(dbtx db.DBTX, v *vault.Vault, ev *events.Writer, clients ClientFactory, logger *slog.Logger) *Service {
	return &Service{
		store:   NewStore(dbtx),
		vault:   v,
		events:  ev,
		clients: clients,
		logger:  logger,
	}
}

// InitRequest carries the provisioning parameters for Init.
type InitRequest struct {
	BaseURL      string `json:"base_url" validate:"required,url"`
	Token        string `json:"token" validate:"omitempty,min=8"`
	InstanceName string `json:"instance_name" validate:"omitempty,min=3,max=64"`
}

// Init provisions (or re-provisions) the gateway instance for the caller. It
// is an idempotent upsert: an existing record in any state short of connected
// is overwritten in place, reusing its stored credential when no new token is
// supplied. A connected record is refused with ErrAlreadyConnected rather
// than silently dropping a live session.
func (s *Service) Init(ctx context.Context, tenantID, operatorID uuid.UUID, actor string, req InitRequest) (Response, error) {
	existing, err := s.store.GetActive(ctx, tenantID, operatorID)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return Response{}, fmt.Errorf("loading connection: %w", err)
	}
	if existing != nil && existing.Status == StatusConnected {
		return Response{}, ErrAlreadyConnected
	}

	baseURL := strings.TrimRight(req.BaseURL, "/")

	token := req.Token
	if token == "" {
		if existing == nil {
			return Response{}, ErrMissingCredential
		}
		token, err = s.vault.Decrypt(existing.Credential)
		if err != nil {
			return Response{}, fmt.Errorf("decrypting stored credential: %w", err)
		}
	}

	instanceName := req.InstanceName
	if instanceName == "" {
		if existing != nil {
			instanceName = existing.InstanceName
		} else {
			instanceName = "courier-" + strings.SplitN(operatorID.String(), "-", 2)[0]
		}
	}

	client := s.clients(baseURL, token)
	created, err := client.CreateInstance(ctx, instanceName)
	if err != nil {
		return Response{}, fmt.Errorf("provisioning gateway instance: %w", err)
	}

	qr := created.QRCode
	if qr == "" {
		// Conflict-tolerated creates carry no QR; fetch one explicitly. The
		// operator can still retry via connect if the gateway is slow here.
		qr, err = client.Connect(ctx, instanceName)
		if err != nil {
			s.logger.Warn("fetching initial QR failed",
				"tenant_id", tenantID, "instance", instanceName, "error", err)
			qr = ""
		}
	}

	blob, err := s.vault.Encrypt(token)
	if err != nil {
		return Response{}, fmt.Errorf("encrypting credential: %w", err)
	}

	conn, err := s.store.Upsert(ctx, UpsertParams{
		TenantID:     tenantID,
		OperatorID:   operatorID,
		BaseURL:      baseURL,
		Credential:   blob,
		InstanceName: instanceName,
		Status:       StatusInitializing,
		QRCode:       strPtr(qr),
	})
	if err != nil {
		return Response{}, fmt.Errorf("persisting connection: %w", err)
	}

	s.appendEvent(tenantID, actor, events.TypeConnectionInit, map[string]any{
		"instance_name": instanceName,
		"base_url":      baseURL,
	})
	return conn.ToResponse(), nil
}

// Connect re-requests a pairing QR from the gateway and moves the connection
// to connecting.
func (s *Service) Connect(ctx context.Context, tenantID, operatorID uuid.UUID, actor string) (Response, error) {
	conn, err := s.store.GetActive(ctx, tenantID, operatorID)
	if err != nil {
		return Response{}, err
	}

	token, err := s.vault.Decrypt(conn.Credential)
	if err != nil {
		return Response{}, fmt.Errorf("decrypting credential: %w", err)
	}

	qr, err := s.clients(conn.BaseURL, token).Connect(ctx, conn.InstanceName)
	if err != nil {
		return Response{}, fmt.Errorf("requesting pairing QR: %w", err)
	}

	updated, err := s.store.SetState(ctx, conn.ID, StatusConnecting, conn.Phone, strPtr(qr))
	if err != nil {
		return Response{}, fmt.Errorf("persisting connection state: %w", err)
	}

	s.appendEvent(tenantID, actor, events.TypeConnectionConnecting, map[string]any{
		"instance_name": conn.InstanceName,
	})
	return updated.ToResponse(), nil
}

// Status reconciles the persisted record against the gateway's live state and
// returns the result. When the gateway is unreachable the last persisted
// state is returned with Stale set, so status always answers.
func (s *Service) Status(ctx context.Context, tenantID, operatorID uuid.UUID) (Response, error) {
	conn, err := s.store.GetActive(ctx, tenantID, operatorID)
	if err != nil {
		return Response{}, err
	}

	token, err := s.vault.Decrypt(conn.Credential)
	if err != nil {
		return Response{}, fmt.Errorf("decrypting credential: %w", err)
	}

	client := s.clients(conn.BaseURL, token)
	live, err := client.ConnectionState(ctx, conn.InstanceName)
	if err != nil {
		s.logger.Warn("gateway state fetch failed, answering from local state",
			"tenant_id", tenantID, "instance", conn.InstanceName, "error", err)
		resp := conn.ToResponse()
		resp.Stale = true
		return resp, nil
	}

	status, phone, qrCode := s.reconcile(ctx, client, conn, live)

	updated, err := s.store.SetState(ctx, conn.ID, status, phone, qrCode)
	if err != nil {
		return Response{}, fmt.Errorf("persisting reconciled state: %w", err)
	}
	return updated.ToResponse(), nil
}

// reconcile maps the gateway's reported state onto the local state machine.
func (s *Service) reconcile(ctx context.Context, client GatewayClient, conn *Connection, live *gateway.State) (status string, phone, qrCode *string) {
	switch live.State {
	case gateway.StateOpen:
		status = StatusConnected
		phone = conn.Phone
		if p := gateway.PhoneFromJID(live.OwnerJID); p != "" {
			phone = &p
		}
		return status, phone, nil
	case gateway.StateConnecting:
		// Session not yet authenticated; keep the QR fresh so the operator
		// can still pair.
		qrCode = conn.QRCode
		if qr, err := client.Connect(ctx, conn.InstanceName); err == nil && qr != "" {
			qrCode = &qr
		}
		return StatusConnecting, conn.Phone, qrCode
	default:
		return StatusDisconnected, nil, nil
	}
}

// Restart asks the gateway to restart the instance in place and moves the
// local record back to initializing. Instance identity and credential are
// preserved.
func (s *Service) Restart(ctx context.Context, tenantID, operatorID uuid.UUID, actor string) (Response, error) {
	conn, err := s.store.GetActive(ctx, tenantID, operatorID)
	if err != nil {
		return Response{}, err
	}

	token, err := s.vault.Decrypt(conn.Credential)
	if err != nil {
		return Response{}, fmt.Errorf("decrypting credential: %w", err)
	}

	if err := s.clients(conn.BaseURL, token).Restart(ctx, conn.InstanceName); err != nil {
		return Response{}, fmt.Errorf("restarting gateway instance: %w", err)
	}

	updated, err := s.store.SetStatus(ctx, conn.ID, StatusInitializing)
	if err != nil {
		return Response{}, fmt.Errorf("persisting connection status: %w", err)
	}

	s.appendEvent(tenantID, actor, events.TypeConnectionRestarted, map[string]any{
		"instance_name": conn.InstanceName,
	})
	return updated.ToResponse(), nil
}

// Disconnect logs the instance out of the gateway and deactivates the local
// record. The local disconnect always happens: a failed logout call is
// logged, never surfaced, because the operator's intent to disconnect must be
// honored regardless of gateway health.
func (s *Service) Disconnect(ctx context.Context, tenantID, operatorID uuid.UUID, actor string) (Response, error) {
	conn, err := s.store.GetActive(ctx, tenantID, operatorID)
	if err != nil {
		return Response{}, err
	}

	if token, err := s.vault.Decrypt(conn.Credential); err != nil {
		s.logger.Error("decrypting credential for logout, skipping gateway call",
			"tenant_id", tenantID, "instance", conn.InstanceName, "error", err)
	} else if err := s.clients(conn.BaseURL, token).Logout(ctx, conn.InstanceName); err != nil {
		s.logger.Warn("gateway logout failed, disconnecting locally anyway",
			"tenant_id", tenantID, "instance", conn.InstanceName, "error", err)
	}

	updated, err := s.store.Deactivate(ctx, conn.ID)
	if err != nil {
		return Response{}, fmt.Errorf("deactivating connection: %w", err)
	}

	s.appendEvent(tenantID, actor, events.TypeConnectionDisconnected, map[string]any{
		"instance_name": conn.InstanceName,
	})
	return updated.ToResponse(), nil
}

func (s *Service) appendEvent(tenantID uuid.UUID, actor, eventType string, payload map[string]any) {
	body, _ := json.Marshal(payload)
	s.events.Append(events.Event{
		TenantID: tenantID,
		Type:     eventType,
		Actor:    actor,
		Payload:  body,
	})
}

// strPtr returns a pointer to s, or nil when s is empty.
func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
