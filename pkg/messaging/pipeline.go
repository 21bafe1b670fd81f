package messaging

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/db"
	"github.com/vantagecrm/courier/internal/events"
	"github.com/vantagecrm/courier/internal/telemetry"
	"github.com/vantagecrm/courier/internal/vault"
	"github.com/vantagecrm/courier/pkg/connection"
	"github.com/vantagecrm/courier/pkg/gateway"
	"github.com/vantagecrm/courier/pkg/lead"
)

// Sender is the gateway send surface. Satisfied by *gateway.Client.
type Sender interface {
	SendText(ctx context.Context, instanceName, number, text string) (*gateway.SendResult, error)
	SendMedia(ctx context.Context, instanceName, number, mediaURL, caption string) (*gateway.SendResult, error)
}

// SenderFactory builds a Sender for a connection's base URL and decrypted
// credential.
type SenderFactory func(baseURL, credential string) Sender

// Dispatcher fans the sent-message event out to the tenant's webhook.
// Satisfied by *webhook.Dispatcher.
type Dispatcher interface {
	Dispatch(tenantID uuid.UUID, event string, data any, extra map[string]any)
}

// leadSource resolves leads. Satisfied by *lead.Store.
type leadSource interface {
	Get(ctx context.Context, tenantID, id uuid.UUID) (*lead.Lead, error)
}

// connectionSource resolves the tenant's active connection. Satisfied by
// *connection.Store.
type connectionSource interface {
	GetActiveForTenant(ctx context.Context, tenantID uuid.UUID) (*connection.Connection, error)
}

// storage is the persistence surface the pipeline needs from the Store.
type storage interface {
	FindOrCreateConversation(ctx context.Context, tenantID, leadID uuid.UUID, channel string) (*Conversation, error)
	InsertMessage(ctx context.Context, p InsertMessageParams) (*Message, error)
	TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error
}

// Pipeline implements the outbound send path.
type Pipeline struct {
	store       storage
	leads       leadSource
	connections connectionSource
	limiter     RateLimiter
	vault       *vault.Vault
	senders     SenderFactory
	dispatcher  Dispatcher
	events      *events.Writer
	logger      *slog.Logger
}

// NewPipeline creates the outbound message Pipeline backed by the given
// database connection.
func NewPipeline(
	dbtx db.DBTX,
	limiter RateLimiter,
	v *vault.Vault,
	senders SenderFactory,
	dispatcher Dispatcher,
	ev *events.Writer,
	logger *slog.Logger,
) *Pipeline {
	return &Pipeline{
		store:       NewStore(dbtx),
		leads:       lead.NewStore(dbtx),
		connections: connection.NewStore(dbtx),
		limiter:     limiter,
		vault:       v,
		senders:     senders,
		dispatcher:  dispatcher,
		events:      ev,
		logger:      logger,
	}
}

// SendRequest carries one outbound message. At least one of text/media_url
// is required.
type SendRequest struct {
	LeadID   string `json:"lead_id" validate:"required,uuid"`
	Text     string `json:"text" validate:"required_without=MediaURL,max=4096"`
	MediaURL string `json:"media_url" validate:"omitempty,url"`
}

// SendOutcome bundles everything a successful send produced: the stored
// message, the lead and conversation it belongs to, and the gateway's raw
// reply body.
type SendOutcome struct {
	Message         *Message        `json:"message"`
	Lead            *lead.Lead      `json:"lead"`
	Conversation    *Conversation   `json:"conversation"`
	GatewayResponse json.RawMessage `json:"gateway_response,omitempty"`
}

// Send pushes one message through the pipeline: rate limit, lead and
// connection resolution, gateway send, then persistence. Nothing is written
// until the gateway has accepted the message, and the message row is written
// before the conversation is touched, so a "sent" message always has a
// stored record.
func (p *Pipeline) Send(ctx context.Context, tenantID, senderID uuid.UUID, actor string, req SendRequest) (*SendOutcome, error) {
	allowed, err := p.limiter.Allow(ctx, tenantID)
	if err != nil {
		return nil, fmt.Errorf("checking rate limit: %w", err)
	}
	if !allowed {
		telemetry.RateLimitedTotal.WithLabelValues(tenantID.String()).Inc()
		return nil, ErrRateLimited
	}

	leadID, err := uuid.Parse(req.LeadID)
	if err != nil {
		return nil, ErrLeadNotFound
	}
	ld, err := p.leads.Get(ctx, tenantID, leadID)
	if err != nil {
		if errors.Is(err, lead.ErrNotFound) {
			return nil, ErrLeadNotFound
		}
		return nil, fmt.Errorf("resolving lead: %w", err)
	}
	if ld.Phone == nil || *ld.Phone == "" {
		return nil, ErrLeadMissingPhone
	}

	conn, err := p.connections.GetActiveForTenant(ctx, tenantID)
	if err != nil {
		if errors.Is(err, connection.ErrNotFound) {
			return nil, ErrNoActiveConnection
		}
		return nil, fmt.Errorf("resolving connection: %w", err)
	}
	if conn.Status != connection.StatusConnected {
		return nil, ErrNotConnected
	}

	token, err := p.vault.Decrypt(conn.Credential)
	if err != nil {
		return nil, fmt.Errorf("decrypting credential: %w", err)
	}

	sender := p.senders(conn.BaseURL, token)
	var result *gateway.SendResult
	if req.MediaURL != "" {
		result, err = sender.SendMedia(ctx, conn.InstanceName, *ld.Phone, req.MediaURL, req.Text)
	} else {
		result, err = sender.SendText(ctx, conn.InstanceName, *ld.Phone, req.Text)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrGatewaySend, err)
	}

	conv, err := p.store.FindOrCreateConversation(ctx, tenantID, ld.ID, ChannelGateway)
	if err != nil {
		return nil, err
	}

	msg, err := p.store.InsertMessage(ctx, InsertMessageParams{
		ConversationID: conv.ID,
		Direction:      DirectionOutbound,
		Text:           optStr(req.Text),
		MediaURL:       optStr(req.MediaURL),
		ExternalID:     optStr(result.MessageID),
		SenderID:       senderID,
	})
	if err != nil {
		return nil, err
	}

	if err := p.store.TouchConversation(ctx, conv.ID, msg.SentAt); err != nil {
		// The message is already persisted; a stale conversation timestamp
		// is not worth failing the send over.
		p.logger.Warn("updating conversation after send", "error", err, "conversation_id", conv.ID)
	} else {
		conv.LastMessageAt = &msg.SentAt
		conv.Status = "open"
	}

	telemetry.MessagesSentTotal.WithLabelValues(tenantID.String()).Inc()

	payload, _ := json.Marshal(map[string]any{
		"message_id":  msg.ID,
		"external_id": result.MessageID,
		"channel":     ChannelGateway,
	})
	p.events.Append(events.Event{
		TenantID: tenantID,
		LeadID:   ld.ID,
		Type:     events.TypeMessageOut,
		Actor:    actor,
		Payload:  payload,
	})

	p.dispatcher.Dispatch(tenantID, "message_sent", msg, map[string]any{
		"lead_id":   ld.ID.String(),
		"lead_name": ld.Name,
	})

	return &SendOutcome{
		Message:         msg,
		Lead:            ld,
		Conversation:    conv,
		GatewayResponse: result.Raw,
	}, nil
}

func optStr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
