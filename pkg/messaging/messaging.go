// Package messaging is the outbound message pipeline: rate-limited sends via
// the gateway, persisted as conversation and message records.
package messaging

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// ChannelGateway tags conversations carried over the message gateway.
const ChannelGateway = "gateway"

// Message directions.
const (
	DirectionOutbound = "outbound"
	DirectionInbound  = "inbound"
)

// Pipeline failure modes, in the order the checks run. A send that fails any
// of them performs no writes.
var (
	ErrRateLimited        = errors.New("send rate limit exceeded")
	ErrLeadNotFound       = errors.New("lead not found")
	ErrLeadMissingPhone   = errors.New("lead has no phone number")
	ErrNoActiveConnection = errors.New("no active gateway connection")
	ErrNotConnected       = errors.New("gateway connection is not connected")
	ErrGatewaySend        = errors.New("gateway send failed")
)

// Conversation is one message thread per (lead, channel), created lazily on
// the first outbound send.
type Conversation struct {
	ID            uuid.UUID  `json:"id"`
	TenantID      uuid.UUID  `json:"tenant_id"`
	LeadID        uuid.UUID  `json:"lead_id"`
	Channel       string     `json:"channel"`
	Status        string     `json:"status"`
	LastMessageAt *time.Time `json:"last_message_at,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
}

// Message is one append-only send/receive record.
type Message struct {
	ID             uuid.UUID `json:"id"`
	ConversationID uuid.UUID `json:"conversation_id"`
	Direction      string    `json:"direction"`
	Text           *string   `json:"text,omitempty"`
	MediaURL       *string   `json:"media_url,omitempty"`
	ExternalID     *string   `json:"external_id,omitempty"`
	SenderID       uuid.UUID `json:"sender_id"`
	SentAt         time.Time `json:"sent_at"`
}
