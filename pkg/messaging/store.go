package messaging

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/vantagecrm/courier/internal/db"
)

// Store provides database operations for conversations and messages.
type Store struct {
	dbtx db.DBTX
}

// NewStore creates a messaging Store backed by the given database connection.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{dbtx: dbtx}
}

const conversationColumns = `id, tenant_id, lead_id, channel, status, last_message_at, created_at`

// FindOrCreateConversation returns the conversation for (lead, channel),
// creating it on first use. The unique index on (lead_id, channel) makes the
// upsert race-free.
func (s *Store) FindOrCreateConversation(ctx context.Context, tenantID, leadID uuid.UUID, channel string) (*Conversation, error) {
	query := `INSERT INTO conversations (tenant_id, lead_id, channel, status)
	VALUES ($1, $2, $3, 'open')
	ON CONFLICT (lead_id, channel) DO UPDATE SET lead_id = EXCLUDED.lead_id
	RETURNING ` + conversationColumns

	var c Conversation
	err := s.dbtx.QueryRow(ctx, query, tenantID, leadID, channel).Scan(
		&c.ID, &c.TenantID, &c.LeadID, &c.Channel, &c.Status, &c.LastMessageAt, &c.CreatedAt,
	)
	if err != nil {
		return nil, fmt.Errorf("finding or creating conversation: %w", err)
	}
	return &c, nil
}

// InsertMessageParams holds the fields for a message row.
type InsertMessageParams struct {
	ConversationID uuid.UUID
	Direction      string
	Text           *string
	MediaURL       *string
	ExternalID     *string
	SenderID       uuid.UUID
}

// InsertMessage appends one message record.
func (s *Store) InsertMessage(ctx context.Context, p InsertMessageParams) (*Message, error) {
	query := `INSERT INTO messages (conversation_id, direction, text, media_url, external_id, sender_id)
	VALUES ($1, $2, $3, $4, $5, $6)
	RETURNING id, conversation_id, direction, text, media_url, external_id, sender_id, sent_at`

	var m Message
	err := s.dbtx.QueryRow(ctx, query,
		p.ConversationID, p.Direction, p.Text, p.MediaURL, p.ExternalID, p.SenderID,
	).Scan(
		&m.ID, &m.ConversationID, &m.Direction, &m.Text, &m.MediaURL,
		&m.ExternalID, &m.SenderID, &m.SentAt,
	)
	if err != nil {
		return nil, fmt.Errorf("inserting message: %w", err)
	}
	return &m, nil
}

// TouchConversation stamps the conversation's last-message timestamp and
// reopens it. Called only after the message row is safely in.
func (s *Store) TouchConversation(ctx context.Context, id uuid.UUID, at time.Time) error {
	query := `UPDATE conversations SET last_message_at = $2, status = 'open', updated_at = now()
	WHERE id = $1`

	if _, err := s.dbtx.Exec(ctx, query, id, at); err != nil {
		return fmt.Errorf("touching conversation: %w", err)
	}
	return nil
}
