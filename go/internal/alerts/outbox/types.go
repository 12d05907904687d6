package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// ErrEventNotFound is returned for outbox rows that are unknown or already settled
var ErrEventNotFound = errors.New("outbox event not found or already sent")

// OutboxEvent is one queued friendAlert for a single recipient
type OutboxEvent struct {
	ID          uuid.UUID             `json:"id"`
	AlertID     uuid.UUID             `json:"alert_id"`
	RecipientID uuid.UUID             `json:"recipient_id"`
	Recipient   string                `json:"recipient"`
	EventType   string                `json:"event_type"`
	Payload     json.RawMessage       `json:"payload"`
	Metadata    pqtype.NullRawMessage `json:"metadata"`
	Attempts    int                   `json:"attempts"`
	CreatedAt   time.Time             `json:"created_at"`
}

// Metadata is the decoded form of the outbox metadata column
type Metadata struct {
	SessionID     string `json:"sessionId"`
	OwnerUsername string `json:"ownerUsername"`
}

// Publisher hands an outbox event to the delivery transport
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}

// Store is the outbox persistence the relay depends on
type Store interface {
	FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error)
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	// MarkDelivered sets sent_at and flips the recipient to delivered
	MarkDelivered(ctx context.Context, event OutboxEvent) error
	// RecordFailure bumps the attempt count. A final failure settles the row and skips the recipient.
	RecordFailure(ctx context.Context, event OutboxEvent, cause error, final bool) error
}
