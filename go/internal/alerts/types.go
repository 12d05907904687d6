package alerts

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

const (
	DefaultHistoryLimit = 20
	MaxHistoryLimit     = 100
)

var ErrInvalidLimit = errors.New("limit must be a positive integer")

// OutboxRecord is one friendAlert queued for a single watcher
type OutboxRecord struct {
	ID          uuid.UUID
	AlertID     uuid.UUID
	RecipientID uuid.UUID
	Recipient   string
	EventType   string
	Payload     json.RawMessage
	Metadata    json.RawMessage
}

// OutboxMetadata travels with each outbox row for tracing
type OutboxMetadata struct {
	SessionID     string `json:"sessionId"`
	OwnerUsername string `json:"ownerUsername"`
}

// HistoryResponse is the body of GET /api/history
type HistoryResponse struct {
	Alerts []AlertView `json:"alerts"`
}

// AlertView is the API shape of a finished session
type AlertView struct {
	ID           uuid.UUID       `json:"id"`
	Destination  string          `json:"destination"`
	StartTime    time.Time       `json:"start_time"`
	EndTime      time.Time       `json:"end_time"`
	TotalSeconds int             `json:"total_seconds"`
	Status       string          `json:"status"`
	Message      string          `json:"message"`
	Recipients   []RecipientView `json:"recipients"`
}

// RecipientView is a watcher and the delivery state of their alert
type RecipientView struct {
	Username string `json:"username"`
	Status   string `json:"status"`
}
