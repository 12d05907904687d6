package outbox

import (
	"context"
	"fmt"
	"time"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

// UserPublisher delivers an envelope to a user's open connections
type UserPublisher interface {
	PublishToUser(username string, env *events.Envelope)
	IsOnline(username string) bool
}

// DirectPublisher hands friend alerts straight to the in-process gateway.
// It is used when no NATS server is configured; an offline recipient counts as a failed attempt.
type DirectPublisher struct {
	users UserPublisher
}

func NewDirectPublisher(users UserPublisher) *DirectPublisher {
	return &DirectPublisher{users: users}
}

func (p *DirectPublisher) Publish(_ context.Context, event OutboxEvent) error {
	if events.EventType(event.EventType) != events.EventFriendAlert {
		return fmt.Errorf("unknown event type: %s", event.EventType)
	}
	if !p.users.IsOnline(event.Recipient) {
		return fmt.Errorf("recipient %s is not connected", event.Recipient)
	}

	p.users.PublishToUser(event.Recipient, &events.Envelope{
		ID:        event.ID.String(),
		Type:      events.EventFriendAlert,
		Timestamp: time.Now().UTC(),
		Data:      event.Payload,
	})
	return nil
}
