package events

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Envelope is the frame exchanged on the push channel in both directions
type Envelope struct {
	ID        string          `json:"id,omitempty"`
	Type      EventType       `json:"type"`
	Timestamp time.Time       `json:"timestamp"`
	Data      json.RawMessage `json:"data,omitempty"`
}

// EventType names a command (client to service) or an event (service to client)
type EventType string

// Commands sent by clients
const (
	CommandStartTimer       EventType = "startTimer"
	CommandExtendTimer      EventType = "extendTimer"
	CommandCancelTimer      EventType = "cancelTimer"
	CommandAcknowledgeTimer EventType = "acknowledgeTimer"
	CommandSyncTimer        EventType = "syncTimer"
)

// Events pushed by the timer service
const (
	EventTimerStarted    EventType = "timerStarted"
	EventTimerExtended   EventType = "timerExtended"
	EventTimerExpired    EventType = "timerExpired"
	EventTimerCancelled  EventType = "timerCancelled"
	EventTimerStatus     EventType = "timerStatus"
	EventCommandRejected EventType = "commandRejected"
	EventFriendAlert     EventType = "friendAlert"
)

// NewEnvelope marshals payload into a new envelope. A nil payload produces a frame without data.
func NewEnvelope(eventType EventType, payload any) (*Envelope, error) {
	env := &Envelope{
		ID:        uuid.New().String(),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
	}
	if payload == nil {
		return env, nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s payload: %w", eventType, err)
	}
	env.Data = data
	return env, nil
}

// Decode unmarshals an envelope from a raw frame
func Decode(frame []byte) (*Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, fmt.Errorf("unmarshal envelope: %w", err)
	}
	if env.Type == "" {
		return nil, fmt.Errorf("envelope has no type")
	}
	return &env, nil
}

// ParsePayload parses envelope data into the payload struct for its type.
// Events without a payload (timerExpired, timerCancelled) and unknown types return nil, nil.
func ParsePayload(env *Envelope) (any, error) {
	switch env.Type {
	case CommandStartTimer:
		return unmarshalPayload[StartTimerPayload](env)
	case CommandExtendTimer:
		return unmarshalPayload[ExtendTimerPayload](env)
	case CommandCancelTimer:
		return unmarshalPayload[CancelTimerPayload](env)
	case CommandAcknowledgeTimer, CommandSyncTimer:
		return unmarshalPayload[OwnerPayload](env)
	case EventTimerStarted, EventTimerExtended:
		return unmarshalPayload[DeadlinePayload](env)
	case EventTimerStatus:
		return unmarshalPayload[TimerStatusPayload](env)
	case EventCommandRejected:
		return unmarshalPayload[CommandRejectedPayload](env)
	case EventFriendAlert:
		return unmarshalPayload[FriendAlertPayload](env)
	default:
		return nil, nil
	}
}

func unmarshalPayload[T any](env *Envelope) (T, error) {
	var payload T
	if len(env.Data) == 0 {
		return payload, fmt.Errorf("%s: missing payload", env.Type)
	}
	if err := json.Unmarshal(env.Data, &payload); err != nil {
		return payload, fmt.Errorf("%s: %w", env.Type, err)
	}
	return payload, nil
}
