package events

import (
	"encoding/json"
	"time"
)

// AlertMessage is the JetStream body the alert outbox relay publishes and the gateway consumes
type AlertMessage struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	AlertID   string          `json:"alertId"`
	Recipient string          `json:"recipient"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}
