package events

import (
	"time"
)

// Payload types shared between the timer service, the gateway and clients.
// Field names follow the mobile client's camelCase wire format.

// StartTimerPayload is the payload for a startTimer command
type StartTimerPayload struct {
	Minutes                 float64  `json:"minutes"`
	OwnerUsername           string   `json:"ownerUsername"`
	SelectedFriendUsernames []string `json:"selectedFriendUsernames"`
	Destination             string   `json:"destination"`
}

// ExtendTimerPayload is the payload for an extendTimer command
type ExtendTimerPayload struct {
	Minutes       float64 `json:"minutes"`
	OwnerUsername string  `json:"ownerUsername"`
}

// CancelTimerPayload is the payload for a cancelTimer command
type CancelTimerPayload struct {
	OwnerUsername           string   `json:"ownerUsername"`
	SelectedFriendUsernames []string `json:"selectedFriendUsernames"`
	Destination             string   `json:"destination"`
}

// OwnerPayload is the payload for acknowledgeTimer and syncTimer commands
type OwnerPayload struct {
	OwnerUsername string `json:"ownerUsername"`
}

// DeadlinePayload is the payload for timerStarted and timerExtended events.
// EndTime is a pointer so a frame without it can be told apart from the zero time.
type DeadlinePayload struct {
	EndTime *time.Time `json:"endTime"`
}

// TimerStatusPayload answers a syncTimer command
type TimerStatusPayload struct {
	State   string     `json:"state"`
	EndTime *time.Time `json:"endTime,omitempty"`
}

// CommandRejectedPayload tells the client which command the service refused and why
type CommandRejectedPayload struct {
	Command EventType `json:"command"`
	Reason  string    `json:"reason"`
}

// FriendAlertPayload is delivered to every connected watcher of an expired session
type FriendAlertPayload struct {
	AlertID       string    `json:"alertId"`
	OwnerUsername string    `json:"ownerUsername"`
	Destination   string    `json:"destination"`
	ExpiredAt     time.Time `json:"expiredAt"`
}
