package models

import (
	"time"

	"github.com/google/uuid"
)

// AlertStatus records how a check-in session ended
type AlertStatus string

const (
	AlertStatusExpired   AlertStatus = "expired"
	AlertStatusCancelled AlertStatus = "cancelled"
)

// NotifiedStatus tracks delivery to a single watcher
type NotifiedStatus string

const (
	NotifiedStatusPending   NotifiedStatus = "pending"
	NotifiedStatusDelivered NotifiedStatus = "delivered"
	NotifiedStatusSkipped   NotifiedStatus = "skipped"
)

// Alert is the history record of a finished check-in session
type Alert struct {
	ID            uuid.UUID        `json:"id"`
	SessionID     uuid.UUID        `json:"session_id"`
	OwnerUsername string           `json:"owner_username"`
	Destination   string           `json:"destination"`
	StartTime     time.Time        `json:"start_time"`
	EndTime       time.Time        `json:"end_time"`
	TotalTime     time.Duration    `json:"total_time"`
	Status        AlertStatus      `json:"status"`
	Message       string           `json:"message"`
	Recipients    []AlertRecipient `json:"recipients"`
}

// AlertRecipient is a watcher notified about an alert
type AlertRecipient struct {
	ID             uuid.UUID      `json:"id"`
	AlertID        uuid.UUID      `json:"alert_id"`
	FriendUsername string         `json:"friend_username"`
	NotifiedStatus NotifiedStatus `json:"notified_status"`
}
