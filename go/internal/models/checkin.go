package models

import (
	"time"

	"github.com/google/uuid"
)

// CheckInState is the lifecycle state of a check-in session
type CheckInState string

const (
	CheckInStateIdle    CheckInState = "idle"
	CheckInStateRunning CheckInState = "running"
	CheckInStateExpired CheckInState = "expired"
)

// CheckInSession is one user's safety timer. Deadline is set only while Running.
type CheckInSession struct {
	ID              uuid.UUID    `json:"id"`
	Owner           string       `json:"owner"`
	Destination     string       `json:"destination"`
	Watchers        []string     `json:"watchers"`
	DurationSeconds int          `json:"duration_seconds"`
	StartedAt       time.Time    `json:"started_at"`
	Deadline        *time.Time   `json:"deadline,omitempty"`
	State           CheckInState `json:"state"`
	Extensions      int          `json:"extensions"`
}
