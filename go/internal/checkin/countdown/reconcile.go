package countdown

import (
	"math"
	"time"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

// State is the client's view of a check-in session
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateExpired State = "expired"
)

// Projection is the locally displayed estimate of the server's session.
// Remaining is nil whenever State is not StateRunning.
type Projection struct {
	State     State
	Remaining *int
}

// Reconcile applies an authoritative event to a local estimate.
// The event always wins: a valid event replaces the estimate outright, whatever
// local ticking or optimistic extension produced it. The second result is false
// when env is nil, not a timer event, or malformed; local is returned unchanged.
func Reconcile(local Projection, env *events.Envelope, now time.Time) (Projection, bool) {
	if env == nil {
		return local, false
	}

	switch env.Type {
	case events.EventTimerExpired:
		return Projection{State: StateExpired}, true

	case events.EventTimerCancelled:
		return Projection{State: StateIdle}, true

	case events.EventTimerStarted, events.EventTimerExtended:
		payload, err := events.ParsePayload(env)
		if err != nil {
			return local, false
		}
		p, ok := payload.(events.DeadlinePayload)
		if !ok || p.EndTime == nil {
			return local, false
		}
		return running(secondsUntil(*p.EndTime, now)), true

	case events.EventTimerStatus:
		payload, err := events.ParsePayload(env)
		if err != nil {
			return local, false
		}
		p, ok := payload.(events.TimerStatusPayload)
		if !ok {
			return local, false
		}
		switch State(p.State) {
		case StateRunning:
			if p.EndTime == nil {
				return local, false
			}
			return running(secondsUntil(*p.EndTime, now)), true
		case StateExpired:
			return Projection{State: StateExpired}, true
		case StateIdle:
			return Projection{State: StateIdle}, true
		}
		return local, false

	default:
		return local, false
	}
}

func running(seconds int) Projection {
	return Projection{State: StateRunning, Remaining: &seconds}
}

// secondsUntil rounds to the nearest second and never goes below zero
func secondsUntil(end, now time.Time) int {
	secs := math.Round(float64(end.Sub(now)) / float64(time.Second))
	if secs < 0 {
		return 0
	}
	return int(secs)
}

func secondsFromMinutes(minutes float64) int {
	return int(math.Round(minutes * 60))
}
