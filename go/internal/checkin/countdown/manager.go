package countdown

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

const (
	// TickInterval is how often the displayed countdown is decremented locally
	TickInterval = time.Second
	// MaxMinutes bounds a single start or extension
	MaxMinutes = 7 * 24 * 60
)

// Channel is the push channel to the timer service
type Channel interface {
	Connected() bool
	Emit(eventType events.EventType, payload any) error
}

// Snapshot is what a display layer renders
type Snapshot struct {
	State            State
	RemainingSeconds *int
	// Stale is set after a disconnect until the next authoritative event arrives
	Stale bool
}

// StartRequest carries the arguments of a new check-in
type StartRequest struct {
	Minutes     float64
	Watchers    []string
	Destination string
	Owner       string
}

// CancelRequest carries the arguments of a cancellation
type CancelRequest struct {
	Owner       string
	Watchers    []string
	Destination string
}

// Manager keeps a local countdown in step with the server-authoritative session.
//
// The manager never decides that a session has expired. Local ticking only
// smooths the display between authoritative events; every state change of
// consequence comes from HandleEvent.
type Manager struct {
	channel Channel
	clock   clockwork.Clock

	mu      sync.Mutex
	current Projection
	stale   bool
	owner   string

	observers      []func(Snapshot)
	alertObservers []func(events.FriendAlertPayload)
}

// NewManager creates a manager bound to a push channel. A nil clock uses the real clock.
func NewManager(channel Channel, clock clockwork.Clock) *Manager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Manager{
		channel: channel,
		clock:   clock,
		current: Projection{State: StateIdle},
	}
}

// OnChange registers fn to be called with a snapshot after every change.
// Observers run on the goroutine that caused the change, outside the manager's lock.
func (m *Manager) OnChange(fn func(Snapshot)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, fn)
}

// OnFriendAlert registers fn to be called when a friend's check-in expires
func (m *Manager) OnFriendAlert(fn func(events.FriendAlertPayload)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.alertObservers = append(m.alertObservers, fn)
}

// Snapshot returns the current projection
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

// Start begins a check-in. Invalid arguments return a *ValidationError and a
// disconnected channel returns ErrNotConnected; neither changes any state.
func (m *Manager) Start(req StartRequest) error {
	watchers := uniqueNonEmpty(req.Watchers)
	destination := strings.TrimSpace(req.Destination)

	switch {
	case destination == "":
		return invalid("destination", "please enter a destination")
	case !validMinutes(req.Minutes):
		return invalid("minutes", "please enter a valid duration in minutes")
	case len(watchers) == 0:
		return invalid("watchers", "select at least one friend to notify")
	case strings.TrimSpace(req.Owner) == "":
		return invalid("owner", "no logged-in username found")
	}

	m.mu.Lock()
	if !m.channel.Connected() {
		m.mu.Unlock()
		log.Warn().Str("owner", req.Owner).Msg("push channel not connected; cannot start timer")
		return ErrNotConnected
	}

	err := m.channel.Emit(events.CommandStartTimer, events.StartTimerPayload{
		Minutes:                 req.Minutes,
		OwnerUsername:           req.Owner,
		SelectedFriendUsernames: watchers,
		Destination:             destination,
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	m.current = running(secondsFromMinutes(req.Minutes))
	m.stale = false
	m.owner = req.Owner
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Info().
		Str("owner", req.Owner).
		Str("destination", destination).
		Int("watchers", len(watchers)).
		Float64("minutes", req.Minutes).
		Msg("check-in timer started")

	m.notify(snap)
	return nil
}

// Extend optimistically adds minutes to the displayed countdown and asks the
// service to push the deadline forward. The next timerExtended event overwrites
// the optimistic value.
func (m *Manager) Extend(minutes float64, owner string) error {
	if !validMinutes(minutes) {
		return invalid("minutes", "please enter a valid extension in minutes")
	}
	if strings.TrimSpace(owner) == "" {
		return invalid("owner", "no logged-in username found")
	}

	m.mu.Lock()
	if m.current.Remaining == nil {
		m.mu.Unlock()
		return ErrNoSession
	}
	if !m.channel.Connected() {
		m.mu.Unlock()
		return ErrNotConnected
	}

	err := m.channel.Emit(events.CommandExtendTimer, events.ExtendTimerPayload{
		Minutes:       minutes,
		OwnerUsername: owner,
	})
	if err != nil {
		m.mu.Unlock()
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}

	m.current = running(*m.current.Remaining + secondsFromMinutes(minutes))
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
	return nil
}

// Cancel clears the tracked session and tells the service. It is a no-op when
// nothing is tracked. Cancellation is fire-and-forget.
func (m *Manager) Cancel(req CancelRequest) {
	m.mu.Lock()
	if m.current.Remaining == nil {
		m.mu.Unlock()
		return
	}

	m.current = Projection{State: StateIdle}
	if m.channel.Connected() {
		err := m.channel.Emit(events.CommandCancelTimer, events.CancelTimerPayload{
			OwnerUsername:           req.Owner,
			SelectedFriendUsernames: uniqueNonEmpty(req.Watchers),
			Destination:             strings.TrimSpace(req.Destination),
		})
		if err != nil {
			log.Warn().Err(err).Str("owner", req.Owner).Msg("failed to send cancelTimer")
		}
	} else {
		log.Warn().Str("owner", req.Owner).Msg("push channel not connected; cancel applied locally only")
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Acknowledge dismisses an expired session so a new one can start
func (m *Manager) Acknowledge(owner string) {
	m.mu.Lock()
	if m.current.State != StateExpired {
		m.mu.Unlock()
		return
	}

	m.current = Projection{State: StateIdle}
	if m.channel.Connected() {
		if err := m.channel.Emit(events.CommandAcknowledgeTimer, events.OwnerPayload{OwnerUsername: owner}); err != nil {
			log.Warn().Err(err).Str("owner", owner).Msg("failed to send acknowledgeTimer")
		}
	}
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Sync asks the service for the owner's current session. The projection stays
// stale until the answer arrives.
func (m *Manager) Sync(owner string) error {
	if strings.TrimSpace(owner) == "" {
		return invalid("owner", "no logged-in username found")
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.channel.Connected() {
		return ErrNotConnected
	}
	if err := m.channel.Emit(events.CommandSyncTimer, events.OwnerPayload{OwnerUsername: owner}); err != nil {
		return fmt.Errorf("%w: %v", ErrNotConnected, err)
	}
	m.owner = owner
	m.stale = true
	return nil
}

// Tick decrements the displayed countdown by one second. It floors at zero
// and never changes the state: reaching zero only means "expiring".
func (m *Manager) Tick() {
	m.mu.Lock()
	if m.current.Remaining == nil || *m.current.Remaining <= 0 {
		m.mu.Unlock()
		return
	}
	m.current = running(*m.current.Remaining - 1)
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// Run ticks the local countdown until ctx is cancelled
func (m *Manager) Run(ctx context.Context) {
	ticker := m.clock.NewTicker(TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.Chan():
			m.Tick()
		}
	}
}

// HandleEvent applies an inbound event from the timer service
func (m *Manager) HandleEvent(env *events.Envelope) {
	if env == nil {
		return
	}

	switch env.Type {
	case events.EventCommandRejected:
		if payload, err := events.ParsePayload(env); err == nil {
			p := payload.(events.CommandRejectedPayload)
			log.Warn().Str("command", string(p.Command)).Str("reason", p.Reason).Msg("timer service rejected command")
		}
		return
	case events.EventFriendAlert:
		m.handleFriendAlert(env)
		return
	}

	m.mu.Lock()
	next, ok := Reconcile(m.current, env, m.clock.Now())
	if !ok {
		m.mu.Unlock()
		log.Debug().Str("event_type", string(env.Type)).Msg("ignoring event")
		return
	}
	m.current = next
	m.stale = false
	snap := m.snapshotLocked()
	m.mu.Unlock()

	log.Debug().
		Str("event_type", string(env.Type)).
		Str("state", string(snap.State)).
		Msg("applied authoritative timer event")

	m.notify(snap)
}

// HandleDisconnect marks the projection stale
func (m *Manager) HandleDisconnect() {
	m.mu.Lock()
	m.stale = true
	snap := m.snapshotLocked()
	m.mu.Unlock()

	m.notify(snap)
}

// HandleReconnect re-requests the session state for the last known owner
func (m *Manager) HandleReconnect() {
	m.mu.Lock()
	owner := m.owner
	m.stale = true
	m.mu.Unlock()

	if owner == "" {
		return
	}
	if err := m.Sync(owner); err != nil {
		log.Warn().Err(err).Str("owner", owner).Msg("failed to resync timer after reconnect")
	}
}

func (m *Manager) handleFriendAlert(env *events.Envelope) {
	payload, err := events.ParsePayload(env)
	if err != nil {
		log.Debug().Err(err).Msg("ignoring malformed friend alert")
		return
	}

	m.mu.Lock()
	observers := append(([]func(events.FriendAlertPayload))(nil), m.alertObservers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(payload.(events.FriendAlertPayload))
	}
}

func (m *Manager) snapshotLocked() Snapshot {
	snap := Snapshot{State: m.current.State, Stale: m.stale}
	if m.current.Remaining != nil {
		remaining := *m.current.Remaining
		snap.RemainingSeconds = &remaining
	}
	return snap
}

func (m *Manager) notify(snap Snapshot) {
	m.mu.Lock()
	observers := append(([]func(Snapshot))(nil), m.observers...)
	m.mu.Unlock()

	for _, fn := range observers {
		fn(snap)
	}
}

func validMinutes(minutes float64) bool {
	return minutes > 0 && minutes <= MaxMinutes
}

func uniqueNonEmpty(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
