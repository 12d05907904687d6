package timer

import (
	"context"
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
	"github.com/mcdev12/backtrack/go/internal/models"
)

// Clock is the interface we use for time operations.
// In production, use clockwork.NewRealClock(). In tests, a FakeClock.
type Clock interface {
	Now() time.Time
	NewTimer(d time.Duration) clockwork.Timer
}

// Publisher delivers events to every connection of a user
type Publisher interface {
	PublishToUser(username string, env *events.Envelope)
}

// Notifier records finished sessions and fans expiry out to watchers
type Notifier interface {
	NotifyExpired(ctx context.Context, session models.CheckInSession, expiredAt time.Time) error
	RecordCancelled(ctx context.Context, session models.CheckInSession, cancelledAt time.Time) error
}

// WatcherValidator checks that the owner may name these watchers
type WatcherValidator interface {
	ValidateWatchers(ctx context.Context, owner string, watchers []string) error
}

// Service owns every check-in session and is the only component that decides expiry
type Service struct {
	clock     Clock
	publisher Publisher
	notifier  Notifier
	watchers  WatcherValidator
	policy    Policy

	mu       sync.Mutex
	sessions map[string]*entry // keyed by owner username
}

type entry struct {
	session models.CheckInSession
	// generation changes on every reschedule so a timer that fires late is ignored
	generation uint64
	stop       chan struct{}
}

// NewService creates a timer service. watchers may be nil to skip friendship checks.
func NewService(clock Clock, publisher Publisher, notifier Notifier, watchers WatcherValidator, policy Policy) *Service {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Service{
		clock:     clock,
		publisher: publisher,
		notifier:  notifier,
		watchers:  watchers,
		policy:    policy,
		sessions:  make(map[string]*entry),
	}
}

// Start begins a session for owner, replacing any session already running
func (s *Service) Start(ctx context.Context, owner string, req events.StartTimerPayload) (models.CheckInSession, error) {
	watchers, err := s.validateStart(owner, req)
	if err != nil {
		return models.CheckInSession{}, err
	}
	if s.watchers != nil {
		if err := s.watchers.ValidateWatchers(ctx, owner, watchers); err != nil {
			return models.CheckInSession{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}

	duration, err := minutesToDuration(req.Minutes)
	if err != nil {
		return models.CheckInSession{}, err
	}
	now := s.clock.Now()
	deadline := now.Add(duration)

	s.mu.Lock()
	e, exists := s.sessions[owner]
	if exists {
		if e.session.State == models.CheckInStateRunning {
			log.Info().
				Str("owner", owner).
				Str("session_id", e.session.ID.String()).
				Msg("replacing running check-in session")
		}
		s.stopTimerLocked(e)
	} else {
		e = &entry{}
		s.sessions[owner] = e
	}

	e.session = models.CheckInSession{
		ID:              uuid.New(),
		Owner:           owner,
		Destination:     strings.TrimSpace(req.Destination),
		Watchers:        watchers,
		DurationSeconds: int(duration.Round(time.Second) / time.Second),
		StartedAt:       now,
		Deadline:        &deadline,
		State:           models.CheckInStateRunning,
	}
	s.scheduleLocked(owner, e)
	session := cloneSession(e.session)
	s.mu.Unlock()

	log.Info().
		Str("owner", owner).
		Str("session_id", session.ID.String()).
		Time("deadline", deadline).
		Int("watchers", len(watchers)).
		Msg("check-in session started")

	s.publish(owner, events.EventTimerStarted, events.DeadlinePayload{EndTime: &deadline})
	return session, nil
}

// Extend pushes the deadline of the owner's running session forward
func (s *Service) Extend(ctx context.Context, owner string, minutes float64) (models.CheckInSession, error) {
	if !(minutes > 0) || math.IsInf(minutes, 0) {
		return models.CheckInSession{}, fmt.Errorf("%w: extension must be a positive number of minutes", ErrInvalidRequest)
	}
	extension, err := minutesToDuration(minutes)
	if err != nil {
		return models.CheckInSession{}, err
	}

	s.mu.Lock()
	e, ok := s.sessions[owner]
	if !ok || e.session.State != models.CheckInStateRunning {
		s.mu.Unlock()
		return models.CheckInSession{}, ErrNoActiveSession
	}
	if s.policy.MaxExtensions > 0 && e.session.Extensions >= s.policy.MaxExtensions {
		session := cloneSession(e.session)
		s.mu.Unlock()
		return session, ErrExtensionLimit
	}

	deadline := e.session.Deadline.Add(extension)
	if limit := s.maxDuration(); limit > 0 && deadline.Sub(s.clock.Now()) > limit {
		s.mu.Unlock()
		return models.CheckInSession{}, fmt.Errorf("%w: deadline would be more than %.0f minutes away", ErrInvalidRequest, s.policy.MaxDurationMinutes)
	}
	s.stopTimerLocked(e)
	e.session.Deadline = &deadline
	e.session.Extensions++
	s.scheduleLocked(owner, e)
	session := cloneSession(e.session)
	s.mu.Unlock()

	log.Info().
		Str("owner", owner).
		Str("session_id", session.ID.String()).
		Time("deadline", deadline).
		Int("extensions", session.Extensions).
		Msg("check-in session extended")

	s.publish(owner, events.EventTimerExtended, events.DeadlinePayload{EndTime: &deadline})
	return session, nil
}

// Cancel stops the owner's running session without notifying watchers
func (s *Service) Cancel(ctx context.Context, owner string) error {
	s.mu.Lock()
	e, ok := s.sessions[owner]
	if !ok || e.session.State != models.CheckInStateRunning {
		s.mu.Unlock()
		return ErrNoActiveSession
	}
	s.stopTimerLocked(e)
	session := cloneSession(e.session)
	e.session.State = models.CheckInStateIdle
	e.session.Deadline = nil
	s.mu.Unlock()

	log.Info().
		Str("owner", owner).
		Str("session_id", session.ID.String()).
		Msg("check-in session cancelled")

	s.publish(owner, events.EventTimerCancelled, nil)

	if s.notifier != nil {
		if err := s.notifier.RecordCancelled(ctx, session, s.clock.Now()); err != nil {
			log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to record cancelled session")
		}
	}
	return nil
}

// Acknowledge resets an expired session to idle. It is a no-op in any other state.
func (s *Service) Acknowledge(owner string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[owner]; ok && e.session.State == models.CheckInStateExpired {
		e.session.State = models.CheckInStateIdle
		log.Debug().Str("owner", owner).Msg("expired session acknowledged")
	}
}

// Status returns the owner's session, or an idle session if there is none
func (s *Service) Status(owner string) models.CheckInSession {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[owner]; ok {
		return cloneSession(e.session)
	}
	return models.CheckInSession{Owner: owner, State: models.CheckInStateIdle}
}

// HandleCommand runs a client command for the authenticated username and
// answers rejected commands with the authoritative status
func (s *Service) HandleCommand(ctx context.Context, username string, env *events.Envelope) {
	payload, err := events.ParsePayload(env)
	if err != nil {
		s.reject(username, env.Type, err)
		return
	}

	switch env.Type {
	case events.CommandStartTimer:
		p := payload.(events.StartTimerPayload)
		if err = checkOwner(username, p.OwnerUsername); err == nil {
			_, err = s.Start(ctx, username, p)
		}
	case events.CommandExtendTimer:
		p := payload.(events.ExtendTimerPayload)
		if err = checkOwner(username, p.OwnerUsername); err == nil {
			_, err = s.Extend(ctx, username, p.Minutes)
		}
	case events.CommandCancelTimer:
		p := payload.(events.CancelTimerPayload)
		if err = checkOwner(username, p.OwnerUsername); err == nil {
			err = s.Cancel(ctx, username)
		}
	case events.CommandAcknowledgeTimer:
		if err = checkOwner(username, payload.(events.OwnerPayload).OwnerUsername); err == nil {
			s.Acknowledge(username)
		}
	case events.CommandSyncTimer:
		if err = checkOwner(username, payload.(events.OwnerPayload).OwnerUsername); err == nil {
			s.publishStatus(username)
		}
	default:
		err = fmt.Errorf("unsupported command %q", env.Type)
	}

	if err != nil {
		s.reject(username, env.Type, err)
	}
}

// Stop cancels every scheduled expiry
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, e := range s.sessions {
		s.stopTimerLocked(e)
	}
	log.Info().Int("sessions", len(s.sessions)).Msg("timer service stopped")
}

// expire is called by a fired timer. A generation mismatch means the session
// was rescheduled or cancelled after this timer was armed.
func (s *Service) expire(owner string, generation uint64) {
	s.mu.Lock()
	e, ok := s.sessions[owner]
	if !ok || e.generation != generation || e.session.State != models.CheckInStateRunning {
		s.mu.Unlock()
		log.Debug().Str("owner", owner).Msg("ignoring stale timer")
		return
	}
	expiredAt := *e.session.Deadline
	e.stop = nil
	e.session.State = models.CheckInStateExpired
	e.session.Deadline = nil
	session := cloneSession(e.session)
	s.mu.Unlock()

	log.Info().
		Str("owner", owner).
		Str("session_id", session.ID.String()).
		Strs("watchers", session.Watchers).
		Msg("check-in session expired")

	s.publish(owner, events.EventTimerExpired, nil)

	if s.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), s.policy.NotifyTimeout)
	defer cancel()
	if err := s.notifier.NotifyExpired(ctx, session, expiredAt); err != nil {
		log.Error().Err(err).Str("session_id", session.ID.String()).Msg("failed to notify watchers")
	}
}

// scheduleLocked arms a one-shot timer for the entry's deadline
func (s *Service) scheduleLocked(owner string, e *entry) {
	e.generation++
	generation := e.generation

	duration := e.session.Deadline.Sub(s.clock.Now())
	if duration < 0 {
		duration = 0
	}
	t := s.clock.NewTimer(duration)
	stop := make(chan struct{})
	e.stop = stop

	go func() {
		select {
		case <-t.Chan():
			s.expire(owner, generation)
		case <-stop:
			stopAndDrainTimer(t)
		}
	}()

	log.Debug().
		Str("owner", owner).
		Time("deadline", *e.session.Deadline).
		Dur("duration", duration).
		Msg("scheduled one-shot timer")
}

func (s *Service) stopTimerLocked(e *entry) {
	if e.stop != nil {
		close(e.stop)
		e.stop = nil
	}
}

// stopAndDrainTimer safely stops a timer and drains its channel
func stopAndDrainTimer(timer clockwork.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.Chan():
		default:
		}
	}
}

func (s *Service) validateStart(owner string, req events.StartTimerPayload) ([]string, error) {
	if strings.TrimSpace(req.Destination) == "" {
		return nil, fmt.Errorf("%w: destination is required", ErrInvalidRequest)
	}
	if !(req.Minutes > 0) || math.IsInf(req.Minutes, 0) {
		return nil, fmt.Errorf("%w: duration must be a positive number of minutes", ErrInvalidRequest)
	}
	if s.policy.MaxDurationMinutes > 0 && req.Minutes > s.policy.MaxDurationMinutes {
		return nil, fmt.Errorf("%w: duration exceeds %.0f minutes", ErrInvalidRequest, s.policy.MaxDurationMinutes)
	}

	seen := make(map[string]bool)
	var watchers []string
	for _, w := range req.SelectedFriendUsernames {
		w = strings.ToLower(strings.TrimSpace(w))
		if w == "" || seen[w] {
			continue
		}
		if strings.EqualFold(w, owner) {
			return nil, fmt.Errorf("%w: cannot watch your own check-in", ErrInvalidRequest)
		}
		seen[w] = true
		watchers = append(watchers, w)
	}
	if len(watchers) == 0 {
		return nil, fmt.Errorf("%w: at least one friend must be selected", ErrInvalidRequest)
	}
	if s.policy.MaxWatchers > 0 && len(watchers) > s.policy.MaxWatchers {
		return nil, fmt.Errorf("%w: at most %d friends can be notified", ErrInvalidRequest, s.policy.MaxWatchers)
	}
	return watchers, nil
}

func (s *Service) reject(username string, command events.EventType, err error) {
	log.Warn().
		Err(err).
		Str("owner", username).
		Str("command", string(command)).
		Msg("rejected timer command")

	s.publish(username, events.EventCommandRejected, events.CommandRejectedPayload{
		Command: command,
		Reason:  err.Error(),
	})
	s.publishStatus(username)
}

func (s *Service) publishStatus(username string) {
	session := s.Status(username)
	s.publish(username, events.EventTimerStatus, events.TimerStatusPayload{
		State:   string(session.State),
		EndTime: session.Deadline,
	})
}

func (s *Service) publish(username string, eventType events.EventType, payload any) {
	if s.publisher == nil {
		return
	}
	env, err := events.NewEnvelope(eventType, payload)
	if err != nil {
		log.Error().Err(err).Str("event_type", string(eventType)).Msg("failed to build event")
		return
	}
	s.publisher.PublishToUser(username, env)
}

func checkOwner(username, owner string) error {
	if owner != "" && !strings.EqualFold(owner, username) {
		return ErrOwnerMismatch
	}
	return nil
}

// minutesToDuration rejects values that do not fit in a time.Duration
func minutesToDuration(minutes float64) (time.Duration, error) {
	ns := math.Round(minutes * float64(time.Minute))
	if math.IsNaN(ns) || ns >= math.MaxInt64 || ns <= 0 {
		return 0, fmt.Errorf("%w: duration out of range", ErrInvalidRequest)
	}
	return time.Duration(ns), nil
}

func (s *Service) maxDuration() time.Duration {
	if s.policy.MaxDurationMinutes <= 0 {
		return 0
	}
	d, err := minutesToDuration(s.policy.MaxDurationMinutes)
	if err != nil {
		return 0
	}
	return d
}

func cloneSession(s models.CheckInSession) models.CheckInSession {
	out := s
	out.Watchers = append([]string(nil), s.Watchers...)
	if s.Deadline != nil {
		d := *s.Deadline
		out.Deadline = &d
	}
	return out
}
