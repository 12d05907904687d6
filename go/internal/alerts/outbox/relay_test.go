package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

type failure struct {
	id    uuid.UUID
	final bool
}

type fakeStore struct {
	mu        sync.Mutex
	rows      map[uuid.UUID]OutboxEvent
	order     []uuid.UUID
	delivered []uuid.UUID
	failures  []failure
}

func newFakeStore(rows ...OutboxEvent) *fakeStore {
	s := &fakeStore{rows: make(map[uuid.UUID]OutboxEvent)}
	for _, r := range rows {
		s.rows[r.ID] = r
		s.order = append(s.order, r.ID)
	}
	return s
}

func (s *fakeStore) FetchUnsent(_ context.Context, limit int) ([]OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []OutboxEvent
	for _, id := range s.order {
		if r, ok := s.rows[id]; ok && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) FetchByID(_ context.Context, id uuid.UUID) (*OutboxEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, ErrEventNotFound
	}
	return &r, nil
}

func (s *fakeStore) MarkDelivered(_ context.Context, event OutboxEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rows, event.ID)
	s.delivered = append(s.delivered, event.ID)
	return nil
}

func (s *fakeStore) RecordFailure(_ context.Context, event OutboxEvent, _ error, final bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures = append(s.failures, failure{id: event.ID, final: final})
	if final {
		delete(s.rows, event.ID)
		return nil
	}
	r := s.rows[event.ID]
	r.Attempts++
	s.rows[event.ID] = r
	return nil
}

type fakePublisher struct {
	mu        sync.Mutex
	failFor   map[string]bool
	published []OutboxEvent
	calls     int
}

func (p *fakePublisher) Publish(_ context.Context, event OutboxEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.failFor[event.Recipient] {
		return errors.New("nats unavailable")
	}
	p.published = append(p.published, event)
	return nil
}

func newEvent(recipient string) OutboxEvent {
	return OutboxEvent{
		ID:          uuid.New(),
		AlertID:     uuid.New(),
		RecipientID: uuid.New(),
		Recipient:   recipient,
		EventType:   string(events.EventFriendAlert),
		Payload:     json.RawMessage(`{"alertId":"a1","ownerUsername":"alice","destination":"Home"}`),
	}
}

func testConfig() RelayConfig {
	return RelayConfig{
		MaxRetries:  2,
		RetryDelay:  time.Millisecond,
		MaxAttempts: 3,
		BatchSize:   10,
	}
}

func TestHandleNotification_PublishesAndMarksDelivered(t *testing.T) {
	event := newEvent("bob")
	store := newFakeStore(event)
	pub := &fakePublisher{}
	relay := NewRelay(store, pub, testConfig())

	if err := relay.HandleNotification(context.Background(), event.ID.String()); err != nil {
		t.Fatalf("HandleNotification() error: %v", err)
	}

	if len(pub.published) != 1 || pub.published[0].ID != event.ID {
		t.Fatalf("published = %v, want event %s", pub.published, event.ID)
	}
	if diff := cmp.Diff([]uuid.UUID{event.ID}, store.delivered); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}
}

func TestHandleNotification_AlreadySettled(t *testing.T) {
	pub := &fakePublisher{}
	relay := NewRelay(newFakeStore(), pub, testConfig())

	if err := relay.HandleNotification(context.Background(), uuid.NewString()); err != nil {
		t.Errorf("HandleNotification() error = %v, want nil", err)
	}
	if pub.calls != 0 {
		t.Errorf("publisher called %d times for a settled row", pub.calls)
	}
}

func TestHandleNotification_InvalidID(t *testing.T) {
	relay := NewRelay(newFakeStore(), &fakePublisher{}, testConfig())

	if err := relay.HandleNotification(context.Background(), "not-a-uuid"); err == nil {
		t.Error("HandleNotification() error = nil, want error")
	}
}

func TestDeliver_RetriesThenRecordsFailure(t *testing.T) {
	event := newEvent("bob")
	store := newFakeStore(event)
	pub := &fakePublisher{failFor: map[string]bool{"bob": true}}
	cfg := testConfig()
	relay := NewRelay(store, pub, cfg)
	ctx := context.Background()

	for pass := 1; pass <= cfg.MaxAttempts; pass++ {
		if _, err := relay.ProcessUnsent(ctx); err != nil {
			t.Fatalf("pass %d: ProcessUnsent() error: %v", pass, err)
		}
	}

	if want := cfg.MaxAttempts * (cfg.MaxRetries + 1); pub.calls != want {
		t.Errorf("publish calls = %d, want %d", pub.calls, want)
	}
	want := []failure{
		{id: event.ID, final: false},
		{id: event.ID, final: false},
		{id: event.ID, final: true},
	}
	if diff := cmp.Diff(want, store.failures, cmp.AllowUnexported(failure{})); diff != "" {
		t.Errorf("failures mismatch (-want +got):\n%s", diff)
	}
	if len(store.delivered) != 0 {
		t.Errorf("delivered = %v, want none", store.delivered)
	}

	// A settled row is not picked up again
	n, err := relay.ProcessUnsent(ctx)
	if err != nil || n != 0 {
		t.Errorf("ProcessUnsent() = %d, %v; want 0, nil", n, err)
	}
}

func TestProcessUnsent_ContinuesPastFailures(t *testing.T) {
	bob, carol, dave := newEvent("bob"), newEvent("carol"), newEvent("dave")
	store := newFakeStore(bob, carol, dave)
	pub := &fakePublisher{failFor: map[string]bool{"carol": true}}
	relay := NewRelay(store, pub, testConfig())

	n, err := relay.ProcessUnsent(context.Background())
	if err != nil {
		t.Fatalf("ProcessUnsent() error: %v", err)
	}
	if n != 2 {
		t.Errorf("delivered = %d, want 2", n)
	}
	if diff := cmp.Diff([]uuid.UUID{bob.ID, dave.ID}, store.delivered); diff != "" {
		t.Errorf("delivered mismatch (-want +got):\n%s", diff)
	}
	if len(store.failures) != 1 || store.failures[0].id != carol.ID {
		t.Errorf("failures = %v, want carol only", store.failures)
	}
}

func TestDeliver_CancelledContextLeavesRowUntouched(t *testing.T) {
	event := newEvent("bob")
	store := newFakeStore(event)
	pub := &fakePublisher{failFor: map[string]bool{"bob": true}}
	relay := NewRelay(store, pub, RelayConfig{MaxRetries: 3, RetryDelay: time.Hour, MaxAttempts: 1, BatchSize: 10})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := relay.HandleNotification(ctx, event.ID.String()); !errors.Is(err, context.Canceled) {
		t.Errorf("HandleNotification() error = %v, want context.Canceled", err)
	}
	if len(store.failures) != 0 {
		t.Errorf("failures = %v, want none", store.failures)
	}
}

func TestSubject(t *testing.T) {
	tests := []struct {
		recipient string
		want      string
		wantErr   bool
	}{
		{recipient: "bob", want: "checkin.alerts.bob"},
		{recipient: "night_owl-2", want: "checkin.alerts.night_owl-2"},
		{recipient: "", wantErr: true},
		{recipient: "bob.smith", wantErr: true},
		{recipient: "*", wantErr: true},
		{recipient: ">", wantErr: true},
	}

	for _, tt := range tests {
		got, err := Subject("checkin.alerts", tt.recipient)
		if (err != nil) != tt.wantErr {
			t.Errorf("Subject(%q) error = %v, wantErr %v", tt.recipient, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("Subject(%q) = %q, want %q", tt.recipient, got, tt.want)
		}
	}
}

func TestBuildMessage(t *testing.T) {
	event := newEvent("bob")
	event.Metadata = pqtype.NullRawMessage{RawMessage: json.RawMessage(`{"sessionId":"s1"}`), Valid: true}
	now := time.Date(2026, 3, 14, 18, 15, 0, 0, time.UTC)

	data, err := BuildMessage(event, now)
	if err != nil {
		t.Fatalf("BuildMessage() error: %v", err)
	}

	var got events.AlertMessage
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error: %v", err)
	}
	want := events.AlertMessage{
		EventID:   event.ID.String(),
		EventType: "friendAlert",
		AlertID:   event.AlertID.String(),
		Recipient: "bob",
		Timestamp: now,
		Payload:   event.Payload,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("message mismatch (-want +got):\n%s", diff)
	}
}

type fakeUsers struct {
	online    map[string]bool
	delivered map[string][]*events.Envelope
}

func (u *fakeUsers) IsOnline(username string) bool { return u.online[username] }

func (u *fakeUsers) PublishToUser(username string, env *events.Envelope) {
	u.delivered[username] = append(u.delivered[username], env)
}

func TestDirectPublisher(t *testing.T) {
	users := &fakeUsers{
		online:    map[string]bool{"bob": true},
		delivered: make(map[string][]*events.Envelope),
	}
	pub := NewDirectPublisher(users)
	ctx := context.Background()

	event := newEvent("bob")
	if err := pub.Publish(ctx, event); err != nil {
		t.Fatalf("Publish() error: %v", err)
	}
	got := users.delivered["bob"]
	if len(got) != 1 {
		t.Fatalf("bob received %d envelopes, want 1", len(got))
	}
	if got[0].Type != events.EventFriendAlert || got[0].ID != event.ID.String() {
		t.Errorf("envelope = %+v", got[0])
	}
	if string(got[0].Data) != string(event.Payload) {
		t.Errorf("data = %s, want %s", got[0].Data, event.Payload)
	}

	if err := pub.Publish(ctx, newEvent("carol")); err == nil {
		t.Error("Publish() to offline recipient error = nil, want error")
	}

	bad := newEvent("bob")
	bad.EventType = "timerExpired"
	if err := pub.Publish(ctx, bad); err == nil {
		t.Error("Publish() with unknown type error = nil, want error")
	}
}
