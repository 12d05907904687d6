package events

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestStartTimerWireFormat(t *testing.T) {
	env, err := NewEnvelope(CommandStartTimer, StartTimerPayload{
		Minutes:                 5,
		OwnerUsername:           "bob",
		SelectedFriendUsernames: []string{"a"},
		Destination:             "library",
	})
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(env.Data, &got); err != nil {
		t.Fatalf("unmarshal data: %v", err)
	}
	want := map[string]any{
		"minutes":                 float64(5),
		"ownerUsername":           "bob",
		"selectedFriendUsernames": []any{"a"},
		"destination":             "library",
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("startTimer data mismatch (-want +got):\n%s", diff)
	}
}

func TestNewEnvelope_NilPayload(t *testing.T) {
	env, err := NewEnvelope(EventTimerExpired, nil)
	if err != nil {
		t.Fatalf("NewEnvelope() error: %v", err)
	}
	if env.Data != nil {
		t.Errorf("Data = %s, want nil", env.Data)
	}
	if env.ID == "" {
		t.Error("ID is empty")
	}
}

func TestDecode(t *testing.T) {
	tests := []struct {
		name    string
		frame   string
		want    EventType
		wantErr bool
	}{
		{name: "expired", frame: `{"type":"timerExpired"}`, want: EventTimerExpired},
		{name: "extended", frame: `{"type":"timerExtended","data":{"endTime":"2026-10-18T12:00:00Z"}}`, want: EventTimerExtended},
		{name: "missing type", frame: `{"data":{}}`, wantErr: true},
		{name: "not json", frame: `timerExpired`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env, err := Decode([]byte(tt.frame))
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if env.Type != tt.want {
				t.Errorf("Type = %q, want %q", env.Type, tt.want)
			}
		})
	}
}

func TestParsePayload_Deadline(t *testing.T) {
	env := &Envelope{Type: EventTimerExtended, Data: json.RawMessage(`{"endTime":"2026-10-18T12:05:00Z"}`)}
	payload, err := ParsePayload(env)
	if err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	p, ok := payload.(DeadlinePayload)
	if !ok {
		t.Fatalf("payload type = %T, want DeadlinePayload", payload)
	}
	want := time.Date(2026, 10, 18, 12, 5, 0, 0, time.UTC)
	if p.EndTime == nil || !p.EndTime.Equal(want) {
		t.Errorf("EndTime = %v, want %v", p.EndTime, want)
	}
}

func TestParsePayload_DeadlineWithoutEndTime(t *testing.T) {
	env := &Envelope{Type: EventTimerExtended, Data: json.RawMessage(`{}`)}
	payload, err := ParsePayload(env)
	if err != nil {
		t.Fatalf("ParsePayload() error: %v", err)
	}
	if p := payload.(DeadlinePayload); p.EndTime != nil {
		t.Errorf("EndTime = %v, want nil", p.EndTime)
	}
}

func TestParsePayload_Errors(t *testing.T) {
	if _, err := ParsePayload(&Envelope{Type: EventTimerExtended}); err == nil {
		t.Error("expected error for missing payload")
	}
	if _, err := ParsePayload(&Envelope{Type: EventTimerExtended, Data: json.RawMessage(`{"endTime":"soon"}`)}); err == nil {
		t.Error("expected error for unparseable endTime")
	}
}

func TestParsePayload_NoPayloadTypes(t *testing.T) {
	for _, typ := range []EventType{EventTimerExpired, EventTimerCancelled, "somethingElse"} {
		payload, err := ParsePayload(&Envelope{Type: typ})
		if err != nil || payload != nil {
			t.Errorf("ParsePayload(%s) = %v, %v; want nil, nil", typ, payload, err)
		}
	}
}
