package main

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/mcdev12/backtrack/go/internal/checkin/countdown"
)

func TestParseCommand(t *testing.T) {
	tests := []struct {
		line    string
		want    command
		wantErr bool
	}{
		{line: "extend 5", want: command{name: "extend", minutes: 5}},
		{line: "  EXTEND 0.5 ", want: command{name: "extend", minutes: 0.5}},
		{line: "cancel", want: command{name: "cancel"}},
		{line: "ack", want: command{name: "ack"}},
		{line: "status", want: command{name: "status"}},
		{line: "quit", want: command{name: "quit"}},
		{line: "", wantErr: true},
		{line: "extend", wantErr: true},
		{line: "extend soon", wantErr: true},
		{line: "cancel now", wantErr: true},
		{line: "start 10", wantErr: true},
	}

	for _, tt := range tests {
		got, err := parseCommand(tt.line)
		if (err != nil) != tt.wantErr {
			t.Errorf("parseCommand(%q) error = %v, wantErr %v", tt.line, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("parseCommand(%q) = %+v, want %+v", tt.line, got, tt.want)
		}
	}
}

func TestFormatDuration(t *testing.T) {
	tests := map[int]string{
		-3:   "0:00",
		0:    "0:00",
		59:   "0:59",
		61:   "1:01",
		3600: "1:00:00",
		3725: "1:02:05",
	}
	for in, want := range tests {
		if got := formatDuration(in); got != want {
			t.Errorf("formatDuration(%d) = %q, want %q", in, got, want)
		}
	}
}

func TestFormatSnapshot(t *testing.T) {
	intPtr := func(n int) *int { return &n }

	tests := []struct {
		name string
		snap countdown.Snapshot
		want string
	}{
		{name: "idle", snap: countdown.Snapshot{State: countdown.StateIdle}, want: "idle"},
		{name: "running", snap: countdown.Snapshot{State: countdown.StateRunning, RemainingSeconds: intPtr(90)}, want: "running 1:30"},
		{name: "expiring", snap: countdown.Snapshot{State: countdown.StateRunning, RemainingSeconds: intPtr(0)}, want: "running 0:00 (expiring)"},
		{name: "stale", snap: countdown.Snapshot{State: countdown.StateRunning, RemainingSeconds: intPtr(30), Stale: true}, want: "running 0:30 [reconnecting]"},
		{name: "expired", snap: countdown.Snapshot{State: countdown.StateExpired, RemainingSeconds: intPtr(0)}, want: "expired 0:00"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatSnapshot(tt.snap); got != tt.want {
				t.Errorf("formatSnapshot() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCredentials_RoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "credentials.json")

	if _, err := loadCredentials(path); !errors.Is(err, errNotLoggedIn) {
		t.Fatalf("loadCredentials() on missing file error = %v, want errNotLoggedIn", err)
	}

	want := credentials{API: "http://localhost:8080", Username: "alice", Token: "tok-1"}
	if err := saveCredentials(path, want); err != nil {
		t.Fatalf("saveCredentials() error: %v", err)
	}
	got, err := loadCredentials(path)
	if err != nil {
		t.Fatalf("loadCredentials() error: %v", err)
	}
	if diff := cmp.Diff(want, *got); diff != "" {
		t.Errorf("credentials mismatch (-want +got):\n%s", diff)
	}

	if err := removeCredentials(path); err != nil {
		t.Fatalf("removeCredentials() error: %v", err)
	}
	if err := removeCredentials(path); err != nil {
		t.Errorf("second removeCredentials() error: %v", err)
	}
	if _, err := loadCredentials(path); !errors.Is(err, errNotLoggedIn) {
		t.Errorf("loadCredentials() after remove error = %v, want errNotLoggedIn", err)
	}
}
