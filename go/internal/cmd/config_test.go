package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcdev12/backtrack/go/internal/checkin/timer"
)

func TestLoadConfig_Defaults(t *testing.T) {
	t.Setenv("NATS_URL", "")

	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if config.Timer != timer.DefaultPolicy() {
		t.Errorf("timer policy = %+v, want defaults", config.Timer)
	}
	if config.Gateway.JetStreamConfig != nil {
		t.Error("JetStream consumer enabled without NATS_URL")
	}
}

func TestLoadConfig_OverlaysFile(t *testing.T) {
	t.Setenv("NATS_URL", "")

	path := filepath.Join(t.TempDir(), "config.yaml")
	body := `
nats_url: nats://nats:4222
timer:
  max_extensions: 3
outbox:
  relay:
    max_attempts: 9
gateway:
  connection:
    ping_interval: 5s
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile() error: %v", err)
	}

	config, err := loadConfig(path)
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}

	if config.Timer.MaxExtensions != 3 {
		t.Errorf("max extensions = %d, want 3", config.Timer.MaxExtensions)
	}
	if config.Timer.MaxWatchers != timer.DefaultPolicy().MaxWatchers {
		t.Errorf("max watchers = %d, want default", config.Timer.MaxWatchers)
	}
	if config.Outbox.Relay.MaxAttempts != 9 || config.Outbox.Relay.BatchSize != 100 {
		t.Errorf("relay config = %+v", config.Outbox.Relay)
	}
	if config.Gateway.ConnectionConfig.PingInterval != 5*time.Second {
		t.Errorf("ping interval = %v, want 5s", config.Gateway.ConnectionConfig.PingInterval)
	}
	if config.Gateway.JetStreamConfig == nil || config.Gateway.JetStreamConfig.URL != "nats://nats:4222" {
		t.Errorf("gateway JetStream config = %+v", config.Gateway.JetStreamConfig)
	}
	if config.Outbox.JetStream.URL != "nats://nats:4222" {
		t.Errorf("outbox JetStream url = %s", config.Outbox.JetStream.URL)
	}
}

func TestLoadConfig_EnvOverridesNATS(t *testing.T) {
	t.Setenv("NATS_URL", "nats://env:4222")

	config, err := loadConfig("")
	if err != nil {
		t.Fatalf("loadConfig() error: %v", err)
	}
	if config.NATSURL != "nats://env:4222" || config.Gateway.JetStreamConfig.StreamName != "CHECKIN_ALERTS" {
		t.Errorf("config = %+v", config.Gateway.JetStreamConfig)
	}
}

func TestLoadConfig_MissingFile(t *testing.T) {
	if _, err := loadConfig(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Error("loadConfig() error = nil, want error")
	}
}
