package main

import (
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/mcdev12/backtrack/go/internal/alerts/outbox"
	"github.com/mcdev12/backtrack/go/internal/checkin/gateway"
	"github.com/mcdev12/backtrack/go/internal/checkin/timer"
	"github.com/mcdev12/backtrack/go/internal/users"
)

type Config struct {
	// NATSURL enables the JetStream path for friend alerts. Empty delivers them in-process.
	NATSURL string         `yaml:"nats_url"`
	Timer   timer.Policy   `yaml:"timer"`
	Gateway gateway.Config `yaml:"gateway"`
	Users   users.Config   `yaml:"users"`
	Outbox  OutboxConfig   `yaml:"outbox"`
}

type OutboxConfig struct {
	Listener  outbox.ListenerConfig  `yaml:"listener"`
	Relay     outbox.RelayConfig     `yaml:"relay"`
	JetStream outbox.JetStreamConfig `yaml:"jetstream"`
}

func defaultConfig() *Config {
	return &Config{
		Timer:   timer.DefaultPolicy(),
		Gateway: gateway.DefaultConfig(),
		Users:   users.DefaultConfig(),
		Outbox: OutboxConfig{
			Listener:  outbox.DefaultListenerConfig(),
			Relay:     outbox.DefaultRelayConfig(),
			JetStream: outbox.DefaultJetStreamConfig(),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

// loadConfig overlays the YAML file at path onto the defaults. An empty path keeps the defaults.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.NATSURL = getEnv("NATS_URL", config.NATSURL)
	if config.NATSURL != "" {
		config.Outbox.JetStream.URL = config.NATSURL
		if config.Gateway.JetStreamConfig == nil {
			consumer := gateway.DefaultJetStreamConsumerConfig()
			config.Gateway.JetStreamConfig = &consumer
		}
		config.Gateway.JetStreamConfig.URL = config.NATSURL
	}

	return config, nil
}
