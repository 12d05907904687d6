package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/users"
)

// Service is the check-in gateway: WebSocket connections plus the friend alert consumer
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
}

// Config holds configuration for the check-in gateway service
type Config struct {
	ConnectionConfig ConnectionConfig `yaml:"connection"`
	// JetStreamConfig is nil when friend alerts are not consumed from NATS
	JetStreamConfig *JetStreamConsumerConfig `yaml:"jetstream"`
}

// DefaultConfig returns default configuration for the check-in gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
	}
}

// NewService creates a new check-in gateway service. Commands are routed once
// SetCommandHandler is called.
func NewService(config Config, auth users.Authenticator) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, nil)
	wsHandler := NewWebSocketHandler(connectionManager, auth)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         wsHandler,
	}

	if config.JetStreamConfig != nil {
		eventConsumer, err := NewEventConsumer(connectionManager, *config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	return s, nil
}

// Connections returns the connection manager, which is also the timer service's publisher
func (s *Service) Connections() *ConnectionManager {
	return s.connectionManager
}

// SetCommandHandler routes client commands to h
func (s *Service) SetCommandHandler(h CommandHandler) {
	s.connectionManager.SetCommandHandler(h)
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting check-in gateway service")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	<-ctx.Done()

	log.Info().Msg("check-in gateway service shutting down")
	return s.Stop()
}

// Stop gracefully shuts down the gateway service
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}

	log.Info().Msg("check-in gateway service stopped")
	return nil
}

// RegisterRoutes registers the WebSocket HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("check-in gateway routes registered")
}
