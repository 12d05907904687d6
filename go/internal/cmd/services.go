package main

import (
	"context"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/alerts"
	"github.com/mcdev12/backtrack/go/internal/alerts/outbox"
	"github.com/mcdev12/backtrack/go/internal/checkin/gateway"
	"github.com/mcdev12/backtrack/go/internal/checkin/timer"
	"github.com/mcdev12/backtrack/go/internal/friends"
	"github.com/mcdev12/backtrack/go/internal/users"
)

type Services struct {
	Users   *users.Service
	Friends *friends.Service
	Alerts  *alerts.Service
	Gateway *gateway.Service
	Timer   *timer.Service
	Outbox  *outbox.Listener

	publisher *outbox.JetStreamPublisher
}

func setupServices(config *Config, dbs *Databases) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	clock := clockwork.NewRealClock()

	// Users
	userRepo := users.NewRepository(dbs.Pool)
	userApp := users.NewApp(userRepo, clock, config.Users)
	userService := users.NewService(userApp)

	// Friends
	friendsRepo := friends.NewRepository(dbs.Pool)
	friendsApp := friends.NewApp(friendsRepo, userApp)
	friendsService := friends.NewService(friendsApp, userApp)

	// Alerts
	alertsRepo := alerts.NewRepository(dbs.SQL)
	alertsApp := alerts.NewApp(alertsRepo)
	alertsService := alerts.NewService(alertsApp, userApp)

	// Gateway and timer need each other: the timer publishes through the
	// gateway's connections and the gateway routes commands to the timer.
	gatewayService, err := gateway.NewService(config.Gateway, userApp)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway service: %w", err)
	}
	timerService := timer.NewService(clock, gatewayService.Connections(), alertsApp, friendsApp, config.Timer)
	gatewayService.SetCommandHandler(timerService)

	s := &Services{
		Users:   userService,
		Friends: friendsService,
		Alerts:  alertsService,
		Gateway: gatewayService,
		Timer:   timerService,
	}

	// Outbox relay
	var publisher outbox.Publisher
	if config.NATSURL != "" {
		jsPublisher, err := outbox.NewJetStreamPublisher(config.Outbox.JetStream)
		if err != nil {
			return nil, fmt.Errorf("failed to create JetStream publisher: %w", err)
		}
		s.publisher = jsPublisher
		publisher = jsPublisher
		log.Info().Str("nats_url", config.NATSURL).Msg("friend alerts relayed through JetStream")
	} else {
		publisher = outbox.NewDirectPublisher(gatewayService.Connections())
		log.Info().Msg("friend alerts delivered in-process")
	}

	relay := outbox.NewRelay(outbox.NewRepository(dbs.SQL), publisher, config.Outbox.Relay)
	listenerConfig := config.Outbox.Listener
	listenerConfig.DatabaseURL = dbs.DSN
	listener, err := outbox.NewListener(relay, listenerConfig)
	if err != nil {
		s.Close()
		return nil, fmt.Errorf("failed to create outbox listener: %w", err)
	}
	s.Outbox = listener

	return s, nil
}

// Run starts the background workers and blocks until ctx is cancelled
func (s *Services) Run(ctx context.Context) {
	go func() {
		if err := s.Gateway.Start(ctx); err != nil {
			log.Error().Err(err).Msg("gateway service failed")
		}
	}()

	if err := s.Outbox.Start(ctx); err != nil {
		log.Error().Err(err).Msg("outbox listener stopped")
	}
}

func (s *Services) Close() {
	s.Timer.Stop()
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			log.Error().Err(err).Msg("close publisher")
		}
	}
}
