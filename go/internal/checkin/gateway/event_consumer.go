package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
)

// JetStreamConsumerConfig holds configuration for the JetStream consumer
type JetStreamConsumerConfig struct {
	URL           string        `yaml:"url"`
	StreamName    string        `yaml:"stream_name"`
	ConsumerName  string        `yaml:"consumer_name"`
	SubjectFilter string        `yaml:"subject_filter"` // e.g., "checkin.alerts.>"
	MaxDeliver    int           `yaml:"max_deliver"`
	AckWait       time.Duration `yaml:"ack_wait"`
	MaxAckPending int           `yaml:"max_ack_pending"`
	MaxReconnects int           `yaml:"max_reconnects"`
	ReconnectWait time.Duration `yaml:"reconnect_wait"`
	// OfflineRetryDelay is how long an alert for an offline watcher waits before redelivery
	OfflineRetryDelay time.Duration `yaml:"offline_retry_delay"`
}

// DefaultJetStreamConsumerConfig returns default JetStream consumer configuration
func DefaultJetStreamConsumerConfig() JetStreamConsumerConfig {
	return JetStreamConsumerConfig{
		URL:           nats.DefaultURL,
		StreamName:    "CHECKIN_ALERTS",
		ConsumerName:  "checkin-gateway",
		SubjectFilter: "checkin.alerts.>",
		MaxDeliver:        10,
		AckWait:           30 * time.Second,
		MaxAckPending:     100,
		MaxReconnects:     -1, // Infinite
		ReconnectWait:     2 * time.Second,
		OfflineRetryDelay: time.Minute,
	}
}

// UserPublisher delivers an envelope to a user's open connections
type UserPublisher interface {
	PublishToUser(username string, env *events.Envelope)
	IsOnline(username string) bool
}

// alertMsg is the part of jetstream.Msg the consumer uses
type alertMsg interface {
	Data() []byte
	Subject() string
	Metadata() (*jetstream.MsgMetadata, error)
	Ack() error
	NakWithDelay(delay time.Duration) error
	Term() error
}

// EventConsumer consumes friend alerts from JetStream and pushes them to watchers
type EventConsumer struct {
	publisher UserPublisher
	nc        *nats.Conn
	js        jetstream.JetStream
	consumer  jetstream.Consumer
	config    JetStreamConsumerConfig
}

// NewEventConsumer creates a new JetStream event consumer
func NewEventConsumer(publisher UserPublisher, config JetStreamConsumerConfig) (*EventConsumer, error) {
	opts := []nats.Option{
		nats.MaxReconnects(config.MaxReconnects),
		nats.ReconnectWait(config.ReconnectWait),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			log.Error().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
		nats.ErrorHandler(func(nc *nats.Conn, sub *nats.Subscription, err error) {
			log.Error().Err(err).Msg("NATS error")
		}),
	}

	nc, err := nats.Connect(config.URL, opts...)
	if err != nil {
		return nil, fmt.Errorf("connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()
		return nil, fmt.Errorf("create JetStream context: %w", err)
	}

	ec := &EventConsumer{
		publisher: publisher,
		nc:        nc,
		js:        js,
		config:    config,
	}

	if err := ec.ensureConsumer(context.Background()); err != nil {
		nc.Close()
		return nil, fmt.Errorf("ensure consumer: %w", err)
	}

	return ec, nil
}

// ensureConsumer creates or gets the JetStream consumer
func (ec *EventConsumer) ensureConsumer(ctx context.Context) error {
	stream, err := ec.js.Stream(ctx, ec.config.StreamName)
	if err != nil {
		return fmt.Errorf("get stream: %w", err)
	}

	consumerConfig := jetstream.ConsumerConfig{
		Name:          ec.config.ConsumerName,
		Durable:       ec.config.ConsumerName,
		Description:   "Check-in gateway friend alert consumer",
		FilterSubject: ec.config.SubjectFilter,
		DeliverPolicy: jetstream.DeliverNewPolicy,
		AckPolicy:     jetstream.AckExplicitPolicy,
		MaxDeliver:    ec.config.MaxDeliver,
		AckWait:       ec.config.AckWait,
		MaxAckPending: ec.config.MaxAckPending,
		ReplayPolicy:  jetstream.ReplayInstantPolicy,
	}

	consumer, err := stream.Consumer(ctx, ec.config.ConsumerName)
	if err != nil {
		consumer, err = stream.CreateConsumer(ctx, consumerConfig)
		if err != nil {
			return fmt.Errorf("create consumer: %w", err)
		}
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("created JetStream consumer")
	} else {
		log.Info().
			Str("consumer", ec.config.ConsumerName).
			Str("stream", ec.config.StreamName).
			Msg("using existing JetStream consumer")
	}

	ec.consumer = consumer
	return nil
}

// Start begins consuming events from JetStream
func (ec *EventConsumer) Start(ctx context.Context) error {
	log.Info().
		Str("consumer", ec.config.ConsumerName).
		Str("stream", ec.config.StreamName).
		Msg("starting JetStream event consumer")

	messageCh := make(chan jetstream.Msg, 100)

	consumeCtx, err := ec.consumer.Consume(func(msg jetstream.Msg) {
		select {
		case messageCh <- msg:
		case <-ctx.Done():
			msg.Nak()
		}
	})
	if err != nil {
		return fmt.Errorf("start consumer: %w", err)
	}
	defer consumeCtx.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("event consumer shutting down")
			return nil
		case msg := <-messageCh:
			ec.handleMessage(msg)
		}
	}
}

// handleMessage pushes one alert and settles the message. Alerts for an
// offline watcher are redelivered until MaxDeliver is reached.
func (ec *EventConsumer) handleMessage(msg alertMsg) {
	env, recipient, err := ConvertAlertMessage(msg.Data())
	if err != nil {
		log.Error().
			Err(err).
			Str("subject", msg.Subject()).
			Msg("failed to process message")
		// Malformed messages will never succeed
		if termErr := msg.Term(); termErr != nil {
			log.Error().Err(termErr).Msg("failed to TERM message")
		}
		return
	}

	if !ec.publisher.IsOnline(recipient) {
		var delivered uint64
		if meta, err := msg.Metadata(); err == nil {
			delivered = meta.NumDelivered
		}
		if ec.config.MaxDeliver > 0 && delivered >= uint64(ec.config.MaxDeliver) {
			log.Warn().
				Str("event_id", env.ID).
				Str("recipient", recipient).
				Uint64("deliveries", delivered).
				Msg("watcher never came online, dropping friend alert")
			if termErr := msg.Term(); termErr != nil {
				log.Error().Err(termErr).Msg("failed to TERM message")
			}
			return
		}
		log.Debug().
			Str("event_id", env.ID).
			Str("recipient", recipient).
			Uint64("deliveries", delivered).
			Msg("watcher offline, friend alert will be redelivered")
		delay := ec.config.OfflineRetryDelay
		if delay <= 0 {
			delay = DefaultJetStreamConsumerConfig().OfflineRetryDelay
		}
		if nakErr := msg.NakWithDelay(delay); nakErr != nil {
			log.Error().Err(nakErr).Msg("failed to NAK message")
		}
		return
	}

	ec.publisher.PublishToUser(recipient, env)
	log.Info().
		Str("event_id", env.ID).
		Str("recipient", recipient).
		Msg("friend alert pushed to WebSocket clients")

	if ackErr := msg.Ack(); ackErr != nil {
		log.Error().Err(ackErr).Msg("failed to ACK message")
	}
}

// ConvertAlertMessage decodes a relay message into the envelope sent to the recipient
func ConvertAlertMessage(data []byte) (*events.Envelope, string, error) {
	var msg events.AlertMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, "", fmt.Errorf("unmarshal alert message: %w", err)
	}
	if msg.Recipient == "" {
		return nil, "", fmt.Errorf("alert message %s has no recipient", msg.EventID)
	}
	if events.EventType(msg.EventType) != events.EventFriendAlert {
		return nil, "", fmt.Errorf("unknown event type: %s", msg.EventType)
	}
	if len(msg.Payload) == 0 {
		return nil, "", fmt.Errorf("alert message %s has no payload", msg.EventID)
	}

	timestamp := msg.Timestamp
	if timestamp.IsZero() {
		timestamp = time.Now().UTC()
	}

	return &events.Envelope{
		ID:        msg.EventID,
		Type:      events.EventFriendAlert,
		Timestamp: timestamp,
		Data:      msg.Payload,
	}, msg.Recipient, nil
}

// Stop gracefully shuts down the event consumer
func (ec *EventConsumer) Stop() error {
	log.Info().Msg("stopping event consumer")

	if ec.nc != nil {
		ec.nc.Close()
	}

	return nil
}
