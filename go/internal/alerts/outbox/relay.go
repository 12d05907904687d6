package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// RelayConfig controls how outbox rows are published
type RelayConfig struct {
	MaxRetries  int           `yaml:"max_retries"`  // in-pass retries per row
	RetryDelay  time.Duration `yaml:"retry_delay"`  // grows linearly per retry
	MaxAttempts int           `yaml:"max_attempts"` // passes before the recipient is skipped
	BatchSize   int           `yaml:"batch_size"`
}

func DefaultRelayConfig() RelayConfig {
	return RelayConfig{
		MaxRetries:  3,
		RetryDelay:  200 * time.Millisecond,
		MaxAttempts: 5,
		BatchSize:   100,
	}
}

// Relay moves committed outbox rows to the publisher and settles them
type Relay struct {
	store     Store
	publisher Publisher
	cfg       RelayConfig
}

func NewRelay(store Store, publisher Publisher, cfg RelayConfig) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		cfg:       cfg,
	}
}

// HandleNotification handles a pg listen notification. Extra is the outbox row ID.
func (r *Relay) HandleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := r.store.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrEventNotFound) {
			// settled by the fallback poll
			log.Debug().Str("event_id", id.String()).Msg("outbox event already settled")
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	return r.deliver(ctx, *event)
}

// ProcessUnsent publishes a batch of unsent rows and returns how many were delivered
func (r *Relay) ProcessUnsent(ctx context.Context) (int, error) {
	unsent, err := r.store.FetchUnsent(ctx, r.cfg.BatchSize)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	delivered := 0
	for _, event := range unsent {
		if ctx.Err() != nil {
			return delivered, ctx.Err()
		}
		if err := r.deliver(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to deliver outbox event")
			continue
		}
		delivered++
	}
	return delivered, nil
}

func (r *Relay) deliver(ctx context.Context, event OutboxEvent) error {
	if err := r.publishWithRetry(ctx, event); err != nil {
		if ctx.Err() != nil {
			return err
		}
		final := event.Attempts+1 >= r.cfg.MaxAttempts
		if recErr := r.store.RecordFailure(ctx, event, err, final); recErr != nil {
			log.Error().Err(recErr).Str("event_id", event.ID.String()).Msg("failed to record outbox failure")
		}
		if final {
			log.Warn().
				Str("event_id", event.ID.String()).
				Str("recipient", event.Recipient).
				Int("attempts", event.Attempts+1).
				Msg("giving up on friend alert")
		}
		return fmt.Errorf("failed to publish event: %w", err)
	}

	if err := r.store.MarkDelivered(ctx, event); err != nil {
		return err
	}

	log.Info().
		Str("event_id", event.ID.String()).
		Str("recipient", event.Recipient).
		Msg("published and marked event as sent")
	return nil
}

// publishWithRetry attempts to publish an outbox event with a given retry delay and max retries.
func (r *Relay) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
