package alerts

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/backtrack/go/internal/checkin/events"
	"github.com/mcdev12/backtrack/go/internal/models"
)

// AlertsRepository defines what the app layer needs from the repository
type AlertsRepository interface {
	SaveAlert(ctx context.Context, alert *models.Alert, outbox []OutboxRecord) error
	ListByOwner(ctx context.Context, owner string, limit int) ([]models.Alert, error)
}

// App records finished check-in sessions and queues friend alerts
type App struct {
	repo AlertsRepository
}

// NewApp creates a new alerts App
func NewApp(repo AlertsRepository) *App {
	return &App{repo: repo}
}

// NotifyExpired records an expired session and queues one friendAlert per watcher.
// Delivery happens through the outbox relay once the transaction commits.
func (a *App) NotifyExpired(ctx context.Context, session models.CheckInSession, expiredAt time.Time) error {
	alert := newAlert(session, expiredAt, models.AlertStatusExpired, models.NotifiedStatusPending)
	alert.Message = fmt.Sprintf("%s did not check in at %s", session.Owner, session.Destination)

	payload, err := json.Marshal(events.FriendAlertPayload{
		AlertID:       alert.ID.String(),
		OwnerUsername: session.Owner,
		Destination:   session.Destination,
		ExpiredAt:     expiredAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("failed to marshal friend alert: %w", err)
	}
	metadata, err := json.Marshal(OutboxMetadata{
		SessionID:     session.ID.String(),
		OwnerUsername: session.Owner,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal outbox metadata: %w", err)
	}

	outbox := make([]OutboxRecord, 0, len(alert.Recipients))
	for _, rcpt := range alert.Recipients {
		outbox = append(outbox, OutboxRecord{
			ID:          uuid.New(),
			AlertID:     alert.ID,
			RecipientID: rcpt.ID,
			Recipient:   rcpt.FriendUsername,
			EventType:   string(events.EventFriendAlert),
			Payload:     payload,
			Metadata:    metadata,
		})
	}

	if err := a.repo.SaveAlert(ctx, alert, outbox); err != nil {
		return err
	}

	log.Info().
		Str("alert_id", alert.ID.String()).
		Str("owner", session.Owner).
		Int("recipients", len(outbox)).
		Msg("queued friend alerts")
	return nil
}

// RecordCancelled records a session the owner ended in time. Watchers are not notified.
func (a *App) RecordCancelled(ctx context.Context, session models.CheckInSession, cancelledAt time.Time) error {
	alert := newAlert(session, cancelledAt, models.AlertStatusCancelled, models.NotifiedStatusSkipped)
	alert.Message = fmt.Sprintf("%s checked in at %s", session.Owner, session.Destination)

	if err := a.repo.SaveAlert(ctx, alert, nil); err != nil {
		return err
	}

	log.Debug().
		Str("alert_id", alert.ID.String()).
		Str("owner", session.Owner).
		Msg("recorded cancelled session")
	return nil
}

// ListHistory returns the owner's most recent finished sessions.
// A zero limit means DefaultHistoryLimit; larger limits are capped at MaxHistoryLimit.
func (a *App) ListHistory(ctx context.Context, owner string, limit int) ([]models.Alert, error) {
	switch {
	case limit < 0:
		return nil, ErrInvalidLimit
	case limit == 0:
		limit = DefaultHistoryLimit
	case limit > MaxHistoryLimit:
		limit = MaxHistoryLimit
	}

	alerts, err := a.repo.ListByOwner(ctx, owner, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	return alerts, nil
}

func newAlert(session models.CheckInSession, endTime time.Time, status models.AlertStatus, recipientStatus models.NotifiedStatus) *models.Alert {
	total := endTime.Sub(session.StartedAt)
	if total < 0 {
		total = 0
	}

	alert := &models.Alert{
		ID:            uuid.New(),
		SessionID:     session.ID,
		OwnerUsername: session.Owner,
		Destination:   session.Destination,
		StartTime:     session.StartedAt,
		EndTime:       endTime,
		TotalTime:     total.Truncate(time.Second),
		Status:        status,
		Recipients:    make([]models.AlertRecipient, 0, len(session.Watchers)),
	}
	for _, w := range session.Watchers {
		alert.Recipients = append(alert.Recipients, models.AlertRecipient{
			ID:             uuid.New(),
			AlertID:        alert.ID,
			FriendUsername: w,
			NotifiedStatus: recipientStatus,
		})
	}
	return alert
}
