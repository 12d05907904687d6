package alerts

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"

	"github.com/mcdev12/backtrack/go/internal/models"
	"github.com/mcdev12/backtrack/go/internal/sqlutil"
)

// Repository implements alert history data access on Postgres
type Repository struct {
	db      *sql.DB
	queries *Queries
}

// NewRepository creates a new alerts repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: New(db),
	}
}

// SaveAlert writes the alert, its recipients and the outbox rows in one transaction
func (r *Repository) SaveAlert(ctx context.Context, alert *models.Alert, outbox []OutboxRecord) error {
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *Queries) error {
		err := q.InsertAlert(ctx, InsertAlertParams{
			ID:            alert.ID,
			SessionID:     alert.SessionID,
			OwnerUsername: alert.OwnerUsername,
			Destination:   alert.Destination,
			StartTime:     alert.StartTime,
			EndTime:       alert.EndTime,
			TotalSeconds:  int32(alert.TotalTime / time.Second),
			Status:        string(alert.Status),
			Message:       sqlutil.ToSqlString(alert.Message),
		})
		if err != nil {
			return fmt.Errorf("insert alert: %w", err)
		}

		for _, rcpt := range alert.Recipients {
			err := q.InsertAlertRecipient(ctx, InsertAlertRecipientParams{
				ID:             rcpt.ID,
				AlertID:        alert.ID,
				FriendUsername: rcpt.FriendUsername,
				NotifiedStatus: string(rcpt.NotifiedStatus),
			})
			if err != nil {
				return fmt.Errorf("insert recipient %s: %w", rcpt.FriendUsername, err)
			}
		}

		for _, rec := range outbox {
			err := q.InsertOutboxEvent(ctx, InsertOutboxEventParams{
				ID:          rec.ID,
				AlertID:     rec.AlertID,
				RecipientID: rec.RecipientID,
				Recipient:   rec.Recipient,
				EventType:   rec.EventType,
				Payload:     rec.Payload,
				Metadata: pqtype.NullRawMessage{
					RawMessage: rec.Metadata,
					Valid:      len(rec.Metadata) > 0,
				},
			})
			if err != nil {
				return fmt.Errorf("insert outbox event for %s: %w", rec.Recipient, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save alert: %w", err)
	}
	return nil
}

// ListByOwner returns the owner's most recent alerts with their recipients
func (r *Repository) ListByOwner(ctx context.Context, owner string, limit int) ([]models.Alert, error) {
	rows, err := r.queries.ListAlertsByOwner(ctx, owner, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	if len(rows) == 0 {
		return []models.Alert{}, nil
	}

	ids := make([]string, len(rows))
	for i, row := range rows {
		ids[i] = row.ID.String()
	}
	recipients, err := r.queries.ListRecipientsByAlertIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to list alert recipients: %w", err)
	}

	byAlert := make(map[uuid.UUID][]models.AlertRecipient, len(rows))
	for _, rcpt := range recipients {
		byAlert[rcpt.AlertID] = append(byAlert[rcpt.AlertID], models.AlertRecipient{
			ID:             rcpt.ID,
			AlertID:        rcpt.AlertID,
			FriendUsername: rcpt.FriendUsername,
			NotifiedStatus: models.NotifiedStatus(rcpt.NotifiedStatus),
		})
	}

	alerts := make([]models.Alert, len(rows))
	for i, row := range rows {
		alerts[i] = models.Alert{
			ID:            row.ID,
			SessionID:     row.SessionID,
			OwnerUsername: row.OwnerUsername,
			Destination:   row.Destination,
			StartTime:     row.StartTime,
			EndTime:       row.EndTime,
			TotalTime:     time.Duration(row.TotalSeconds) * time.Second,
			Status:        models.AlertStatus(row.Status),
			Message:       sqlutil.FromSqlString(row.Message, ""),
			Recipients:    byAlert[row.ID],
		}
	}
	return alerts, nil
}
