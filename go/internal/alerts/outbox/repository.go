package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/backtrack/go/internal/models"
	"github.com/mcdev12/backtrack/go/internal/sqlutil"
)

// Repository implements Store on Postgres
type Repository struct {
	db      *sql.DB
	queries *Queries
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: New(db),
	}
}

func (r *Repository) FetchUnsent(ctx context.Context, limit int) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, int32(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = toEvent(row)
	}
	return events, nil
}

func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEventNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	event := toEvent(row)
	return &event, nil
}

func (r *Repository) MarkDelivered(ctx context.Context, event OutboxEvent) error {
	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *Queries) error {
		if err := q.MarkOutboxSent(ctx, event.ID); err != nil {
			return err
		}
		return q.SetRecipientStatus(ctx, event.RecipientID, string(models.NotifiedStatusDelivered))
	})
	if err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

func (r *Repository) RecordFailure(ctx context.Context, event OutboxEvent, cause error, final bool) error {
	params := RecordOutboxFailureParams{
		ID:        event.ID,
		LastError: sqlutil.ToSqlString(cause.Error()),
	}
	if final {
		now := time.Now().UTC()
		params.FailedAt = sqlutil.ToSqlTime(&now)
	}

	err := sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *Queries) error {
		if err := q.RecordOutboxFailure(ctx, params); err != nil {
			return err
		}
		if !final {
			return nil
		}
		return q.SetRecipientStatus(ctx, event.RecipientID, string(models.NotifiedStatusSkipped))
	})
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

func toEvent(row OutboxRow) OutboxEvent {
	return OutboxEvent{
		ID:          row.ID,
		AlertID:     row.AlertID,
		RecipientID: row.RecipientID,
		Recipient:   row.Recipient,
		EventType:   row.EventType,
		Payload:     row.Payload,
		Metadata:    row.Metadata,
		Attempts:    int(row.Attempts),
		CreatedAt:   row.CreatedAt,
	}
}
