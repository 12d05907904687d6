package outbox

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

type Queries struct {
	db DBTX
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type OutboxRow struct {
	ID          uuid.UUID
	AlertID     uuid.UUID
	RecipientID uuid.UUID
	Recipient   string
	EventType   string
	Payload     []byte
	Metadata    pqtype.NullRawMessage
	Attempts    int32
	CreatedAt   time.Time
}

func scanOutboxRow(row interface{ Scan(...any) error }) (OutboxRow, error) {
	var i OutboxRow
	err := row.Scan(
		&i.ID,
		&i.AlertID,
		&i.RecipientID,
		&i.Recipient,
		&i.EventType,
		&i.Payload,
		&i.Metadata,
		&i.Attempts,
		&i.CreatedAt,
	)
	return i, err
}

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT id, alert_id, recipient_id, recipient, event_type, payload, metadata, attempts, created_at
FROM alert_outbox
WHERE id = $1 AND sent_at IS NULL AND failed_at IS NULL
`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (OutboxRow, error) {
	row := q.db.QueryRowContext(ctx, fetchOutboxByID, id)
	return scanOutboxRow(row)
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT id, alert_id, recipient_id, recipient, event_type, payload, metadata, attempts, created_at
FROM alert_outbox
WHERE sent_at IS NULL AND failed_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]OutboxRow, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []OutboxRow
	for rows.Next() {
		i, err := scanOutboxRow(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE alert_outbox SET sent_at = now(), attempts = attempts + 1 WHERE id = $1
`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const recordOutboxFailure = `-- name: RecordOutboxFailure :exec
UPDATE alert_outbox
SET attempts = attempts + 1, last_error = $2, failed_at = $3
WHERE id = $1
`

type RecordOutboxFailureParams struct {
	ID        uuid.UUID
	LastError sql.NullString
	FailedAt  sql.NullTime
}

func (q *Queries) RecordOutboxFailure(ctx context.Context, arg RecordOutboxFailureParams) error {
	_, err := q.db.ExecContext(ctx, recordOutboxFailure, arg.ID, arg.LastError, arg.FailedAt)
	return err
}

const setRecipientStatus = `-- name: SetRecipientStatus :exec
UPDATE alert_recipients SET notified_status = $2, updated_at = now() WHERE id = $1
`

func (q *Queries) SetRecipientStatus(ctx context.Context, id uuid.UUID, status string) error {
	_, err := q.db.ExecContext(ctx, setRecipientStatus, id, status)
	return err
}
