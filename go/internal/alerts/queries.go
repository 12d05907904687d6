package alerts

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
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

const insertAlert = `-- name: InsertAlert :exec
INSERT INTO alerts (id, session_id, owner_username, destination, start_time, end_time, total_seconds, status, message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
`

type InsertAlertParams struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	OwnerUsername string
	Destination   string
	StartTime     time.Time
	EndTime       time.Time
	TotalSeconds  int32
	Status        string
	Message       sql.NullString
}

func (q *Queries) InsertAlert(ctx context.Context, arg InsertAlertParams) error {
	_, err := q.db.ExecContext(ctx, insertAlert,
		arg.ID,
		arg.SessionID,
		arg.OwnerUsername,
		arg.Destination,
		arg.StartTime,
		arg.EndTime,
		arg.TotalSeconds,
		arg.Status,
		arg.Message,
	)
	return err
}

const insertAlertRecipient = `-- name: InsertAlertRecipient :exec
INSERT INTO alert_recipients (id, alert_id, friend_username, notified_status)
VALUES ($1, $2, $3, $4)
`

type InsertAlertRecipientParams struct {
	ID             uuid.UUID
	AlertID        uuid.UUID
	FriendUsername string
	NotifiedStatus string
}

func (q *Queries) InsertAlertRecipient(ctx context.Context, arg InsertAlertRecipientParams) error {
	_, err := q.db.ExecContext(ctx, insertAlertRecipient,
		arg.ID,
		arg.AlertID,
		arg.FriendUsername,
		arg.NotifiedStatus,
	)
	return err
}

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO alert_outbox (id, alert_id, recipient_id, recipient, event_type, payload, metadata)
VALUES ($1, $2, $3, $4, $5, $6, $7)
`

type InsertOutboxEventParams struct {
	ID          uuid.UUID
	AlertID     uuid.UUID
	RecipientID uuid.UUID
	Recipient   string
	EventType   string
	Payload     []byte
	Metadata    pqtype.NullRawMessage
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.AlertID,
		arg.RecipientID,
		arg.Recipient,
		arg.EventType,
		arg.Payload,
		arg.Metadata,
	)
	return err
}

const listAlertsByOwner = `-- name: ListAlertsByOwner :many
SELECT id, session_id, owner_username, destination, start_time, end_time, total_seconds, status, message
FROM alerts
WHERE owner_username = $1
ORDER BY end_time DESC
LIMIT $2
`

type AlertRow struct {
	ID            uuid.UUID
	SessionID     uuid.UUID
	OwnerUsername string
	Destination   string
	StartTime     time.Time
	EndTime       time.Time
	TotalSeconds  int32
	Status        string
	Message       sql.NullString
}

func (q *Queries) ListAlertsByOwner(ctx context.Context, owner string, limit int32) ([]AlertRow, error) {
	rows, err := q.db.QueryContext(ctx, listAlertsByOwner, owner, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []AlertRow
	for rows.Next() {
		var i AlertRow
		if err := rows.Scan(
			&i.ID,
			&i.SessionID,
			&i.OwnerUsername,
			&i.Destination,
			&i.StartTime,
			&i.EndTime,
			&i.TotalSeconds,
			&i.Status,
			&i.Message,
		); err != nil {
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

const listRecipientsByAlertIDs = `-- name: ListRecipientsByAlertIDs :many
SELECT id, alert_id, friend_username, notified_status
FROM alert_recipients
WHERE alert_id = ANY($1::uuid[])
ORDER BY friend_username
`

type RecipientRow struct {
	ID             uuid.UUID
	AlertID        uuid.UUID
	FriendUsername string
	NotifiedStatus string
}

func (q *Queries) ListRecipientsByAlertIDs(ctx context.Context, alertIDs []string) ([]RecipientRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecipientsByAlertIDs, pq.StringArray(alertIDs))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []RecipientRow
	for rows.Next() {
		var i RecipientRow
		if err := rows.Scan(
			&i.ID,
			&i.AlertID,
			&i.FriendUsername,
			&i.NotifiedStatus,
		); err != nil {
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
