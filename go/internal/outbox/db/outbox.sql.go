package db

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

const countPendingOutbox = `-- name: CountPendingOutbox :one
SELECT count(*) FROM presence_outbox WHERE sent_at IS NULL
`

func (q *Queries) CountPendingOutbox(ctx context.Context) (int64, error) {
	row := q.db.QueryRowContext(ctx, countPendingOutbox)
	var count int64
	err := row.Scan(&count)
	return count, err
}

const fetchOutboxByID = `-- name: FetchOutboxByID :one
SELECT id, room, event_type, payload, metadata, created_at, sent_at, attempts, last_error FROM presence_outbox
WHERE id = $1 AND sent_at IS NULL
`

func (q *Queries) FetchOutboxByID(ctx context.Context, id uuid.UUID) (PresenceOutbox, error) {
	row := q.db.QueryRowContext(ctx, fetchOutboxByID, id)
	var i PresenceOutbox
	err := row.Scan(
		&i.ID,
		&i.Room,
		&i.EventType,
		&i.Payload,
		&i.Metadata,
		&i.CreatedAt,
		&i.SentAt,
		&i.Attempts,
		&i.LastError,
	)
	return i, err
}

const fetchUnsentOutbox = `-- name: FetchUnsentOutbox :many
SELECT id, room, event_type, payload, metadata, created_at, sent_at, attempts, last_error FROM presence_outbox
WHERE sent_at IS NULL
ORDER BY created_at
LIMIT $1
`

func (q *Queries) FetchUnsentOutbox(ctx context.Context, limit int32) ([]PresenceOutbox, error) {
	rows, err := q.db.QueryContext(ctx, fetchUnsentOutbox, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []PresenceOutbox
	for rows.Next() {
		var i PresenceOutbox
		if err := rows.Scan(
			&i.ID,
			&i.Room,
			&i.EventType,
			&i.Payload,
			&i.Metadata,
			&i.CreatedAt,
			&i.SentAt,
			&i.Attempts,
			&i.LastError,
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

const insertOutboxEvent = `-- name: InsertOutboxEvent :exec
INSERT INTO presence_outbox (id, room, event_type, payload, metadata)
VALUES ($1, $2, $3, $4, $5)
`

type InsertOutboxEventParams struct {
	ID        uuid.UUID             `json:"id"`
	Room      string                `json:"room"`
	EventType string                `json:"event_type"`
	Payload   json.RawMessage       `json:"payload"`
	Metadata  pqtype.NullRawMessage `json:"metadata"`
}

func (q *Queries) InsertOutboxEvent(ctx context.Context, arg InsertOutboxEventParams) error {
	_, err := q.db.ExecContext(ctx, insertOutboxEvent,
		arg.ID,
		arg.Room,
		arg.EventType,
		arg.Payload,
		arg.Metadata,
	)
	return err
}

const insertPresenceLog = `-- name: InsertPresenceLog :exec
INSERT INTO presence_log (room, staff_id, action, record)
VALUES ($1, $2, $3, $4)
`

type InsertPresenceLogParams struct {
	Room    string                `json:"room"`
	StaffID string                `json:"staff_id"`
	Action  string                `json:"action"`
	Record  pqtype.NullRawMessage `json:"record"`
}

func (q *Queries) InsertPresenceLog(ctx context.Context, arg InsertPresenceLogParams) error {
	_, err := q.db.ExecContext(ctx, insertPresenceLog,
		arg.Room,
		arg.StaffID,
		arg.Action,
		arg.Record,
	)
	return err
}

const markOutboxSent = `-- name: MarkOutboxSent :exec
UPDATE presence_outbox SET sent_at = now()
WHERE id = $1
`

func (q *Queries) MarkOutboxSent(ctx context.Context, id uuid.UUID) error {
	_, err := q.db.ExecContext(ctx, markOutboxSent, id)
	return err
}

const recordOutboxFailure = `-- name: RecordOutboxFailure :exec
UPDATE presence_outbox SET attempts = attempts + 1, last_error = $2
WHERE id = $1
`

type RecordOutboxFailureParams struct {
	ID        uuid.UUID      `json:"id"`
	LastError sql.NullString `json:"last_error"`
}

func (q *Queries) RecordOutboxFailure(ctx context.Context, arg RecordOutboxFailureParams) error {
	_, err := q.db.ExecContext(ctx, recordOutboxFailure, arg.ID, arg.LastError)
	return err
}
