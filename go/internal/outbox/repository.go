package outbox

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/mcdev12/kiosk/go/internal/outbox/db"
	"github.com/mcdev12/kiosk/go/internal/sqlutil"
)

// Querier defines what the repository needs from the database layer
type Querier interface {
	CountPendingOutbox(ctx context.Context) (int64, error)
	FetchOutboxByID(ctx context.Context, id uuid.UUID) (db.PresenceOutbox, error)
	FetchUnsentOutbox(ctx context.Context, limit int32) ([]db.PresenceOutbox, error)
	MarkOutboxSent(ctx context.Context, id uuid.UUID) error
	RecordOutboxFailure(ctx context.Context, arg db.RecordOutboxFailureParams) error
}

// Repository reads and settles outbox rows for the relay
type Repository struct {
	queries Querier
}

// NewRepository creates a new outbox repository
func NewRepository(queries Querier) *Repository {
	return &Repository{
		queries: queries,
	}
}

// FetchByID returns an unsent event
func (r *Repository) FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error) {
	row, err := r.queries.FetchOutboxByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to fetch outbox event by ID: %w", err)
	}
	event := rowToEvent(row)
	return &event, nil
}

// FetchUnsent returns up to limit unsent events, oldest first
func (r *Repository) FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error) {
	rows, err := r.queries.FetchUnsentOutbox(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	events := make([]OutboxEvent, len(rows))
	for i, row := range rows {
		events[i] = rowToEvent(row)
	}
	return events, nil
}

// MarkSent settles an event
func (r *Repository) MarkSent(ctx context.Context, id uuid.UUID) error {
	if err := r.queries.MarkOutboxSent(ctx, id); err != nil {
		return fmt.Errorf("failed to mark outbox event as sent: %w", err)
	}
	return nil
}

// RecordFailure bumps the attempt counter and keeps the last error
func (r *Repository) RecordFailure(ctx context.Context, id uuid.UUID, cause error) error {
	msg := cause.Error()
	err := r.queries.RecordOutboxFailure(ctx, db.RecordOutboxFailureParams{
		ID:        id,
		LastError: sqlutil.ToSqlString(&msg),
	})
	if err != nil {
		return fmt.Errorf("failed to record outbox failure: %w", err)
	}
	return nil
}

// CountPending returns the number of unsent events
func (r *Repository) CountPending(ctx context.Context) (int64, error) {
	n, err := r.queries.CountPendingOutbox(ctx)
	if err != nil {
		return 0, fmt.Errorf("failed to count pending outbox events: %w", err)
	}
	return n, nil
}

func rowToEvent(row db.PresenceOutbox) OutboxEvent {
	return OutboxEvent{
		ID:        row.ID,
		Room:      row.Room,
		EventType: row.EventType,
		Payload:   row.Payload,
		Metadata:  sqlutil.FromNullRawMessage(row.Metadata),
		CreatedAt: row.CreatedAt,
		SentAt:    sqlutil.FromSqlTime(row.SentAt),
		Attempts:  int(row.Attempts),
		LastError: sqlutil.FromSqlString(row.LastError, ""),
	}
}
