package outbox

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/events"
	"github.com/mcdev12/kiosk/go/internal/outbox/db"
	"github.com/mcdev12/kiosk/go/internal/sqlutil"
)

const (
	actionJoin  = "join"
	actionLeave = "leave"
)

// App records presence transitions. The audit row and the outbox row are
// written in one transaction so the relay never publishes a change that was
// not logged.
type App struct {
	db    *sql.DB
	clock clockwork.Clock
}

// NewApp creates a new outbox App
func NewApp(database *sql.DB, clock clockwork.Clock) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &App{
		db:    database,
		clock: clock,
	}
}

// RecordJoin records key entering room with the record it tracked
func (a *App) RecordJoin(ctx context.Context, room, key string, record json.RawMessage) error {
	return a.record(ctx, room, key, actionJoin, events.TypePresenceJoined, record)
}

// RecordLeave records key leaving room
func (a *App) RecordLeave(ctx context.Context, room, key string) error {
	return a.record(ctx, room, key, actionLeave, events.TypePresenceLeft, nil)
}

func (a *App) record(ctx context.Context, room, key, action, eventType string, record json.RawMessage) error {
	if room == "" || key == "" {
		return fmt.Errorf("room and presence key are required")
	}

	payload, err := json.Marshal(events.PresenceChangedPayload{
		Room:      room,
		StaffID:   key,
		Record:    record,
		ChangedAt: a.clock.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", eventType, err)
	}
	metadata, err := json.Marshal(map[string]string{"source": "gateway", "action": action})
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	eventID := uuid.New()
	err = sqlutil.Run(ctx, a.db, newTxQueries, func(q *db.Queries) error {
		if err := q.InsertPresenceLog(ctx, db.InsertPresenceLogParams{
			Room:    room,
			StaffID: key,
			Action:  action,
			Record:  sqlutil.ToNullRawMessage(record),
		}); err != nil {
			return fmt.Errorf("insert presence log: %w", err)
		}
		if err := q.InsertOutboxEvent(ctx, db.InsertOutboxEventParams{
			ID:        eventID,
			Room:      room,
			EventType: eventType,
			Payload:   payload,
			Metadata:  sqlutil.ToNullRawMessage(metadata),
		}); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record %s: %w", eventType, err)
	}

	log.Info().
		Str("event_id", eventID.String()).
		Str("room", room).
		Str("staff_id", key).
		Str("event_type", eventType).
		Msg("outbox event inserted")
	return nil
}

func newTxQueries(tx *sql.Tx) *db.Queries {
	return db.New(tx)
}
