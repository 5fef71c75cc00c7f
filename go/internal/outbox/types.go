package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/mcdev12/kiosk/go/internal/events"
)

// ErrNotFound is returned when an outbox row is missing or already sent
var ErrNotFound = errors.New("outbox event not found or already sent")

// OutboxEvent represents an outbox event for the application layer
type OutboxEvent struct {
	ID        uuid.UUID       `json:"id"`
	Room      string          `json:"room"`
	EventType string          `json:"event_type"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  json.RawMessage `json:"metadata,omitempty"`
	CreatedAt time.Time       `json:"created_at"`
	SentAt    *time.Time      `json:"sent_at,omitempty"`
	Attempts  int             `json:"attempts"`
	LastError string          `json:"last_error,omitempty"`
}

// Envelope wraps the event the way every bus consumer expects it
func (e OutboxEvent) Envelope() events.Envelope {
	return events.Envelope{
		EventID:   e.ID.String(),
		EventType: e.EventType,
		Room:      e.Room,
		Timestamp: e.CreatedAt,
		Payload:   e.Payload,
	}
}

// Publisher delivers an outbox event to a bus
type Publisher interface {
	Publish(ctx context.Context, event OutboxEvent) error
}
