package gateway

import (
	"encoding/json"
	"time"

	"github.com/mcdev12/kiosk/go/internal/events"
)

// Event is the base structure for everything broadcast to room members
type Event struct {
	ID        string          `json:"id"`        // Event UUID
	Room      string          `json:"room"`      // Target room, empty for every room
	Type      EventType       `json:"type"`      // Event type
	Timestamp time.Time       `json:"timestamp"` // Event creation time
	Data      json.RawMessage `json:"data"`      // Event-specific payload
}

// EventType represents the type of a broadcast event
type EventType string

const (
	EventTypeClockTick          EventType = "ClockTick"
	EventTypeOrderPlaced        EventType = events.TypeOrderPlaced
	EventTypeOrderStatusChanged EventType = events.TypeOrderStatusChanged
	EventTypePresenceJoined     EventType = events.TypePresenceJoined
	EventTypePresenceLeft       EventType = events.TypePresenceLeft
)

// Event payloads shared with the outbox live in the events package

// ClockTickPayload carries the server's current time so displays age orders
// against one clock
type ClockTickPayload struct {
	Now        time.Time `json:"now"`
	IntervalMs int64     `json:"interval_ms"`
}

// ParseEventPayload parses event data into the appropriate payload struct
func ParseEventPayload(event *Event) (interface{}, error) {
	switch event.Type {
	case EventTypeClockTick:
		var payload ClockTickPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeOrderPlaced:
		var payload events.OrderPlacedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypeOrderStatusChanged:
		var payload events.OrderStatusChangedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	case EventTypePresenceJoined, EventTypePresenceLeft:
		var payload events.PresenceChangedPayload
		if err := json.Unmarshal(event.Data, &payload); err != nil {
			return nil, err
		}
		return payload, nil

	default:
		return nil, nil // Unknown event type
	}
}
