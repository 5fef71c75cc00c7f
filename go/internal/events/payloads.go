package events

import (
	"encoding/json"
	"time"
)

// Event payload types shared between the outbox relay and the gateway

// Event type names as they appear on the bus
const (
	TypeOrderPlaced        = "OrderPlaced"
	TypeOrderStatusChanged = "OrderStatusChanged"
	TypePresenceJoined     = "PresenceJoined"
	TypePresenceLeft       = "PresenceLeft"
)

// Envelope wraps every event published to the bus
type Envelope struct {
	EventID   string          `json:"eventId"`
	EventType string          `json:"eventType"`
	Room      string          `json:"room"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
}

// OrderPlacedPayload is published when a kiosk order reaches the kitchen
type OrderPlacedPayload struct {
	OrderID     string    `json:"order_id"`
	OrderNumber int       `json:"order_number"`
	TableNumber string    `json:"table_number,omitempty"`
	ItemCount   int       `json:"item_count"`
	PlacedAt    time.Time `json:"placed_at"`
}

// OrderStatusChangedPayload is published on every kitchen status change
type OrderStatusChangedPayload struct {
	OrderID   string    `json:"order_id"`
	Status    string    `json:"status"`
	ChangedBy string    `json:"changed_by,omitempty"`
	ChangedAt time.Time `json:"changed_at"`
}

// PresenceChangedPayload is the payload for PresenceJoined and PresenceLeft
type PresenceChangedPayload struct {
	Room      string          `json:"room"`
	StaffID   string          `json:"staff_id"`
	Record    json.RawMessage `json:"record,omitempty"`
	ChangedAt time.Time       `json:"changed_at"`
}
