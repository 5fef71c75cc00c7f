package db

import (
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/sqlc-dev/pqtype"
)

type PresenceLog struct {
	ID        uuid.UUID             `json:"id"`
	Room      string                `json:"room"`
	StaffID   string                `json:"staff_id"`
	Action    string                `json:"action"`
	Record    pqtype.NullRawMessage `json:"record"`
	CreatedAt time.Time             `json:"created_at"`
}

type PresenceOutbox struct {
	ID        uuid.UUID             `json:"id"`
	Room      string                `json:"room"`
	EventType string                `json:"event_type"`
	Payload   json.RawMessage       `json:"payload"`
	Metadata  pqtype.NullRawMessage `json:"metadata"`
	CreatedAt time.Time             `json:"created_at"`
	SentAt    sql.NullTime          `json:"sent_at"`
	Attempts  int32                 `json:"attempts"`
	LastError sql.NullString        `json:"last_error"`
}
