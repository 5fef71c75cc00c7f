package presence

import (
	"context"
	"encoding/json"
	"time"
)

const (
	// IdentityKey is the local store key holding the signed-in kitchen staff member
	IdentityKey = "kitchen_user"
	// TokenKey is the local store key holding the staff member's access token
	TokenKey = "kitchen_token"

	// DefaultRoom is the room every kitchen station announces itself in
	DefaultRoom = "kitchen-presence"

	// TimestampLayout is ISO-8601 in UTC with millisecond precision
	TimestampLayout = "2006-01-02T15:04:05.000Z07:00"
)

// Identity is the staff member a beacon announces
type Identity struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Valid reports whether the identity carries a usable presence key
func (i *Identity) Valid() bool {
	return i != nil && i.ID != ""
}

// Record is the payload tracked on the presence channel
type Record struct {
	StaffID  string `json:"staffId"`
	Username string `json:"username"`
	OnlineAt string `json:"online_at"`
}

// NewRecord builds the presence payload for identity at t
func NewRecord(identity Identity, t time.Time) Record {
	return Record{
		StaffID:  identity.ID,
		Username: identity.Username,
		OnlineAt: t.UTC().Format(TimestampLayout),
	}
}

// Status is reported to a channel's subscribe callback
type Status string

const (
	StatusSubscribed   Status = "SUBSCRIBED"
	StatusTimedOut     Status = "TIMED_OUT"
	StatusClosed       Status = "CLOSED"
	StatusChannelError Status = "CHANNEL_ERROR"
)

// Event kinds and presence sub-events a channel can be listened on
const (
	KindPresence  = "presence"
	KindBroadcast = "broadcast"

	EventSync  = "sync"
	EventJoin  = "join"
	EventLeave = "leave"
)

// Filter narrows the events delivered to a handler
type Filter struct {
	Event string
}

// Event is delivered to handlers registered with Channel.On
type Event struct {
	Kind    string
	Name    string
	Key     string
	Payload json.RawMessage
	State   map[string][]json.RawMessage
}

// Handler receives channel events
type Handler func(Event)

// ChannelOptions configures a channel at creation
type ChannelOptions struct {
	// PresenceKey identifies this participant in the room's presence state.
	// Two participants sharing a key occupy one presence slot.
	PresenceKey string
}

// Channel is a named real-time session scoped to a room
type Channel interface {
	// Name returns the room the channel was created for
	Name() string
	// On registers handler for events of kind matching filter. Must be called before Subscribe.
	On(kind string, filter Filter, handler Handler) Channel
	// Subscribe connects asynchronously and reports progress through callback
	Subscribe(callback func(status Status, err error)) Channel
	// Track sends a presence payload for this channel's key
	Track(ctx context.Context, payload any) error
}

// Realtime creates and releases channels. Channel creation is synchronous and local.
type Realtime interface {
	Channel(name string, opts ChannelOptions) Channel
	RemoveChannel(ch Channel) error
}
