// Package realtime holds the presence channel wire protocol and the client
// implementations of presence.Realtime.
package realtime

import (
	"encoding/json"
	"fmt"
)

// MessageType identifies a frame on the realtime socket
type MessageType string

const (
	// Client to server
	TypeJoin      MessageType = "join"
	TypeTrack     MessageType = "track"
	TypeUntrack   MessageType = "untrack"
	TypeLeave     MessageType = "leave"
	TypeHeartbeat MessageType = "heartbeat"

	// Server to client
	TypeReply         MessageType = "reply"
	TypePresenceState MessageType = "presence_state"
	TypePresenceDiff  MessageType = "presence_diff"
	TypeBroadcast     MessageType = "broadcast"
)

// Reply statuses
const (
	ReplyOK    = "ok"
	ReplyError = "error"
)

// Message is the envelope for every frame in both directions
type Message struct {
	Type    MessageType     `json:"type"`
	Topic   string          `json:"topic"`
	Ref     string          `json:"ref,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is sent with TypeJoin
type JoinPayload struct {
	PresenceKey string `json:"presence_key"`
}

// ReplyPayload answers a client frame carrying a ref
type ReplyPayload struct {
	Status string `json:"status"`
	Reason string `json:"reason,omitempty"`
}

// Meta is one tracked payload within a presence slot. Ref identifies the
// connection that tracked it.
type Meta struct {
	Ref     string          `json:"presence_ref"`
	Payload json.RawMessage `json:"payload"`
}

// PresenceDiff carries joins and leaves since the last state
type PresenceDiff struct {
	Joins  PresenceState `json:"joins"`
	Leaves PresenceState `json:"leaves"`
}

// PresenceState maps presence keys to the metas tracked under them
type PresenceState map[string][]Meta

// Track adds or replaces the meta with the same ref under key. It reports
// whether the key was previously empty.
func (s PresenceState) Track(key string, meta Meta) (newKey bool) {
	metas := s[key]
	newKey = len(metas) == 0
	for i, m := range metas {
		if m.Ref == meta.Ref {
			metas[i] = meta
			return false
		}
	}
	s[key] = append(metas, meta)
	return newKey
}

// Untrack removes the meta with ref under key. It returns the removed meta
// and whether the key is now empty.
func (s PresenceState) Untrack(key, ref string) (removed *Meta, emptied bool) {
	metas := s[key]
	for i, m := range metas {
		if m.Ref != ref {
			continue
		}
		removedMeta := m
		metas = append(metas[:i:i], metas[i+1:]...)
		if len(metas) == 0 {
			delete(s, key)
			return &removedMeta, true
		}
		s[key] = metas
		return &removedMeta, false
	}
	return nil, false
}

// Apply merges a diff into the state, leaves first
func (s PresenceState) Apply(diff PresenceDiff) {
	for key, metas := range diff.Leaves {
		for _, m := range metas {
			s.Untrack(key, m.Ref)
		}
	}
	for key, metas := range diff.Joins {
		for _, m := range metas {
			s.Track(key, m)
		}
	}
}

// Clone returns a deep copy of the slot layout. Payload bytes are shared.
func (s PresenceState) Clone() PresenceState {
	out := make(PresenceState, len(s))
	for key, metas := range s {
		out[key] = append([]Meta(nil), metas...)
	}
	return out
}

// Raw flattens the state into key -> payloads
func (s PresenceState) Raw() map[string][]json.RawMessage {
	out := make(map[string][]json.RawMessage, len(s))
	for key, metas := range s {
		for _, m := range metas {
			out[key] = append(out[key], m.Payload)
		}
	}
	return out
}

// NewMessage builds a message with payload marshalled to JSON
func NewMessage(typ MessageType, topic, ref string, payload any) (Message, error) {
	msg := Message{Type: typ, Topic: topic, Ref: ref}
	if payload == nil {
		return msg, nil
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return Message{}, fmt.Errorf("marshal %s payload: %w", typ, err)
	}
	msg.Payload = data
	return msg, nil
}

// Decode unmarshals the message payload into v
func (m Message) Decode(v any) error {
	if len(m.Payload) == 0 {
		return fmt.Errorf("%s message has no payload", m.Type)
	}
	if err := json.Unmarshal(m.Payload, v); err != nil {
		return fmt.Errorf("decode %s payload: %w", m.Type, err)
	}
	return nil
}
