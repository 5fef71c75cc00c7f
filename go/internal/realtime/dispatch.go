package realtime

import (
	"encoding/json"
	"sync"

	"github.com/mcdev12/kiosk/go/internal/presence"
)

type registration struct {
	kind    string
	filter  presence.Filter
	handler presence.Handler
}

// listeners keeps a channel's handler registrations and its view of the
// room's presence state. Both transports share it.
type listeners struct {
	mu    sync.Mutex
	regs  []registration
	state PresenceState
}

func newListeners() *listeners {
	return &listeners{state: make(PresenceState)}
}

func (l *listeners) add(kind string, filter presence.Filter, handler presence.Handler) {
	if handler == nil {
		return
	}
	l.mu.Lock()
	l.regs = append(l.regs, registration{kind: kind, filter: filter, handler: handler})
	l.mu.Unlock()
}

func (l *listeners) matching(kind, event string) []presence.Handler {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []presence.Handler
	for _, r := range l.regs {
		if r.kind != kind {
			continue
		}
		if r.filter.Event != "" && r.filter.Event != "*" && r.filter.Event != event {
			continue
		}
		out = append(out, r.handler)
	}
	return out
}

func (l *listeners) emit(ev presence.Event) {
	for _, h := range l.matching(ev.Kind, ev.Name) {
		h(ev)
	}
}

// replaceState installs a full presence state and fires sync
func (l *listeners) replaceState(state PresenceState) {
	l.mu.Lock()
	l.state = state.Clone()
	raw := l.state.Raw()
	l.mu.Unlock()

	l.emit(presence.Event{Kind: presence.KindPresence, Name: presence.EventSync, State: raw})
}

// applyDiff merges a diff, fires join/leave per key and then sync
func (l *listeners) applyDiff(diff PresenceDiff) {
	l.mu.Lock()
	l.state.Apply(diff)
	raw := l.state.Raw()
	l.mu.Unlock()

	for key, metas := range diff.Leaves {
		for _, m := range metas {
			l.emit(presence.Event{Kind: presence.KindPresence, Name: presence.EventLeave, Key: key, Payload: m.Payload})
		}
	}
	for key, metas := range diff.Joins {
		for _, m := range metas {
			l.emit(presence.Event{Kind: presence.KindPresence, Name: presence.EventJoin, Key: key, Payload: m.Payload})
		}
	}
	l.emit(presence.Event{Kind: presence.KindPresence, Name: presence.EventSync, State: raw})
}

// broadcast fires broadcast handlers filtered on the payload's "type"
func (l *listeners) broadcast(payload json.RawMessage) {
	var head struct {
		Type string `json:"type"`
	}
	_ = json.Unmarshal(payload, &head)
	l.emit(presence.Event{Kind: presence.KindBroadcast, Name: head.Type, Payload: payload})
}

func (l *listeners) snapshot() PresenceState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state.Clone()
}
