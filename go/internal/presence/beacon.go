package presence

import (
	"context"
	"sync"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

// Beacon announces a staff member's online status to a shared room for as
// long as its session stays mounted.
type Beacon struct {
	realtime Realtime
	room     string
	clock    clockwork.Clock
}

// BeaconOption configures a Beacon
type BeaconOption func(*Beacon)

// WithRoom overrides DefaultRoom
func WithRoom(room string) BeaconOption {
	return func(b *Beacon) {
		if room != "" {
			b.room = room
		}
	}
}

// WithBeaconClock sets the clock used to stamp presence records
func WithBeaconClock(c clockwork.Clock) BeaconOption {
	return func(b *Beacon) {
		if c != nil {
			b.clock = c
		}
	}
}

// NewBeacon creates a new Beacon on top of rt
func NewBeacon(rt Realtime, opts ...BeaconOption) *Beacon {
	b := &Beacon{
		realtime: rt,
		room:     DefaultRoom,
		clock:    clockwork.NewRealClock(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Room returns the room this beacon announces in
func (b *Beacon) Room() string {
	return b.room
}

// Session is one mounted lifetime of a beacon
type Session struct {
	beacon   *Beacon
	identity Identity
	channel  Channel

	ctx    context.Context
	cancel context.CancelFunc

	mu      sync.Mutex
	closed  bool
	tracked bool
	once    sync.Once
}

// Mount opens a new channel keyed by identity and announces presence once the
// subscription is confirmed. A nil or empty identity yields an inert session:
// no channel is created and Unmount does nothing.
func (b *Beacon) Mount(ctx context.Context, identity *Identity) *Session {
	if !identity.Valid() {
		log.Debug().Str("room", b.room).Msg("no kitchen identity, presence beacon inert")
		return &Session{beacon: b}
	}

	sctx, cancel := context.WithCancel(ctx)
	s := &Session{
		beacon:   b,
		identity: *identity,
		ctx:      sctx,
		cancel:   cancel,
	}

	ch := b.realtime.Channel(b.room, ChannelOptions{PresenceKey: identity.ID})
	s.channel = ch

	// Presence tracking is only enabled on channels with a presence listener
	ch.On(KindPresence, Filter{Event: EventSync}, func(Event) {})
	ch.Subscribe(s.onStatus)

	log.Info().
		Str("room", b.room).
		Str("staff_id", identity.ID).
		Str("username", identity.Username).
		Msg("presence beacon mounted")

	return s
}

// onStatus is the subscribe continuation. It may run after Unmount; the
// closed flag makes such late calls no-ops.
func (s *Session) onStatus(status Status, err error) {
	if status != StatusSubscribed {
		ev := log.Debug()
		if err != nil {
			ev = ev.Err(err)
		}
		ev.Str("room", s.beacon.room).
			Str("staff_id", s.identity.ID).
			Str("status", string(status)).
			Msg("presence channel status ignored")
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		log.Debug().
			Str("room", s.beacon.room).
			Str("staff_id", s.identity.ID).
			Msg("subscribed after unmount, not tracking")
		return
	}

	record := NewRecord(s.identity, s.beacon.clock.Now())
	if err := s.channel.Track(s.ctx, record); err != nil {
		log.Warn().
			Err(err).
			Str("room", s.beacon.room).
			Str("staff_id", s.identity.ID).
			Msg("failed to track presence")
		return
	}
	s.tracked = true

	log.Info().
		Str("room", s.beacon.room).
		Str("staff_id", s.identity.ID).
		Str("online_at", record.OnlineAt).
		Msg("presence tracked")
}

// Unmount releases the channel. It runs the release exactly once whether or
// not the subscription ever completed.
func (s *Session) Unmount() {
	if s.channel == nil {
		return
	}
	s.once.Do(func() {
		// Abort an in-flight Track before waiting on it
		s.cancel()

		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if err := s.beacon.realtime.RemoveChannel(s.channel); err != nil {
			log.Warn().
				Err(err).
				Str("room", s.beacon.room).
				Str("staff_id", s.identity.ID).
				Msg("failed to remove presence channel")
		}

		log.Info().
			Str("room", s.beacon.room).
			Str("staff_id", s.identity.ID).
			Msg("presence beacon unmounted")
	})
}

// Inert reports whether the session was mounted without an identity
func (s *Session) Inert() bool {
	return s.channel == nil
}

// Tracked reports whether a presence record was sent
func (s *Session) Tracked() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.tracked
}
