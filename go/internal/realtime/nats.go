package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/presence"
)

// NATSConfig holds configuration for the NATS transport
type NATSConfig struct {
	SubjectPrefix string        // subjects are <prefix>.<room>.<verb>
	JoinTimeout   time.Duration // flush deadline after subscribing
}

// DefaultNATSConfig returns default NATS transport configuration
func DefaultNATSConfig() NATSConfig {
	return NATSConfig{
		SubjectPrefix: "presence",
		JoinTimeout:   5 * time.Second,
	}
}

// natsFrame is published on presence subjects
type natsFrame struct {
	Key     string          `json:"key"`
	Ref     string          `json:"ref"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// NATSClient implements presence.Realtime on plain NATS subjects. There is no
// server-side presence state: peers announce themselves on join and answer
// sync requests with their current meta.
type NATSClient struct {
	nc     *nats.Conn
	config NATSConfig
}

// NewNATSClient creates a realtime client on an established NATS connection.
// The caller owns nc.
func NewNATSClient(nc *nats.Conn, config NATSConfig) *NATSClient {
	defaults := DefaultNATSConfig()
	if config.SubjectPrefix == "" {
		config.SubjectPrefix = defaults.SubjectPrefix
	}
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = defaults.JoinTimeout
	}
	return &NATSClient{nc: nc, config: config}
}

// Subject returns the subject for verb in room
func (c *NATSClient) Subject(room, verb string) string {
	return fmt.Sprintf("%s.%s.%s", c.config.SubjectPrefix, room, verb)
}

func (c *NATSClient) Channel(name string, opts presence.ChannelOptions) presence.Channel {
	ctx, cancel := context.WithCancel(context.Background())
	return &NATSChannel{
		client:    c,
		name:      name,
		key:       opts.PresenceKey,
		ref:       uuid.NewString(),
		listeners: newListeners(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
	}
}

func (c *NATSClient) RemoveChannel(ch presence.Channel) error {
	nch, ok := ch.(*NATSChannel)
	if !ok {
		return fmt.Errorf("channel %q was not created by this client", ch.Name())
	}
	return nch.close()
}

// NATSChannel is a presence channel on NATS subjects
type NATSChannel struct {
	client    *NATSClient
	name      string
	key       string
	ref       string
	listeners *listeners

	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}
	started atomic.Bool

	statusMu sync.Mutex
	closed   bool

	mu      sync.Mutex
	sub     *nats.Subscription
	tracked json.RawMessage
}

func (ch *NATSChannel) Name() string { return ch.name }

func (ch *NATSChannel) On(kind string, filter presence.Filter, handler presence.Handler) presence.Channel {
	ch.listeners.add(kind, filter, handler)
	return ch
}

func (ch *NATSChannel) Subscribe(callback func(status presence.Status, err error)) presence.Channel {
	if callback == nil {
		callback = func(presence.Status, error) {}
	}
	if !ch.started.CompareAndSwap(false, true) {
		return ch
	}
	go ch.run(callback)
	return ch
}

func (ch *NATSChannel) run(callback func(presence.Status, error)) {
	defer close(ch.done)

	sub, err := ch.client.nc.Subscribe(ch.client.Subject(ch.name, "*"), ch.onMsg)
	if err != nil {
		ch.report(callback, presence.StatusChannelError, fmt.Errorf("subscribe: %w", err))
		return
	}

	ch.mu.Lock()
	ch.sub = sub
	ch.mu.Unlock()

	flushCtx, cancel := context.WithTimeout(ch.ctx, ch.client.config.JoinTimeout)
	defer cancel()

	if err := ch.client.nc.FlushWithContext(flushCtx); err != nil {
		status := presence.StatusChannelError
		if errors.Is(err, context.DeadlineExceeded) {
			status = presence.StatusTimedOut
		}
		ch.report(callback, status, fmt.Errorf("flush: %w", err))
		return
	}

	// Ask peers to re-announce so we start from a full state
	if err := ch.publish("sync", nil); err != nil {
		log.Debug().Err(err).Str("room", ch.name).Msg("sync request failed")
	}

	ch.report(callback, presence.StatusSubscribed, nil)
}

func (ch *NATSChannel) report(callback func(presence.Status, error), status presence.Status, err error) {
	ch.statusMu.Lock()
	defer ch.statusMu.Unlock()

	if ch.closed || ch.ctx.Err() != nil {
		callback(presence.StatusClosed, nil)
		return
	}
	callback(status, err)
}

// Track publishes payload as this channel's meta and records it locally
func (ch *NATSChannel) Track(ctx context.Context, payload any) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	ch.mu.Lock()
	subscribed := ch.sub != nil
	ch.mu.Unlock()
	if !subscribed || ch.ctx.Err() != nil {
		return ErrNotSubscribed
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal presence payload: %w", err)
	}

	ch.mu.Lock()
	ch.tracked = data
	ch.mu.Unlock()

	if err := ch.publish("track", data); err != nil {
		return fmt.Errorf("track: %w", err)
	}
	return nil
}

// Presence returns the channel's current view of the room
func (ch *NATSChannel) Presence() PresenceState {
	return ch.listeners.snapshot()
}

func (ch *NATSChannel) publish(verb string, payload json.RawMessage) error {
	frame, err := json.Marshal(natsFrame{Key: ch.key, Ref: ch.ref, Payload: payload})
	if err != nil {
		return err
	}
	return ch.client.nc.Publish(ch.client.Subject(ch.name, verb), frame)
}

func (ch *NATSChannel) onMsg(msg *nats.Msg) {
	var frame natsFrame
	if err := json.Unmarshal(msg.Data, &frame); err != nil {
		log.Warn().Err(err).Str("subject", msg.Subject).Msg("invalid presence frame")
		return
	}

	switch msg.Subject {
	case ch.client.Subject(ch.name, "track"):
		meta := Meta{Ref: frame.Ref, Payload: frame.Payload}
		ch.listeners.applyDiff(PresenceDiff{
			Joins:  PresenceState{frame.Key: {meta}},
			Leaves: PresenceState{},
		})

	case ch.client.Subject(ch.name, "leave"):
		ch.listeners.applyDiff(PresenceDiff{
			Joins:  PresenceState{},
			Leaves: PresenceState{frame.Key: {{Ref: frame.Ref}}},
		})

	case ch.client.Subject(ch.name, "sync"):
		if frame.Ref == ch.ref {
			return
		}
		ch.mu.Lock()
		tracked := ch.tracked
		ch.mu.Unlock()
		if tracked != nil {
			if err := ch.publish("track", tracked); err != nil {
				log.Debug().Err(err).Str("room", ch.name).Msg("failed to answer sync request")
			}
		}

	case ch.client.Subject(ch.name, "broadcast"):
		ch.listeners.broadcast(frame.Payload)
	}
}

func (ch *NATSChannel) close() error {
	ch.cancel()

	ch.statusMu.Lock()
	ch.closed = true
	ch.statusMu.Unlock()

	if ch.started.Load() {
		<-ch.done
	}

	ch.mu.Lock()
	sub := ch.sub
	tracked := ch.tracked
	ch.sub = nil
	ch.mu.Unlock()

	if sub == nil {
		return nil
	}

	var errs []error
	if tracked != nil {
		if err := ch.publish("leave", nil); err != nil {
			errs = append(errs, fmt.Errorf("leave: %w", err))
		}
	}
	if err := sub.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) {
		errs = append(errs, fmt.Errorf("unsubscribe: %w", err))
	}
	return errors.Join(errs...)
}
