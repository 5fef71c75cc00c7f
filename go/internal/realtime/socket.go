package realtime

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/presence"
)

var (
	// ErrChannelClosed is returned by Track on a removed or disconnected channel
	ErrChannelClosed = errors.New("realtime channel closed")
	// ErrNotSubscribed is returned by Track before the join was confirmed
	ErrNotSubscribed = errors.New("realtime channel not subscribed")
)

// SocketConfig holds configuration for the websocket transport
type SocketConfig struct {
	URL               string        // e.g. ws://localhost:8080/realtime/ws
	Token             string        // Bearer token sent on the upgrade request
	JoinTimeout       time.Duration // Dial plus join reply; TIMED_OUT when exceeded
	ReplyTimeout      time.Duration
	HeartbeatInterval time.Duration
	WriteTimeout      time.Duration
}

// DefaultSocketConfig returns default websocket transport configuration
func DefaultSocketConfig() SocketConfig {
	return SocketConfig{
		URL:               "ws://localhost:8080/realtime/ws",
		JoinTimeout:       10 * time.Second,
		ReplyTimeout:      5 * time.Second,
		HeartbeatInterval: 25 * time.Second,
		WriteTimeout:      10 * time.Second,
	}
}

// SocketClient implements presence.Realtime over the gateway websocket.
// Every channel owns its own connection.
type SocketClient struct {
	config SocketConfig
	dialer *websocket.Dialer
	clock  clockwork.Clock

	mu       sync.Mutex
	channels map[*SocketChannel]struct{}
}

// NewSocketClient creates a new websocket realtime client
func NewSocketClient(config SocketConfig) *SocketClient {
	defaults := DefaultSocketConfig()
	if config.JoinTimeout <= 0 {
		config.JoinTimeout = defaults.JoinTimeout
	}
	if config.ReplyTimeout <= 0 {
		config.ReplyTimeout = defaults.ReplyTimeout
	}
	if config.HeartbeatInterval <= 0 {
		config.HeartbeatInterval = defaults.HeartbeatInterval
	}
	if config.WriteTimeout <= 0 {
		config.WriteTimeout = defaults.WriteTimeout
	}

	return &SocketClient{
		config:   config,
		dialer:   websocket.DefaultDialer,
		clock:    clockwork.NewRealClock(),
		channels: make(map[*SocketChannel]struct{}),
	}
}

// Channel creates a channel for room. Nothing touches the network until Subscribe.
func (c *SocketClient) Channel(name string, opts presence.ChannelOptions) presence.Channel {
	ctx, cancel := context.WithCancel(context.Background())
	ch := &SocketChannel{
		client:    c,
		name:      name,
		key:       opts.PresenceKey,
		listeners: newListeners(),
		ctx:       ctx,
		cancel:    cancel,
		done:      make(chan struct{}),
		readDone:  make(chan struct{}),
		pending:   make(map[string]chan ReplyPayload),
	}

	c.mu.Lock()
	c.channels[ch] = struct{}{}
	c.mu.Unlock()

	return ch
}

// RemoveChannel leaves the room and closes the channel's connection. It is
// safe to call while the subscription is still being established.
func (c *SocketClient) RemoveChannel(ch presence.Channel) error {
	sc, ok := ch.(*SocketChannel)
	if !ok {
		return fmt.Errorf("channel %q was not created by this client", ch.Name())
	}

	c.mu.Lock()
	_, owned := c.channels[sc]
	delete(c.channels, sc)
	c.mu.Unlock()
	if !owned {
		return nil
	}

	return sc.close()
}

// Channels returns the number of channels not yet removed
func (c *SocketClient) Channels() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.channels)
}

// SocketChannel is a presence channel backed by one websocket connection
type SocketChannel struct {
	client    *SocketClient
	name      string
	key       string
	listeners *listeners

	ctx      context.Context
	cancel   context.CancelFunc
	done     chan struct{}
	readDone chan struct{}
	started  atomic.Bool

	// statusMu orders subscribe callbacks against close
	statusMu sync.Mutex
	closed   bool

	mu         sync.Mutex
	conn       *websocket.Conn
	subscribed bool
	pending    map[string]chan ReplyPayload
	refSeq     atomic.Int64

	writeMu sync.Mutex
}

func (ch *SocketChannel) Name() string { return ch.name }

// On registers handler. Registrations after Subscribe still take effect.
func (ch *SocketChannel) On(kind string, filter presence.Filter, handler presence.Handler) presence.Channel {
	ch.listeners.add(kind, filter, handler)
	return ch
}

// Subscribe dials the gateway and joins the room in the background. Only the
// first call has an effect.
func (ch *SocketChannel) Subscribe(callback func(status presence.Status, err error)) presence.Channel {
	if callback == nil {
		callback = func(presence.Status, error) {}
	}
	if !ch.started.CompareAndSwap(false, true) {
		return ch
	}
	go ch.run(callback)
	return ch
}

// Presence returns the channel's current view of the room
func (ch *SocketChannel) Presence() PresenceState {
	return ch.listeners.snapshot()
}

// Track sends payload as this channel's presence meta and waits for the ack
func (ch *SocketChannel) Track(ctx context.Context, payload any) error {
	ch.mu.Lock()
	subscribed := ch.subscribed
	ch.mu.Unlock()
	if !subscribed {
		return ErrNotSubscribed
	}

	msg, err := NewMessage(TypeTrack, ch.name, ch.nextRef(), payload)
	if err != nil {
		return err
	}
	reply, err := ch.request(ctx, msg)
	if err != nil {
		return fmt.Errorf("track: %w", err)
	}
	if reply.Status != ReplyOK {
		return fmt.Errorf("track rejected: %s", reply.Reason)
	}
	return nil
}

func (ch *SocketChannel) run(callback func(presence.Status, error)) {
	defer close(ch.done)

	cfg := ch.client.config
	joinCtx, cancel := context.WithTimeout(ch.ctx, cfg.JoinTimeout)
	defer cancel()

	conn, err := ch.dial(joinCtx)
	if err != nil {
		close(ch.readDone)
		ch.report(callback, ch.failureStatus(joinCtx), err)
		return
	}

	defer conn.Close()

	ch.mu.Lock()
	ch.conn = conn
	ch.mu.Unlock()

	go ch.readPump(conn)

	join, _ := NewMessage(TypeJoin, ch.name, ch.nextRef(), JoinPayload{PresenceKey: ch.key})
	reply, err := ch.request(joinCtx, join)
	switch {
	case err != nil:
		ch.report(callback, ch.failureStatus(joinCtx), err)
		return
	case reply.Status != ReplyOK:
		ch.report(callback, presence.StatusChannelError, fmt.Errorf("join rejected: %s", reply.Reason))
		return
	}

	ch.mu.Lock()
	ch.subscribed = true
	ch.mu.Unlock()

	if !ch.report(callback, presence.StatusSubscribed, nil) {
		return
	}

	log.Debug().Str("room", ch.name).Str("presence_key", ch.key).Msg("realtime channel subscribed")

	heartbeat := ch.client.clock.NewTicker(cfg.HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ch.ctx.Done():
			return
		case <-ch.readDone:
			ch.mu.Lock()
			ch.subscribed = false
			ch.mu.Unlock()
			ch.report(callback, presence.StatusChannelError, ErrChannelClosed)
			return
		case <-heartbeat.Chan():
			msg, _ := NewMessage(TypeHeartbeat, ch.name, "", nil)
			if err := ch.write(msg); err != nil {
				log.Debug().Err(err).Str("room", ch.name).Msg("heartbeat failed")
			}
		}
	}
}

// report invokes callback unless the channel was closed. A closed channel
// only ever reports CLOSED. Returns false when closed.
func (ch *SocketChannel) report(callback func(presence.Status, error), status presence.Status, err error) bool {
	ch.statusMu.Lock()
	defer ch.statusMu.Unlock()

	if ch.closed || ch.ctx.Err() != nil {
		callback(presence.StatusClosed, nil)
		return false
	}
	callback(status, err)
	return true
}

func (ch *SocketChannel) failureStatus(joinCtx context.Context) presence.Status {
	if ch.ctx.Err() != nil {
		return presence.StatusClosed
	}
	if errors.Is(joinCtx.Err(), context.DeadlineExceeded) {
		return presence.StatusTimedOut
	}
	return presence.StatusChannelError
}

func (ch *SocketChannel) dial(ctx context.Context) (*websocket.Conn, error) {
	u, err := url.Parse(ch.client.config.URL)
	if err != nil {
		return nil, fmt.Errorf("parse realtime url: %w", err)
	}
	q := u.Query()
	q.Set("room", ch.name)
	u.RawQuery = q.Encode()

	header := http.Header{}
	if ch.client.config.Token != "" {
		header.Set("Authorization", "Bearer "+ch.client.config.Token)
	}

	conn, resp, err := ch.client.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial realtime gateway: %w (status %d)", err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial realtime gateway: %w", err)
	}
	return conn, nil
}

func (ch *SocketChannel) readPump(conn *websocket.Conn) {
	defer close(ch.readDone)

	for {
		var msg Message
		if err := conn.ReadJSON(&msg); err != nil {
			if ch.ctx.Err() == nil && websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("room", ch.name).Msg("realtime connection lost")
			}
			return
		}
		ch.handle(msg)
	}
}

func (ch *SocketChannel) handle(msg Message) {
	switch msg.Type {
	case TypeReply:
		var reply ReplyPayload
		if err := msg.Decode(&reply); err != nil {
			log.Warn().Err(err).Str("room", ch.name).Msg("invalid reply frame")
			return
		}
		ch.mu.Lock()
		waiter, ok := ch.pending[msg.Ref]
		delete(ch.pending, msg.Ref)
		ch.mu.Unlock()
		if ok {
			waiter <- reply
		}

	case TypePresenceState:
		var state PresenceState
		if err := msg.Decode(&state); err != nil {
			log.Warn().Err(err).Str("room", ch.name).Msg("invalid presence_state frame")
			return
		}
		ch.listeners.replaceState(state)

	case TypePresenceDiff:
		var diff PresenceDiff
		if err := msg.Decode(&diff); err != nil {
			log.Warn().Err(err).Str("room", ch.name).Msg("invalid presence_diff frame")
			return
		}
		ch.listeners.applyDiff(diff)

	case TypeBroadcast:
		ch.listeners.broadcast(msg.Payload)

	default:
		log.Debug().Str("room", ch.name).Str("type", string(msg.Type)).Msg("ignoring realtime frame")
	}
}

// request writes msg and waits for the reply with the same ref
func (ch *SocketChannel) request(ctx context.Context, msg Message) (ReplyPayload, error) {
	waiter := make(chan ReplyPayload, 1)

	ch.mu.Lock()
	ch.pending[msg.Ref] = waiter
	ch.mu.Unlock()

	forget := func() {
		ch.mu.Lock()
		delete(ch.pending, msg.Ref)
		ch.mu.Unlock()
	}

	if err := ch.write(msg); err != nil {
		forget()
		return ReplyPayload{}, err
	}

	timer := ch.client.clock.NewTimer(ch.client.config.ReplyTimeout)
	defer timer.Stop()

	select {
	case reply := <-waiter:
		return reply, nil
	case <-ctx.Done():
		forget()
		return ReplyPayload{}, ctx.Err()
	case <-ch.ctx.Done():
		forget()
		return ReplyPayload{}, ErrChannelClosed
	case <-ch.readDone:
		forget()
		return ReplyPayload{}, ErrChannelClosed
	case <-timer.Chan():
		forget()
		return ReplyPayload{}, fmt.Errorf("%s reply: %w", msg.Type, context.DeadlineExceeded)
	}
}

func (ch *SocketChannel) write(msg Message) error {
	ch.mu.Lock()
	conn := ch.conn
	ch.mu.Unlock()
	if conn == nil {
		return ErrChannelClosed
	}

	ch.writeMu.Lock()
	defer ch.writeMu.Unlock()

	conn.SetWriteDeadline(time.Now().Add(ch.client.config.WriteTimeout))
	if err := conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("write %s: %w", msg.Type, err)
	}
	return nil
}

func (ch *SocketChannel) nextRef() string {
	return strconv.FormatInt(ch.refSeq.Add(1), 10)
}

func (ch *SocketChannel) close() error {
	ch.mu.Lock()
	conn := ch.conn
	subscribed := ch.subscribed
	ch.subscribed = false
	ch.mu.Unlock()

	// Best effort leave before tearing the socket down
	var leaveErr error
	if conn != nil && subscribed {
		leave, _ := NewMessage(TypeLeave, ch.name, "", nil)
		leaveErr = ch.write(leave)
	}

	ch.cancel()

	ch.statusMu.Lock()
	ch.closed = true
	ch.statusMu.Unlock()

	if conn != nil {
		ch.writeMu.Lock()
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		ch.writeMu.Unlock()
		conn.Close()
	}

	if ch.started.Load() {
		<-ch.done
	}

	log.Debug().Str("room", ch.name).Str("presence_key", ch.key).Msg("realtime channel removed")
	return leaveErr
}
