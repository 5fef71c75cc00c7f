package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/realtime"
)

// PresenceRecorder is told when a presence key enters or leaves a room.
// Calls happen outside the manager's locks, one at a time, in the order the
// transitions were applied to the presence state.
type PresenceRecorder interface {
	RecordJoin(ctx context.Context, room, key string, payload json.RawMessage) error
	RecordLeave(ctx context.Context, room, key string) error
}

// ConnectionManager manages websocket connections grouped by room and the
// presence state of every room
type ConnectionManager struct {
	// Connection pools organized by room
	rooms    map[string]map[*Connection]bool
	presence map[string]realtime.PresenceState
	mu       sync.RWMutex

	upgrader websocket.Upgrader
	config   ConnectionConfig
	clock    clockwork.Clock
	recorder PresenceRecorder

	broadcastCh chan BroadcastMessage

	// Presence transitions waiting for the recorder, appended under mu
	recordMu     sync.Mutex
	recordQueue  []recordTask
	recordSignal chan struct{}
	flushMu      sync.Mutex
}

type recordTask struct {
	room   string
	change presenceChange
}

// Connection represents a websocket connection to a kiosk or kitchen display
type Connection struct {
	ID      string
	StaffID string // From the token, empty when the gateway runs without auth
	Room    string
	Conn    *websocket.Conn
	Send    chan []byte
	Manager *ConnectionManager

	ConnectedAt time.Time
	LastPing    time.Time

	// Guarded by Manager.mu
	joined  bool
	key     string
	tracked bool
}

// ConnectionConfig holds configuration for websocket connections
type ConnectionConfig struct {
	WriteTimeout    time.Duration
	ReadTimeout     time.Duration
	PingInterval    time.Duration
	RecordTimeout   time.Duration
	MaxMessageSize  int64
	ReadBufferSize  int
	WriteBufferSize int
	CheckOrigin     func(r *http.Request) bool
}

// BroadcastMessage represents an event to send to a room, or to every room
// when Room is empty
type BroadcastMessage struct {
	Room  string
	Event *Event
}

// DefaultConnectionConfig returns default websocket configuration
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		WriteTimeout:    10 * time.Second,
		ReadTimeout:     60 * time.Second,
		PingInterval:    30 * time.Second,
		RecordTimeout:   5 * time.Second,
		MaxMessageSize:  4096,
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
}

// NewConnectionManager creates a new websocket connection manager. recorder
// may be nil.
func NewConnectionManager(config ConnectionConfig, clock clockwork.Clock, recorder PresenceRecorder) *ConnectionManager {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if config.RecordTimeout <= 0 {
		config.RecordTimeout = DefaultConnectionConfig().RecordTimeout
	}

	return &ConnectionManager{
		rooms:    make(map[string]map[*Connection]bool),
		presence: make(map[string]realtime.PresenceState),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  config.ReadBufferSize,
			WriteBufferSize: config.WriteBufferSize,
			CheckOrigin:     config.CheckOrigin,
		},
		config:      config,
		clock:       clock,
		recorder:    recorder,
		broadcastCh:  make(chan BroadcastMessage, 1000),
		recordSignal: make(chan struct{}, 1),
	}
}

// Start begins processing broadcast messages and presence records
func (cm *ConnectionManager) Start(ctx context.Context) {
	log.Info().Msg("connection manager started")

	recorderDone := make(chan struct{})
	go func() {
		defer close(recorderDone)
		cm.runRecorder(ctx)
	}()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("connection manager shutting down")
			cm.closeAll()
			<-recorderDone
			// Leaves produced by closeAll
			cm.flushRecords()
			return
		case message := <-cm.broadcastCh:
			cm.handleBroadcast(message)
		}
	}
}

// UpgradeConnection upgrades an HTTP connection to a websocket in room.
// claims may be nil when auth is disabled.
func (cm *ConnectionManager) UpgradeConnection(w http.ResponseWriter, r *http.Request, room string, claims *auth.Claims) error {
	conn, err := cm.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("failed to upgrade websocket connection")
		return fmt.Errorf("failed to upgrade connection: %w", err)
	}

	now := cm.clock.Now()
	connection := &Connection{
		ID:          uuid.New().String(),
		Room:        room,
		Conn:        conn,
		Send:        make(chan []byte, 256),
		Manager:     cm,
		ConnectedAt: now,
		LastPing:    now,
	}
	if claims != nil {
		connection.StaffID = claims.StaffID
	}

	cm.registerConnection(connection)

	go connection.writePump()
	go connection.readPump()

	log.Info().
		Str("connection_id", connection.ID).
		Str("staff_id", connection.StaffID).
		Str("room", room).
		Msg("websocket connection established")

	return nil
}

func (cm *ConnectionManager) registerConnection(conn *Connection) {
	cm.mu.Lock()
	defer cm.mu.Unlock()

	if cm.rooms[conn.Room] == nil {
		cm.rooms[conn.Room] = make(map[*Connection]bool)
	}
	cm.rooms[conn.Room][conn] = true

	log.Debug().
		Str("connection_id", conn.ID).
		Str("room", conn.Room).
		Int("total_connections", len(cm.rooms[conn.Room])).
		Msg("connection registered")
}

// unregisterConnection removes a connection and whatever it tracked. Safe to
// call more than once.
func (cm *ConnectionManager) unregisterConnection(conn *Connection) {
	cm.mu.Lock()
	connections, exists := cm.rooms[conn.Room]
	if !exists || !connections[conn] {
		cm.mu.Unlock()
		return
	}
	delete(connections, conn)
	close(conn.Send)
	if len(connections) == 0 {
		delete(cm.rooms, conn.Room)
	}
	change := cm.untrackLocked(conn)
	conn.joined = false
	cm.enqueueRecordLocked(conn.Room, change)
	cm.mu.Unlock()

	log.Info().
		Str("connection_id", conn.ID).
		Str("staff_id", conn.StaffID).
		Str("room", conn.Room).
		Msg("connection unregistered")

	cm.publishChange(conn.Room, change)
}

// presenceChange is computed under the lock and published after it
type presenceChange struct {
	diff    realtime.PresenceDiff
	key     string
	joined  bool // key went from empty to present
	left    bool // key went from present to empty
	payload json.RawMessage
}

func (c presenceChange) empty() bool {
	return len(c.diff.Joins) == 0 && len(c.diff.Leaves) == 0
}

// trackLocked stores payload as conn's meta. Caller holds cm.mu.
func (cm *ConnectionManager) trackLocked(conn *Connection, payload json.RawMessage) presenceChange {
	state := cm.presence[conn.Room]
	if state == nil {
		state = make(realtime.PresenceState)
		cm.presence[conn.Room] = state
	}

	change := presenceChange{
		diff:    realtime.PresenceDiff{Joins: realtime.PresenceState{}, Leaves: realtime.PresenceState{}},
		key:     conn.key,
		payload: payload,
	}
	existed := len(state[conn.key]) > 0
	if old, _ := state.Untrack(conn.key, conn.ID); old != nil {
		change.diff.Leaves[conn.key] = []realtime.Meta{*old}
	}
	meta := realtime.Meta{Ref: conn.ID, Payload: payload}
	state.Track(conn.key, meta)
	change.diff.Joins[conn.key] = []realtime.Meta{meta}
	change.joined = !existed
	conn.tracked = true
	return change
}

// untrackLocked removes conn's meta if it tracked one. Caller holds cm.mu.
func (cm *ConnectionManager) untrackLocked(conn *Connection) presenceChange {
	change := presenceChange{key: conn.key}
	if !conn.tracked {
		return change
	}
	conn.tracked = false

	state := cm.presence[conn.Room]
	removed, emptied := state.Untrack(conn.key, conn.ID)
	if removed == nil {
		return change
	}
	if len(state) == 0 {
		delete(cm.presence, conn.Room)
	}
	change.diff = realtime.PresenceDiff{
		Joins:  realtime.PresenceState{},
		Leaves: realtime.PresenceState{conn.key: []realtime.Meta{*removed}},
	}
	change.left = emptied
	return change
}

// publishChange sends the diff to the room. The recorder side was queued
// by enqueueRecordLocked while the state changed.
func (cm *ConnectionManager) publishChange(room string, change presenceChange) {
	if change.empty() {
		return
	}

	msg, err := realtime.NewMessage(realtime.TypePresenceDiff, room, "", change.diff)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to build presence diff")
		return
	}
	cm.sendToRoom(room, msg)
}

// enqueueRecordLocked queues change for the recorder if it moved a key in or
// out of the room. Caller holds cm.mu so queue order matches state order.
func (cm *ConnectionManager) enqueueRecordLocked(room string, change presenceChange) {
	if cm.recorder == nil || (!change.joined && !change.left) {
		return
	}

	cm.recordMu.Lock()
	cm.recordQueue = append(cm.recordQueue, recordTask{room: room, change: change})
	cm.recordMu.Unlock()

	select {
	case cm.recordSignal <- struct{}{}:
	default:
	}
}

func (cm *ConnectionManager) runRecorder(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-cm.recordSignal:
			cm.flushRecords()
		}
	}
}

// flushRecords hands every queued transition to the recorder in order
func (cm *ConnectionManager) flushRecords() {
	cm.flushMu.Lock()
	defer cm.flushMu.Unlock()

	for {
		cm.recordMu.Lock()
		tasks := cm.recordQueue
		cm.recordQueue = nil
		cm.recordMu.Unlock()

		if len(tasks) == 0 {
			return
		}
		for _, task := range tasks {
			cm.record(task.room, task.change)
		}
	}
}

func (cm *ConnectionManager) record(room string, change presenceChange) {
	ctx, cancel := context.WithTimeout(context.Background(), cm.config.RecordTimeout)
	defer cancel()

	if change.joined {
		if err := cm.recorder.RecordJoin(ctx, room, change.key, change.payload); err != nil {
			log.Error().Err(err).Str("room", room).Str("presence_key", change.key).Msg("failed to record presence join")
		}
	}
	if change.left {
		if err := cm.recorder.RecordLeave(ctx, room, change.key); err != nil {
			log.Error().Err(err).Str("room", room).Str("presence_key", change.key).Msg("failed to record presence leave")
		}
	}
}

// BroadcastToRoom queues an event for every connection in room
func (cm *ConnectionManager) BroadcastToRoom(room string, event *Event) {
	select {
	case cm.broadcastCh <- BroadcastMessage{Room: room, Event: event}:
	default:
		log.Warn().Str("room", room).Msg("broadcast channel full, dropping message")
	}
}

// BroadcastToAll queues an event for every connection in every room
func (cm *ConnectionManager) BroadcastToAll(event *Event) {
	cm.BroadcastToRoom("", event)
}

func (cm *ConnectionManager) handleBroadcast(message BroadcastMessage) {
	data, err := json.Marshal(message.Event)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal event for broadcast")
		return
	}

	rooms := []string{message.Room}
	if message.Room == "" {
		rooms = cm.Rooms()
	}

	for _, room := range rooms {
		cm.sendToRoom(room, realtime.Message{Type: realtime.TypeBroadcast, Topic: room, Payload: data})
	}

	log.Debug().
		Str("event_type", string(message.Event.Type)).
		Str("room", message.Room).
		Int("rooms", len(rooms)).
		Msg("event broadcasted")
}

// sendToRoom delivers msg to every connection in room. Sends happen under
// the read lock so Send cannot be closed underneath them.
func (cm *ConnectionManager) sendToRoom(room string, msg realtime.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("room", room).Msg("failed to marshal realtime frame")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	for conn := range cm.rooms[room] {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	cm.dropSlow(slow)
}

// sendTo delivers msg to one connection if it is still registered
func (cm *ConnectionManager) sendTo(conn *Connection, msg realtime.Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		log.Error().Err(err).Str("connection_id", conn.ID).Msg("failed to marshal realtime frame")
		return
	}

	var slow []*Connection
	cm.mu.RLock()
	if cm.rooms[conn.Room][conn] {
		select {
		case conn.Send <- data:
		default:
			slow = append(slow, conn)
		}
	}
	cm.mu.RUnlock()

	cm.dropSlow(slow)
}

func (cm *ConnectionManager) dropSlow(slow []*Connection) {
	for _, conn := range slow {
		log.Warn().
			Str("connection_id", conn.ID).
			Str("staff_id", conn.StaffID).
			Msg("connection send buffer full, closing connection")
		cm.unregisterConnection(conn)
		conn.Conn.Close()
	}
}

func (cm *ConnectionManager) closeAll() {
	cm.mu.RLock()
	var all []*Connection
	for _, connections := range cm.rooms {
		for conn := range connections {
			all = append(all, conn)
		}
	}
	cm.mu.RUnlock()

	for _, conn := range all {
		cm.unregisterConnection(conn)
	}
}

// Rooms returns the rooms that currently have connections
func (cm *ConnectionManager) Rooms() []string {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	rooms := make([]string, 0, len(cm.rooms))
	for room := range cm.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

// Presence returns a copy of room's presence state
func (cm *ConnectionManager) Presence(room string) realtime.PresenceState {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	state, ok := cm.presence[room]
	if !ok {
		return realtime.PresenceState{}
	}
	return state.Clone()
}

// GetConnectionStats returns statistics about active connections
func (cm *ConnectionManager) GetConnectionStats() map[string]interface{} {
	cm.mu.RLock()
	defer cm.mu.RUnlock()

	totalConnections := 0
	roomCounts := make(map[string]int)
	presenceCounts := make(map[string]int)

	for room, connections := range cm.rooms {
		count := len(connections)
		totalConnections += count
		roomCounts[room] = count
	}
	for room, state := range cm.presence {
		presenceCounts[room] = len(state)
	}

	return map[string]interface{}{
		"total_connections": totalConnections,
		"active_rooms":      len(cm.rooms),
		"room_connections":  roomCounts,
		"present_keys":      presenceCounts,
	}
}

// writePump handles sending messages to the websocket connection
func (c *Connection) writePump() {
	ticker := c.Manager.clock.NewTicker(c.Manager.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
		c.Manager.unregisterConnection(c)
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.Conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to write message to websocket")
				return
			}

		case <-ticker.Chan():
			c.Conn.SetWriteDeadline(time.Now().Add(c.Manager.config.WriteTimeout))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("failed to send ping")
				return
			}
		}
	}
}

// readPump handles reading messages from the websocket connection
func (c *Connection) readPump() {
	defer func() {
		c.Manager.unregisterConnection(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.Manager.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
		c.LastPing = c.Manager.clock.Now()
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Error().
					Err(err).
					Str("connection_id", c.ID).
					Msg("unexpected websocket close error")
			}
			break
		}

		c.handleClientMessage(message)
		c.Conn.SetReadDeadline(time.Now().Add(c.Manager.config.ReadTimeout))
	}
}

// handleClientMessage processes a realtime frame received from the client
func (c *Connection) handleClientMessage(raw []byte) {
	var msg realtime.Message
	if err := json.Unmarshal(raw, &msg); err != nil {
		log.Debug().Err(err).Str("connection_id", c.ID).Msg("ignoring malformed client frame")
		return
	}

	cm := c.Manager
	switch msg.Type {
	case realtime.TypeJoin:
		c.handleJoin(msg)

	case realtime.TypeTrack:
		if len(msg.Payload) == 0 || !json.Valid(msg.Payload) {
			c.reply(msg, fmt.Errorf("track requires a JSON payload"))
			return
		}
		cm.mu.Lock()
		if !c.joined {
			cm.mu.Unlock()
			c.reply(msg, fmt.Errorf("track before join"))
			return
		}
		change := cm.trackLocked(c, msg.Payload)
		cm.enqueueRecordLocked(c.Room, change)
		cm.mu.Unlock()

		c.reply(msg, nil)
		cm.publishChange(c.Room, change)

	case realtime.TypeUntrack:
		cm.mu.Lock()
		change := cm.untrackLocked(c)
		cm.enqueueRecordLocked(c.Room, change)
		cm.mu.Unlock()

		c.reply(msg, nil)
		cm.publishChange(c.Room, change)

	case realtime.TypeLeave:
		cm.mu.Lock()
		change := cm.untrackLocked(c)
		c.joined = false
		cm.enqueueRecordLocked(c.Room, change)
		cm.mu.Unlock()

		c.reply(msg, nil)
		cm.publishChange(c.Room, change)

	case realtime.TypeHeartbeat:
		c.LastPing = cm.clock.Now()
		c.reply(msg, nil)

	default:
		c.reply(msg, fmt.Errorf("unsupported frame type %q", msg.Type))
	}
}

func (c *Connection) handleJoin(msg realtime.Message) {
	var join realtime.JoinPayload
	if err := msg.Decode(&join); err != nil {
		c.reply(msg, err)
		return
	}
	if join.PresenceKey == "" {
		c.reply(msg, fmt.Errorf("presence_key is required"))
		return
	}
	if c.StaffID != "" && join.PresenceKey != c.StaffID {
		c.reply(msg, fmt.Errorf("presence_key does not match token"))
		return
	}

	cm := c.Manager
	cm.mu.Lock()
	if c.tracked && c.key != join.PresenceKey {
		cm.mu.Unlock()
		c.reply(msg, fmt.Errorf("already tracking as %q", c.key))
		return
	}
	c.joined = true
	c.key = join.PresenceKey
	state := cm.presence[c.Room].Clone()
	cm.mu.Unlock()

	c.reply(msg, nil)

	snapshot, err := realtime.NewMessage(realtime.TypePresenceState, c.Room, "", state)
	if err != nil {
		log.Error().Err(err).Str("connection_id", c.ID).Msg("failed to build presence state")
		return
	}
	cm.sendTo(c, snapshot)

	log.Debug().
		Str("connection_id", c.ID).
		Str("room", c.Room).
		Str("presence_key", c.key).
		Msg("connection joined presence")
}

// reply answers msg when the client asked for one by setting a ref
func (c *Connection) reply(msg realtime.Message, err error) {
	if msg.Ref == "" {
		if err != nil {
			log.Debug().Err(err).Str("connection_id", c.ID).Str("type", string(msg.Type)).Msg("rejected client frame")
		}
		return
	}

	payload := realtime.ReplyPayload{Status: realtime.ReplyOK}
	if err != nil {
		payload = realtime.ReplyPayload{Status: realtime.ReplyError, Reason: err.Error()}
	}
	out, buildErr := realtime.NewMessage(realtime.TypeReply, c.Room, msg.Ref, payload)
	if buildErr != nil {
		log.Error().Err(buildErr).Str("connection_id", c.ID).Msg("failed to build reply")
		return
	}
	c.Manager.sendTo(c, out)
}
