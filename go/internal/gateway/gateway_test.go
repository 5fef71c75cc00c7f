package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/presence"
	"github.com/mcdev12/kiosk/go/internal/realtime"
)

const testRoom = "kitchen-presence"

type fakeRecorder struct {
	mu     sync.Mutex
	joins  []string
	leaves []string
}

func (r *fakeRecorder) RecordJoin(_ context.Context, room, key string, _ json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.joins = append(r.joins, room+"/"+key)
	return nil
}

func (r *fakeRecorder) RecordLeave(_ context.Context, room, key string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.leaves = append(r.leaves, room+"/"+key)
	return nil
}

func (r *fakeRecorder) snapshot() (joins, leaves []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.joins...), append([]string(nil), r.leaves...)
}

func newTestGateway(t *testing.T, verifier auth.Verifier) (*ConnectionManager, *httptest.Server, *fakeRecorder) {
	t.Helper()

	recorder := &fakeRecorder{}
	cm, srv := startGateway(t, verifier, recorder)
	return cm, srv, recorder
}

func startGateway(t *testing.T, verifier auth.Verifier, recorder PresenceRecorder) (*ConnectionManager, *httptest.Server) {
	t.Helper()

	cm := NewConnectionManager(DefaultConnectionConfig(), nil, recorder)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go cm.Start(ctx)

	mux := http.NewServeMux()
	NewWebSocketHandler(cm, verifier, testRoom).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	return cm, srv
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime/ws"
}

func dialRoom(t *testing.T, srv *httptest.Server, token string) *websocket.Conn {
	t.Helper()

	header := http.Header{}
	if token != "" {
		header.Set("Authorization", "Bearer "+token)
	}
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(srv)+"?room="+testRoom, header)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func send(t *testing.T, conn *websocket.Conn, typ realtime.MessageType, ref string, payload any) {
	t.Helper()

	msg, err := realtime.NewMessage(typ, testRoom, ref, payload)
	require.NoError(t, err)
	require.NoError(t, conn.WriteJSON(msg))
}

// readUntil skips frames until one of type typ arrives
func readUntil(t *testing.T, conn *websocket.Conn, typ realtime.MessageType) realtime.Message {
	t.Helper()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var msg realtime.Message
		require.NoError(t, conn.ReadJSON(&msg))
		if msg.Type == typ {
			return msg
		}
	}
}

func readReply(t *testing.T, conn *websocket.Conn) realtime.ReplyPayload {
	t.Helper()

	var reply realtime.ReplyPayload
	require.NoError(t, readUntil(t, conn, realtime.TypeReply).Decode(&reply))
	return reply
}

func join(t *testing.T, conn *websocket.Conn, key string) {
	t.Helper()

	send(t, conn, realtime.TypeJoin, "1", realtime.JoinPayload{PresenceKey: key})
	require.Equal(t, realtime.ReplyOK, readReply(t, conn).Status)
}

func track(t *testing.T, conn *websocket.Conn, payload any) {
	t.Helper()

	send(t, conn, realtime.TypeTrack, "2", payload)
	require.Equal(t, realtime.ReplyOK, readReply(t, conn).Status)
}

func TestBeaconRoundTrip(t *testing.T) {
	t.Parallel()

	cm, srv, recorder := newTestGateway(t, nil)

	client := realtime.NewSocketClient(realtime.SocketConfig{URL: wsURL(srv)})
	beacon := presence.NewBeacon(client)

	session := beacon.Mount(context.Background(), &presence.Identity{ID: "staff-1", Username: "ana"})
	require.Eventually(t, session.Tracked, 3*time.Second, 10*time.Millisecond)

	state := cm.Presence(testRoom)
	require.Len(t, state["staff-1"], 1)

	var record presence.Record
	require.NoError(t, json.Unmarshal(state["staff-1"][0].Payload, &record))
	assert.Equal(t, "staff-1", record.StaffID)
	assert.Equal(t, "ana", record.Username)
	assert.NotEmpty(t, record.OnlineAt)

	session.Unmount()

	require.Eventually(t, func() bool {
		return len(cm.Presence(testRoom)) == 0
	}, 3*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, leaves := recorder.snapshot()
		return len(leaves) == 1
	}, 3*time.Second, 10*time.Millisecond)

	joins, leaves := recorder.snapshot()
	assert.Equal(t, []string{testRoom + "/staff-1"}, joins)
	assert.Equal(t, []string{testRoom + "/staff-1"}, leaves)
	assert.Zero(t, client.Channels())
}

func TestTrackBroadcastsDiffToRoom(t *testing.T) {
	t.Parallel()

	_, srv, recorder := newTestGateway(t, nil)

	a := dialRoom(t, srv, "")
	b := dialRoom(t, srv, "")
	join(t, a, "a")
	join(t, b, "b")

	track(t, a, map[string]string{"username": "ana"})

	var diff realtime.PresenceDiff
	require.NoError(t, readUntil(t, b, realtime.TypePresenceDiff).Decode(&diff))
	require.Len(t, diff.Joins["a"], 1)
	assert.JSONEq(t, `{"username":"ana"}`, string(diff.Joins["a"][0].Payload))
	assert.Empty(t, diff.Leaves)

	require.NoError(t, a.Close())

	diff = realtime.PresenceDiff{}
	require.NoError(t, readUntil(t, b, realtime.TypePresenceDiff).Decode(&diff))
	require.Len(t, diff.Leaves["a"], 1)

	require.Eventually(t, func() bool {
		_, leaves := recorder.snapshot()
		return len(leaves) == 1
	}, 3*time.Second, 10*time.Millisecond)
	joins, _ := recorder.snapshot()
	assert.Equal(t, []string{testRoom + "/a"}, joins)
}

func TestJoinReceivesCurrentState(t *testing.T) {
	t.Parallel()

	_, srv, _ := newTestGateway(t, nil)

	a := dialRoom(t, srv, "")
	join(t, a, "a")
	track(t, a, map[string]string{"username": "ana"})

	b := dialRoom(t, srv, "")
	send(t, b, realtime.TypeJoin, "1", realtime.JoinPayload{PresenceKey: "b"})

	var state realtime.PresenceState
	require.NoError(t, readUntil(t, b, realtime.TypePresenceState).Decode(&state))
	require.Len(t, state["a"], 1)
	assert.NotContains(t, state, "b")
}

func TestSharedKeyKeepsSlotUntilLastConnection(t *testing.T) {
	t.Parallel()

	cm, srv, recorder := newTestGateway(t, nil)

	first := dialRoom(t, srv, "")
	second := dialRoom(t, srv, "")
	join(t, first, "k")
	join(t, second, "k")
	track(t, first, map[string]string{"device": "tablet"})
	track(t, second, map[string]string{"device": "phone"})

	require.Len(t, cm.Presence(testRoom)["k"], 2)

	send(t, first, realtime.TypeLeave, "3", nil)
	require.Equal(t, realtime.ReplyOK, readReply(t, first).Status)

	require.Len(t, cm.Presence(testRoom)["k"], 1)
	_, leaves := recorder.snapshot()
	assert.Empty(t, leaves)

	require.NoError(t, second.Close())
	require.Eventually(t, func() bool {
		_, leaves := recorder.snapshot()
		return len(leaves) == 1
	}, 3*time.Second, 10*time.Millisecond)

	joins, _ := recorder.snapshot()
	assert.Equal(t, []string{testRoom + "/k"}, joins)
	assert.Empty(t, cm.Presence(testRoom))
}

func TestTrackBeforeJoinRejected(t *testing.T) {
	t.Parallel()

	cm, srv, _ := newTestGateway(t, nil)

	conn := dialRoom(t, srv, "")
	send(t, conn, realtime.TypeTrack, "1", map[string]string{"username": "ana"})

	reply := readReply(t, conn)
	assert.Equal(t, realtime.ReplyError, reply.Status)
	assert.Contains(t, reply.Reason, "before join")
	assert.Empty(t, cm.Presence(testRoom))
}

func TestUnsupportedFrameRejected(t *testing.T) {
	t.Parallel()

	_, srv, _ := newTestGateway(t, nil)

	conn := dialRoom(t, srv, "")
	send(t, conn, realtime.MessageType("shout"), "9", nil)

	reply := readReply(t, conn)
	assert.Equal(t, realtime.ReplyError, reply.Status)
}

func TestJoin_PresenceKeyMustMatchToken(t *testing.T) {
	t.Parallel()

	issuer := auth.NewIssuer([]byte("gateway-secret"), time.Hour, nil)
	_, srv, _ := newTestGateway(t, issuer)

	token, err := issuer.Issue("7", "ana", auth.RoleKitchen)
	require.NoError(t, err)
	conn := dialRoom(t, srv, token)

	send(t, conn, realtime.TypeJoin, "1", realtime.JoinPayload{PresenceKey: "8"})
	reply := readReply(t, conn)
	assert.Equal(t, realtime.ReplyError, reply.Status)
	assert.Contains(t, reply.Reason, "does not match")

	join(t, conn, "7")
}

func TestRealtimeRequiresKitchenAccess(t *testing.T) {
	t.Parallel()

	issuer := auth.NewIssuer([]byte("gateway-secret"), time.Hour, nil)
	_, srv, _ := newTestGateway(t, issuer)

	waiter, err := issuer.Issue("3", "wes", auth.RoleWaiter)
	require.NoError(t, err)

	tests := []struct {
		name   string
		token  string
		status int
	}{
		{name: "no token", token: "", status: http.StatusUnauthorized},
		{name: "waiter", token: waiter, status: http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			header := http.Header{}
			if tt.token != "" {
				header.Set("Authorization", "Bearer "+tt.token)
			}
			_, resp, err := websocket.DefaultDialer.Dial(wsURL(srv), header)
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, tt.status, resp.StatusCode)
		})
	}
}

func TestRoomPresenceRoute(t *testing.T) {
	t.Parallel()

	_, srv, _ := newTestGateway(t, nil)

	conn := dialRoom(t, srv, "")
	join(t, conn, "staff-2")
	track(t, conn, presence.Record{StaffID: "staff-2", Username: "bo", OnlineAt: "2026-05-02T18:04:05.123Z"})

	resp, err := http.Get(srv.URL + "/api/rooms/" + testRoom + "/presence")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body PresenceResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, testRoom, body.Room)
	assert.Equal(t, 1, body.Count)
	require.Len(t, body.Records["staff-2"], 1)
	assert.JSONEq(t,
		`{"staffId":"staff-2","username":"bo","online_at":"2026-05-02T18:04:05.123Z"}`,
		string(body.Records["staff-2"][0]))

	kitchen, err := http.Get(srv.URL + "/kitchen/presence")
	require.NoError(t, err)
	defer kitchen.Body.Close()
	var kitchenBody PresenceResponse
	require.NoError(t, json.NewDecoder(kitchen.Body).Decode(&kitchenBody))
	assert.Equal(t, testRoom, kitchenBody.Room)
	assert.Equal(t, 1, kitchenBody.Count)
}

func TestBroadcastReachesRoom(t *testing.T) {
	t.Parallel()

	cm, srv, _ := newTestGateway(t, nil)

	conn := dialRoom(t, srv, "")
	join(t, conn, "display-1")

	cm.BroadcastToAll(&Event{ID: "e1", Type: EventTypeOrderPlaced, Data: json.RawMessage(`{"order_id":"o-1"}`)})

	var event Event
	require.NoError(t, readUntil(t, conn, realtime.TypeBroadcast).Decode(&event))
	assert.Equal(t, EventTypeOrderPlaced, event.Type)
	assert.JSONEq(t, `{"order_id":"o-1"}`, string(event.Data))
}

func TestBeaconReleaseBeforeSubscribe(t *testing.T) {
	t.Parallel()

	cm, srv, _ := newTestGateway(t, nil)

	client := realtime.NewSocketClient(realtime.SocketConfig{URL: wsURL(srv)})
	beacon := presence.NewBeacon(client)

	for i := 0; i < 50; i++ {
		session := beacon.Mount(context.Background(), &presence.Identity{ID: fmt.Sprintf("staff-%d", i), Username: "ana"})
		if i%3 == 0 {
			time.Sleep(time.Duration(i*20) * time.Microsecond)
		}
		session.Unmount()
	}

	assert.Zero(t, client.Channels())
	require.Eventually(t, func() bool {
		return len(cm.Rooms()) == 0 && len(cm.Presence(testRoom)) == 0
	}, 5*time.Second, 10*time.Millisecond)
}

func TestUnmountWhileJoinIsPending(t *testing.T) {
	t.Parallel()

	joinSeen := make(chan struct{})
	var once sync.Once
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		// Reads frames but never replies
		for {
			var msg realtime.Message
			if err := conn.ReadJSON(&msg); err != nil {
				return
			}
			if msg.Type == realtime.TypeJoin {
				once.Do(func() { close(joinSeen) })
			}
		}
	}))
	t.Cleanup(srv.Close)

	client := realtime.NewSocketClient(realtime.SocketConfig{URL: wsURL(srv)})
	session := presence.NewBeacon(client).Mount(context.Background(), &presence.Identity{ID: "staff-1", Username: "ana"})

	select {
	case <-joinSeen:
	case <-time.After(3 * time.Second):
		t.Fatal("join frame was never sent")
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		session.Unmount()
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Unmount waited on the unanswered join")
	}
	assert.False(t, session.Tracked())
	assert.Zero(t, client.Channels())
}

// orderedRecorder logs calls in order; RecordLeave waits for gate
type orderedRecorder struct {
	gate chan struct{}

	mu    sync.Mutex
	calls []string
}

func (r *orderedRecorder) RecordJoin(_ context.Context, _, key string, _ json.RawMessage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "join "+key)
	return nil
}

func (r *orderedRecorder) RecordLeave(ctx context.Context, _, key string) error {
	select {
	case <-r.gate:
	case <-ctx.Done():
		return ctx.Err()
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, "leave "+key)
	return nil
}

func (r *orderedRecorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.calls...)
}

func TestRecorderFollowsStateOrder(t *testing.T) {
	t.Parallel()

	recorder := &orderedRecorder{gate: make(chan struct{})}
	cm, srv := startGateway(t, nil, recorder)

	first := dialRoom(t, srv, "")
	join(t, first, "k")
	track(t, first, map[string]string{"device": "tablet"})
	require.Eventually(t, func() bool { return len(recorder.snapshot()) == 1 }, 3*time.Second, 10*time.Millisecond)

	// The leave is applied to state but its record is held at the gate
	require.NoError(t, first.Close())
	require.Eventually(t, func() bool { return len(cm.Presence(testRoom)) == 0 }, 3*time.Second, 10*time.Millisecond)

	second := dialRoom(t, srv, "")
	join(t, second, "k")
	track(t, second, map[string]string{"device": "phone"})
	require.Len(t, cm.Presence(testRoom)["k"], 1)

	close(recorder.gate)
	require.Eventually(t, func() bool { return len(recorder.snapshot()) == 3 }, 3*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"join k", "leave k", "join k"}, recorder.snapshot())
}
