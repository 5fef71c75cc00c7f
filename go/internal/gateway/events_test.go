package gateway

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcdev12/kiosk/go/internal/clock"
	"github.com/mcdev12/kiosk/go/internal/events"
)

type recordingBroadcaster struct {
	mu     sync.Mutex
	rooms  []string
	events []*Event
}

func (b *recordingBroadcaster) BroadcastToRoom(room string, event *Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.rooms = append(b.rooms, room)
	b.events = append(b.events, event)
}

func (b *recordingBroadcaster) BroadcastToAll(event *Event) {
	b.BroadcastToRoom("", event)
}

func (b *recordingBroadcaster) received() []*Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]*Event(nil), b.events...)
}

func TestHandleEnvelope(t *testing.T) {
	t.Parallel()

	at := time.Date(2026, 5, 2, 18, 4, 5, 0, time.UTC)
	payload, err := json.Marshal(events.PresenceChangedPayload{Room: "kitchen-presence", StaffID: "7", ChangedAt: at})
	require.NoError(t, err)
	data, err := json.Marshal(events.Envelope{
		EventID:   "evt-1",
		EventType: events.TypePresenceJoined,
		Room:      "kitchen-presence",
		Timestamp: at,
		Payload:   payload,
	})
	require.NoError(t, err)

	b := &recordingBroadcaster{}
	ec := &EventConsumer{broadcaster: b}
	require.NoError(t, ec.handleEnvelope(data))

	require.Len(t, b.events, 1)
	assert.Equal(t, "kitchen-presence", b.rooms[0])
	event := b.events[0]
	assert.Equal(t, "evt-1", event.ID)
	assert.Equal(t, EventTypePresenceJoined, event.Type)
	assert.True(t, at.Equal(event.Timestamp))

	parsed, err := ParseEventPayload(event)
	require.NoError(t, err)
	presencePayload, ok := parsed.(events.PresenceChangedPayload)
	require.True(t, ok)
	assert.Equal(t, "7", presencePayload.StaffID)
}

func TestHandleEnvelope_Rejects(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		data string
	}{
		{name: "malformed", data: `{"eventType":`},
		{name: "unknown type", data: `{"eventId":"e","eventType":"DraftStarted","payload":{}}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			b := &recordingBroadcaster{}
			ec := &EventConsumer{broadcaster: b}
			assert.Error(t, ec.handleEnvelope([]byte(tt.data)))
			assert.Empty(t, b.received())
		})
	}
}

func TestParseEventPayload_OrderEvents(t *testing.T) {
	t.Parallel()

	placed, err := ParseEventPayload(&Event{
		Type: EventTypeOrderPlaced,
		Data: json.RawMessage(`{"order_id":"o-1","order_number":12,"item_count":3}`),
	})
	require.NoError(t, err)
	assert.Equal(t, events.OrderPlacedPayload{OrderID: "o-1", OrderNumber: 12, ItemCount: 3}, placed)

	unknown, err := ParseEventPayload(&Event{Type: "Nope", Data: json.RawMessage(`{}`)})
	require.NoError(t, err)
	assert.Nil(t, unknown)
}

func TestClockBroadcasterSendsTicks(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 5, 2, 18, 0, 0, 0, time.UTC)
	fc := clockwork.NewFakeClockAt(start)
	provider := clock.NewProvider(clock.NewStore(fc), clock.WithInterval(time.Second))

	b := &recordingBroadcaster{}
	cb := &ClockBroadcaster{provider: provider, broadcaster: b}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		cb.Run(ctx)
	}()

	waitCtx, waitCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer waitCancel()
	require.NoError(t, fc.BlockUntilContext(waitCtx, 1))

	fc.Advance(time.Second)
	require.Eventually(t, func() bool { return len(b.received()) == 1 }, 2*time.Second, 5*time.Millisecond)

	event := b.received()[0]
	assert.Equal(t, EventTypeClockTick, event.Type)
	var tick ClockTickPayload
	require.NoError(t, json.Unmarshal(event.Data, &tick))
	assert.True(t, start.Add(time.Second).Equal(tick.Now))
	assert.Equal(t, int64(1000), tick.IntervalMs)

	cancel()
	<-done
	assert.False(t, provider.Active())
}
