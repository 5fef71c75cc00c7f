package outbox

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// MetricsCollector defines the interface for collecting relay metrics
type MetricsCollector interface {
	RecordPublished(eventType string)
	RecordPublishFailure(eventType string)
	RecordPublishLatency(eventType string, d time.Duration)
}

// NoOpMetricsCollector is a no-op implementation for when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) RecordPublished(string)                      {}
func (NoOpMetricsCollector) RecordPublishFailure(string)                 {}
func (NoOpMetricsCollector) RecordPublishLatency(string, time.Duration) {}

// Counters keeps in-process totals for the health endpoint
type Counters struct {
	mu          sync.Mutex
	clock       clockwork.Clock
	published   map[string]uint64
	failed      map[string]uint64
	lastLatency time.Duration
	lastEvent   time.Time
}

func NewCounters(clock clockwork.Clock) *Counters {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Counters{
		clock:     clock,
		published: make(map[string]uint64),
		failed:    make(map[string]uint64),
	}
}

func (c *Counters) RecordPublished(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.published[eventType]++
	c.lastEvent = c.clock.Now()
}

func (c *Counters) RecordPublishFailure(eventType string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.failed[eventType]++
}

func (c *Counters) RecordPublishLatency(_ string, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lastLatency = d
}

// MetricsSnapshot is a point-in-time copy of Counters
type MetricsSnapshot struct {
	Published     uint64            `json:"published"`
	Failed        uint64            `json:"failed"`
	ByType        map[string]uint64 `json:"by_type"`
	LastLatencyMs int64             `json:"last_latency_ms"`
	LastEventTime time.Time         `json:"last_event_time"`
}

func (c *Counters) Snapshot() MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := MetricsSnapshot{
		ByType:        make(map[string]uint64, len(c.published)),
		LastLatencyMs: c.lastLatency.Milliseconds(),
		LastEventTime: c.lastEvent,
	}
	for t, n := range c.published {
		snap.Published += n
		snap.ByType[t] = n
	}
	for _, n := range c.failed {
		snap.Failed += n
	}
	return snap
}
