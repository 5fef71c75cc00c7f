package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"
)

type HealthStatus struct {
	Healthy           bool            `json:"healthy"`
	PendingEvents     int64           `json:"pending_events"`
	DatabaseConnected bool            `json:"database_connected"`
	BusConnected      bool            `json:"bus_connected"`
	Metrics           MetricsSnapshot `json:"metrics"`
	Errors            []string        `json:"errors"`
}

// Pinger is satisfied by *sql.DB
type Pinger interface {
	PingContext(ctx context.Context) error
}

// PendingCounter is satisfied by *Repository
type PendingCounter interface {
	CountPending(ctx context.Context) (int64, error)
}

type HealthChecker struct {
	db           Pinger
	pending      PendingCounter
	busConnected func() bool
	counters     *Counters
	clock        clockwork.Clock
	threshold    time.Duration // How long pending events may sit before unhealthy
	maxPending   int64
}

func NewHealthChecker(db Pinger, pending PendingCounter, busConnected func() bool, counters *Counters, clock clockwork.Clock, threshold time.Duration) *HealthChecker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &HealthChecker{
		db:           db,
		pending:      pending,
		busConnected: busConnected,
		counters:     counters,
		clock:        clock,
		threshold:    threshold,
		maxPending:   1000,
	}
}

func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	status := HealthStatus{
		Healthy:      true,
		BusConnected: true,
		Errors:       []string{},
	}
	if h.counters != nil {
		status.Metrics = h.counters.Snapshot()
	}

	if err := h.db.PingContext(ctx); err != nil {
		status.Healthy = false
		status.Errors = append(status.Errors, fmt.Sprintf("database ping failed: %v", err))
	} else {
		status.DatabaseConnected = true
	}

	if h.busConnected != nil && !h.busConnected() {
		status.BusConnected = false
		status.Healthy = false
		status.Errors = append(status.Errors, "bus disconnected")
	}

	if status.DatabaseConnected {
		pending, err := h.pending.CountPending(ctx)
		if err != nil {
			status.Errors = append(status.Errors, fmt.Sprintf("failed to count pending events: %v", err))
		} else {
			status.PendingEvents = pending
			if pending > h.maxPending {
				status.Errors = append(status.Errors, fmt.Sprintf("high pending event count: %d", pending))
			}
		}
	}

	last := status.Metrics.LastEventTime
	if status.PendingEvents > 0 && !last.IsZero() {
		if since := h.clock.Since(last); since > h.threshold {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("no events processed for %s", since))
		}
	}

	return status
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
	defer cancel()

	status := h.Check(ctx)

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Error().Err(err).Msg("failed to encode health status")
	}
}
