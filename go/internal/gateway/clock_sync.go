package gateway

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/clock"
)

// ClockBroadcaster pushes the global clock to every room so kitchen displays
// age orders against server time instead of their own
type ClockBroadcaster struct {
	provider    *clock.Provider
	broadcaster interface{ BroadcastToAll(event *Event) }
}

// NewClockBroadcaster creates a broadcaster fed by provider's store
func NewClockBroadcaster(provider *clock.Provider, cm *ConnectionManager) *ClockBroadcaster {
	return &ClockBroadcaster{provider: provider, broadcaster: cm}
}

// Run keeps the clock attached and broadcasts every tick until ctx is done
func (b *ClockBroadcaster) Run(ctx context.Context) {
	ticks, cancel := b.provider.Store().Subscribe()
	defer cancel()

	release := b.provider.Attach()
	defer release()

	interval := b.provider.Interval().Milliseconds()
	for {
		select {
		case <-ctx.Done():
			return
		case now, ok := <-ticks:
			if !ok {
				return
			}
			event, err := newClockTick(now, interval)
			if err != nil {
				log.Error().Err(err).Msg("failed to build clock tick")
				continue
			}
			b.broadcaster.BroadcastToAll(event)
		}
	}
}

func newClockTick(now time.Time, intervalMs int64) (*Event, error) {
	data, err := json.Marshal(ClockTickPayload{Now: now.UTC(), IntervalMs: intervalMs})
	if err != nil {
		return nil, err
	}
	return &Event{
		ID:        uuid.New().String(),
		Type:      EventTypeClockTick,
		Timestamp: now.UTC(),
		Data:      data,
	}, nil
}
