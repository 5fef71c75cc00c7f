package outbox

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/lib/pq"
	"github.com/rs/zerolog/log"
)

type ListenerConfig struct {
	DatabaseURL      string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel    string        // Channel name to LISTEN on
	FallbackInterval time.Duration // How often to poll for missed events
	MaxRetries       int
	RetryDelay       time.Duration
	PingInterval     time.Duration
	BatchSize        int32 // Max events to fetch per batch
}

func DefaultListenerConfig() ListenerConfig {
	return ListenerConfig{
		DatabaseURL:      "",
		NotifyChannel:    "presence_outbox_events",
		FallbackInterval: 30 * time.Second,
		MaxRetries:       5,
		RetryDelay:       200 * time.Millisecond,
		PingInterval:     90 * time.Second,
		BatchSize:        100,
	}
}

// Store is the slice of the repository the relay needs
type Store interface {
	FetchByID(ctx context.Context, id uuid.UUID) (*OutboxEvent, error)
	FetchUnsent(ctx context.Context, limit int32) ([]OutboxEvent, error)
	MarkSent(ctx context.Context, id uuid.UUID) error
	RecordFailure(ctx context.Context, id uuid.UUID, cause error) error
}

// Notifier yields the ids announced on the notify channel.
// A nil notification means the connection was re-established.
type Notifier interface {
	Notifications() <-chan *pq.Notification
	Ping() error
	Close() error
}

type pqNotifier struct {
	*pq.Listener
}

func (n pqNotifier) Notifications() <-chan *pq.Notification {
	return n.Notify
}

// NewPQNotifier opens a dedicated LISTEN connection on channel
func NewPQNotifier(databaseURL, channel string) (Notifier, error) {
	l := pq.NewListener(
		databaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(channel); err != nil {
		_ = l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", channel).
		Msg("listening for notifications")
	return pqNotifier{Listener: l}, nil
}

type Listener struct {
	store     Store
	notifier  Notifier
	publisher Publisher
	clock     clockwork.Clock
	cfg       ListenerConfig
	metrics   MetricsCollector
}

func NewListener(store Store, notifier Notifier, publisher Publisher, clock clockwork.Clock, cfg ListenerConfig, metrics MetricsCollector) *Listener {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if metrics == nil {
		metrics = NoOpMetricsCollector{}
	}
	return &Listener{
		store:     store,
		notifier:  notifier,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		metrics:   metrics,
	}
}

// Start drains the backlog once, then relays notifications until ctx is done
func (l *Listener) Start(ctx context.Context) error {
	log.Info().
		Str("channel", l.cfg.NotifyChannel).
		Dur("ping_interval", l.cfg.PingInterval).
		Dur("fallback_interval", l.cfg.FallbackInterval).
		Msg("listener started")

	if err := l.processUnsent(ctx); err != nil {
		log.Error().Err(err).Msg("failed to process backlog")
	}

	pingTicker := l.clock.NewTicker(l.cfg.PingInterval)
	fallbackTicker := l.clock.NewTicker(l.cfg.FallbackInterval)
	defer pingTicker.Stop()
	defer fallbackTicker.Stop()

	notes := l.notifier.Notifications()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("listener shutting down")
			return l.Stop()
		case note, ok := <-notes:
			if !ok {
				return errors.New("notification channel closed")
			}
			if note == nil {
				// reconnected; anything announced while down is picked up by the sweep
				if err := l.processUnsent(ctx); err != nil {
					log.Error().Err(err).Msg("failed to process unsent events after reconnect")
				}
				continue
			}
			if err := l.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-fallbackTicker.Chan():
			if err := l.processUnsent(ctx); err != nil {
				log.Error().Err(err).Msg("failed to process unsent events")
			}
		case <-pingTicker.Chan():
			if err := l.notifier.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (l *Listener) Stop() error {
	return l.notifier.Close()
}

// handleNotification relays the event whose id is carried on the note
func (l *Listener) handleNotification(ctx context.Context, extra string) error {
	id, err := uuid.Parse(extra)
	if err != nil {
		return fmt.Errorf("invalid event ID in notification: %w", err)
	}

	event, err := l.store.FetchByID(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			// already relayed by the sweep
			return nil
		}
		return fmt.Errorf("failed to fetch outbox event: %w", err)
	}

	return l.relay(ctx, *event)
}

// processUnsent relays a batch of unsent events oldest first
func (l *Listener) processUnsent(ctx context.Context) error {
	unsent, err := l.store.FetchUnsent(ctx, l.cfg.BatchSize)
	if err != nil {
		return fmt.Errorf("failed to fetch unsent outbox events: %w", err)
	}

	for _, event := range unsent {
		if err := l.relay(ctx, event); err != nil {
			log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to relay event")
		}
	}
	return nil
}

// relay publishes the event and settles the row exactly once
func (l *Listener) relay(ctx context.Context, event OutboxEvent) error {
	if event.Attempts > 0 {
		log.Warn().
			Str("event_id", event.ID.String()).
			Int("previous_attempts", event.Attempts).
			Str("last_error", event.LastError).
			Msg("relaying previously failed event")
	}
	start := l.clock.Now()
	if err := l.publishWithRetry(ctx, event); err != nil {
		l.metrics.RecordPublishFailure(event.EventType)
		if ctx.Err() == nil {
			if rerr := l.store.RecordFailure(ctx, event.ID, err); rerr != nil {
				log.Error().Err(rerr).Str("event_id", event.ID.String()).Msg("failed to record outbox failure")
			}
		}
		return fmt.Errorf("failed to publish event: %w", err)
	}
	l.metrics.RecordPublishLatency(event.EventType, l.clock.Since(start))

	if err := l.store.MarkSent(ctx, event.ID); err != nil {
		log.Error().Err(err).Str("event_id", event.ID.String()).Msg("failed to mark outbox event as sent")
		return err
	}
	l.metrics.RecordPublished(event.EventType)

	log.Info().Str("event_id", event.ID.String()).Str("event_type", event.EventType).Msg("published and marked event as sent")
	return nil
}

// publishWithRetry attempts to publish an outbox event with a linear backoff
func (l *Listener) publishWithRetry(ctx context.Context, event OutboxEvent) error {
	var lastErr error

	for attempt := 0; attempt <= l.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := l.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-l.clock.After(delay):
			}
		}

		if err := l.publisher.Publish(ctx, event); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("failed to publish, retrying")
			continue
		}

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", event.ID.String()).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", l.cfg.MaxRetries+1, lastErr)
}
