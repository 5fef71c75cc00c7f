package gateway

import (
	"context"
	"fmt"
	"net/http"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/clock"
	"github.com/mcdev12/kiosk/go/internal/presence"
)

// Service is the realtime gateway: presence rooms, clock broadcasting and
// kitchen event fan-out
type Service struct {
	connectionManager *ConnectionManager
	wsHandler         *WebSocketHandler
	eventConsumer     *EventConsumer
	clockBroadcaster  *ClockBroadcaster
}

// Config holds configuration for the gateway service
type Config struct {
	ConnectionConfig ConnectionConfig
	JetStreamConfig  JetStreamConsumerConfig
	EnableConsumer   bool
	DefaultRoom      string
}

// Deps are the collaborators the gateway is wired with. Every field is
// optional.
type Deps struct {
	Verifier auth.Verifier
	Recorder PresenceRecorder
	Clock    *clock.Provider
	Time     clockwork.Clock
}

// DefaultConfig returns default configuration for the gateway
func DefaultConfig() Config {
	return Config{
		ConnectionConfig: DefaultConnectionConfig(),
		JetStreamConfig:  DefaultJetStreamConsumerConfig(),
		DefaultRoom:      presence.DefaultRoom,
	}
}

// NewService creates a new gateway service
func NewService(config Config, deps Deps) (*Service, error) {
	connectionManager := NewConnectionManager(config.ConnectionConfig, deps.Time, deps.Recorder)

	s := &Service{
		connectionManager: connectionManager,
		wsHandler:         NewWebSocketHandler(connectionManager, deps.Verifier, config.DefaultRoom),
	}

	if config.EnableConsumer {
		eventConsumer, err := NewEventConsumer(connectionManager, config.JetStreamConfig)
		if err != nil {
			return nil, fmt.Errorf("failed to create event consumer: %w", err)
		}
		s.eventConsumer = eventConsumer
	}

	if deps.Clock != nil {
		s.clockBroadcaster = NewClockBroadcaster(deps.Clock, connectionManager)
	}

	return s, nil
}

// Start runs the gateway until ctx is cancelled
func (s *Service) Start(ctx context.Context) error {
	log.Info().Msg("starting realtime gateway")

	go s.connectionManager.Start(ctx)

	if s.eventConsumer != nil {
		go func() {
			if err := s.eventConsumer.Start(ctx); err != nil {
				log.Error().Err(err).Msg("event consumer failed")
			}
		}()
	}

	if s.clockBroadcaster != nil {
		go s.clockBroadcaster.Run(ctx)
	}

	<-ctx.Done()

	log.Info().Msg("realtime gateway shutting down")
	return s.Stop()
}

// Stop releases the event consumer. Connections close when the Start
// context is cancelled.
func (s *Service) Stop() error {
	if s.eventConsumer != nil {
		if err := s.eventConsumer.Stop(); err != nil {
			log.Error().Err(err).Msg("failed to stop event consumer")
		}
	}
	log.Info().Msg("realtime gateway stopped")
	return nil
}

// RegisterRoutes registers the gateway HTTP routes
func (s *Service) RegisterRoutes(mux *http.ServeMux) {
	s.wsHandler.RegisterRoutes(mux)
	log.Info().Msg("realtime gateway routes registered")
}

// GetStats returns statistics about the gateway service
func (s *Service) GetStats() map[string]interface{} {
	stats := s.connectionManager.GetConnectionStats()
	stats["service"] = "kiosk_gateway"
	stats["status"] = "running"
	return stats
}

// BroadcastEvent queues an event for room, or for every room when room is
// empty
func (s *Service) BroadcastEvent(room string, event *Event) {
	s.connectionManager.BroadcastToRoom(room, event)
}
