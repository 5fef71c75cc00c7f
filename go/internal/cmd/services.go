package main

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/clock"
	"github.com/mcdev12/kiosk/go/internal/gateway"
	"github.com/mcdev12/kiosk/go/internal/menu"
	"github.com/mcdev12/kiosk/go/internal/outbox"
	"github.com/mcdev12/kiosk/go/internal/staff"
)

type Services struct {
	Issuer  *auth.Issuer
	Clock   *clock.Provider
	Staff   *staff.Service
	Menu    *menu.Service
	Uploads *menu.UploadHandler
	Gateway *gateway.Service
}

func setupServices(ctx context.Context, cfg *Config, database *sql.DB) (*Services, error) {
	// Wire up dependency injection chain
	// Database layer → Repository layer → App layer → Service layer
	realClock := clockwork.NewRealClock()

	secret := []byte(cfg.Auth.JWTSecret)
	if len(secret) == 0 {
		log.Warn().Msg("JWT_SECRET not set, using a random secret; tokens will not survive a restart")
		secret = make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return nil, fmt.Errorf("generate jwt secret: %w", err)
		}
	}
	issuer := auth.NewIssuer(secret, cfg.Auth.TokenTTL, realClock)

	// Staff
	staffRepo := staff.NewRepository(database)
	staffApp := staff.NewApp(staffRepo, issuer)
	staffService := staff.NewService(staffApp)

	// GlobalClock
	provider := clock.NewProvider(clock.NewStore(realClock), clock.WithInterval(cfg.Clock.Interval))

	// Presence audit outbox
	recorder := outbox.NewApp(database, realClock)

	// Gateway
	gwConfig := gateway.DefaultConfig()
	gwConfig.DefaultRoom = cfg.Presence.Room
	gwConfig.EnableConsumer = cfg.NATS.Enabled
	gwConfig.JetStreamConfig.URL = cfg.NATS.URL
	if len(cfg.Server.AllowedOrigins) > 0 {
		gwConfig.ConnectionConfig.CheckOrigin = allowOrigins(cfg.Server.AllowedOrigins)
	}
	deps := gateway.Deps{
		Recorder: recorder,
		Clock:    provider,
		Time:     realClock,
	}
	if cfg.Auth.GatewayAuth {
		deps.Verifier = issuer
	}
	gw, err := gateway.NewService(gwConfig, deps)
	if err != nil {
		return nil, fmt.Errorf("failed to create gateway: %w", err)
	}

	// Menu
	var (
		menuService *menu.Service
		uploads     *menu.UploadHandler
	)
	if cfg.Images.Enabled() {
		store, err := menu.NewS3ImageStore(ctx, cfg.Images)
		if err != nil {
			return nil, fmt.Errorf("failed to create image store: %w", err)
		}
		menuService = menu.NewService(store)
		uploads = menu.NewUploadHandler(store)
	} else {
		log.Warn().Msg("S3_BUCKET not set, product image uploads disabled")
		menuService = menu.NewService(nil)
		uploads = menu.NewUploadHandler(nil)
	}

	return &Services{
		Issuer:  issuer,
		Clock:   provider,
		Staff:   staffService,
		Menu:    menuService,
		Uploads: uploads,
		Gateway: gw,
	}, nil
}
