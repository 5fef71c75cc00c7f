package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/dbconfig"
	"github.com/mcdev12/kiosk/go/internal/outbox"
	"github.com/mcdev12/kiosk/go/internal/outbox/db"
)

func main() {
	// load .env
	if err := godotenv.Load(); err != nil {
		log.Warn().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg := dbconfig.NewConfigFromEnv()
	database, err := dbconfig.Open(ctx, cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("open database")
	}
	defer database.Close()

	clock := clockwork.NewRealClock()
	repo := outbox.NewRepository(db.New(database))

	publishers := outbox.MultiPublisher{}
	var busChecks []func() bool

	jsCfg := outbox.DefaultJetStreamConfig()
	if url := os.Getenv("NATS_URL"); url != "" {
		jsCfg.URL = url
	}
	if os.Getenv("NATS_DISABLED") == "" {
		js, err := outbox.NewJetStreamPublisher(ctx, jsCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create JetStream publisher")
		}
		defer js.Close()
		publishers = append(publishers, js)
		busChecks = append(busChecks, js.Connected)
	}

	if url := os.Getenv("AMQP_URL"); url != "" {
		amqpCfg := outbox.DefaultAMQPConfig()
		amqpCfg.URL = url
		if ex := os.Getenv("AMQP_EXCHANGE"); ex != "" {
			amqpCfg.Exchange = ex
		}
		mq, err := outbox.NewAMQPPublisher(amqpCfg)
		if err != nil {
			log.Fatal().Err(err).Msg("create AMQP publisher")
		}
		defer mq.Close()
		publishers = append(publishers, mq)
		busChecks = append(busChecks, mq.Connected)
	}

	var publisher outbox.Publisher = publishers
	if len(publishers) == 0 {
		log.Warn().Msg("no bus configured, relaying to log")
		publisher = outbox.LogPublisher{}
	}

	ltCfg := outbox.DefaultListenerConfig()
	ltCfg.DatabaseURL = cfg.DSN()
	if iv := os.Getenv("FALLBACK_INTERVAL"); iv != "" {
		if d, err := time.ParseDuration(iv); err == nil {
			ltCfg.FallbackInterval = d
		}
	}

	notifier, err := outbox.NewPQNotifier(ltCfg.DatabaseURL, ltCfg.NotifyChannel)
	if err != nil {
		log.Fatal().Err(err).Msg("create outbox listener")
	}

	counters := outbox.NewCounters(clock)
	listener := outbox.NewListener(repo, notifier, publisher, clock, ltCfg, counters)

	health := outbox.NewHealthChecker(database, repo, func() bool {
		for _, connected := range busChecks {
			if !connected() {
				return false
			}
		}
		return true
	}, counters, clock, 2*ltCfg.FallbackInterval)

	healthAddr := os.Getenv("RELAY_HEALTH_ADDR")
	if healthAddr == "" {
		healthAddr = ":8081"
	}
	mux := http.NewServeMux()
	mux.Handle("/health", health)
	srv := &http.Server{Addr: healthAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		log.Info().Str("addr", healthAddr).Msg("health endpoint listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("health server failed")
		}
	}()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Msg("starting outbox relay")
		errCh <- listener.Start(ctx)
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutdown signal received")
		if err := <-errCh; err != nil {
			log.Error().Err(err).Msg("listener close")
		}
	case err := <-errCh:
		log.Error().Err(err).Msg("listener exited unexpectedly")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("health server shutdown")
	}
	log.Info().Msg("graceful shutdown complete")
}
