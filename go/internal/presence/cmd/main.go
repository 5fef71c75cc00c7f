package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/kiosk/go/internal/presence"
)

const usage = `kiosk-beacon announces a kitchen station on the presence room.

Usage:
  kiosk-beacon login  [--server URL] [--store PATH] [--username NAME]
  kiosk-beacon run    [--server URL] [--room ROOM] [--transport socket|nats] [--nats URL] [--store PATH]
  kiosk-beacon status [--server URL] [--room ROOM] [--store PATH]
`

// commonFlags are shared by every subcommand
type commonFlags struct {
	server string
	store  string
}

func (c *commonFlags) add(fs *pflag.FlagSet) {
	fs.StringVar(&c.server, "server", getEnv("KIOSK_SERVER", "http://localhost:8080"), "kiosk API server base URL")
	fs.StringVar(&c.store, "store", presence.DefaultStorePath(), "path of the local identity store")
}

func main() {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("No .env file found")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") != "" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := dispatch(ctx, os.Args[1:], os.Stdout); err != nil {
		log.Error().Err(err).Msg("kiosk-beacon failed")
		os.Exit(1)
	}
}

func dispatch(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		fmt.Fprint(out, usage)
		return nil
	}

	cmd, rest := args[0], args[1:]
	var err error
	switch cmd {
	case "login":
		err = runLogin(ctx, rest, out)
	case "run":
		err = runBeacon(ctx, rest)
	case "status":
		err = runStatus(ctx, rest, out)
	default:
		return fmt.Errorf("unknown command %q", cmd)
	}
	if errors.Is(err, pflag.ErrHelp) {
		return nil
	}
	return err
}

// socketURL maps the API server base URL to the gateway websocket endpoint
func socketURL(server string) (string, error) {
	u, err := url.Parse(server)
	if err != nil {
		return "", fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/realtime/ws"
	u.RawQuery = ""
	return u.String(), nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
