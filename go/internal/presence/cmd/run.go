package main

import (
	"context"
	"fmt"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/mcdev12/kiosk/go/internal/presence"
	"github.com/mcdev12/kiosk/go/internal/realtime"
)

const (
	transportSocket = "socket"
	transportNATS   = "nats"
)

func runBeacon(ctx context.Context, args []string) error {
	var common commonFlags
	var room, transport, natsURL string

	fs := pflag.NewFlagSet("run", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVar(&room, "room", getEnv("PRESENCE_ROOM", presence.DefaultRoom), "presence room to announce in")
	fs.StringVar(&transport, "transport", transportSocket, "realtime transport: socket or nats")
	fs.StringVar(&natsURL, "nats", getEnv("NATS_URL", nats.DefaultURL), "NATS server URL for --transport nats")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := presence.NewLocalStore(common.store)
	identity, err := presence.LoadIdentity(store)
	if err != nil {
		return err
	}
	if identity == nil {
		log.Warn().Str("store", common.store).Msg("No signed-in staff member, beacon stays inert. Run kiosk-beacon login first")
	}

	rt, cleanup, err := newRealtime(transport, common, store, natsURL)
	if err != nil {
		return err
	}
	defer cleanup()

	beacon := presence.NewBeacon(rt, presence.WithRoom(room))
	session := beacon.Mount(ctx, identity)
	log.Info().Str("room", room).Str("transport", transport).Msg("Beacon mounted")

	<-ctx.Done()
	session.Unmount()
	log.Info().Str("room", room).Msg("Beacon unmounted")
	return nil
}

func newRealtime(transport string, common commonFlags, store presence.IdentityStore, natsURL string) (presence.Realtime, func(), error) {
	switch transport {
	case transportSocket:
		wsURL, err := socketURL(common.server)
		if err != nil {
			return nil, nil, err
		}
		token, _, err := store.Get(presence.TokenKey)
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", presence.TokenKey, err)
		}
		client := realtime.NewSocketClient(realtime.SocketConfig{URL: wsURL, Token: token})
		return client, func() {}, nil
	case transportNATS:
		nc, err := nats.Connect(natsURL, nats.Name("kiosk-beacon"))
		if err != nil {
			return nil, nil, fmt.Errorf("connect to NATS: %w", err)
		}
		return realtime.NewNATSClient(nc, realtime.DefaultNATSConfig()), nc.Close, nil
	default:
		return nil, nil, fmt.Errorf("unknown transport %q", transport)
	}
}
