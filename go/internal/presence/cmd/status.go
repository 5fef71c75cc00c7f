package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/spf13/pflag"

	"github.com/mcdev12/kiosk/go/clients"
	"github.com/mcdev12/kiosk/go/internal/presence"
)

func runStatus(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	var room string

	fs := pflag.NewFlagSet("status", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVar(&room, "room", getEnv("PRESENCE_ROOM", presence.DefaultRoom), "presence room to inspect")
	if err := fs.Parse(args); err != nil {
		return err
	}

	store := presence.NewLocalStore(common.store)
	identity, err := presence.LoadIdentity(store)
	if err != nil {
		return err
	}
	token, _, err := store.Get(presence.TokenKey)
	if err != nil {
		return fmt.Errorf("read %s: %w", presence.TokenKey, err)
	}

	if identity != nil {
		fmt.Fprintf(out, "signed in as %s (%s)\n", identity.Username, identity.ID)
	} else {
		fmt.Fprintln(out, "not signed in")
	}

	client := clients.NewKioskClient(common.server, token)
	roster, err := client.RoomPresence(ctx, room)
	if err != nil {
		return err
	}

	fmt.Fprintf(out, "%s: %d present\n", roster.Room, roster.Count)
	keys := make([]string, 0, len(roster.Records))
	for key := range roster.Records {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		fmt.Fprintf(out, "  %s (%d connections)\n", key, len(roster.Records[key]))
	}
	return nil
}
