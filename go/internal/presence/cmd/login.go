package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"github.com/mcdev12/kiosk/go/internal/presence"
	"github.com/mcdev12/kiosk/go/internal/staff"
)

var (
	readPassword = term.ReadPassword
	stdin        io.Reader = os.Stdin
)

func runLogin(ctx context.Context, args []string, out io.Writer) error {
	var common commonFlags
	var username string

	fs := pflag.NewFlagSet("login", pflag.ContinueOnError)
	common.add(fs)
	fs.StringVar(&username, "username", "", "staff username (prompted when empty)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	if username == "" {
		fmt.Fprint(out, "Username: ")
		line, err := bufio.NewReader(stdin).ReadString('\n')
		if err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("read username: %w", err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return errors.New("username is required")
	}

	fmt.Fprint(out, "Password: ")
	password, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(out)
	if err != nil {
		return fmt.Errorf("read password: %w", err)
	}

	client := staff.NewClient(nil, common.server)
	resp, err := client.Login(ctx, username, string(password))
	if err != nil {
		return fmt.Errorf("login: %w", err)
	}

	store := presence.NewLocalStore(common.store)
	if err := saveSession(store, resp); err != nil {
		return err
	}

	log.Info().
		Str("staff_id", resp.Identity.ID).
		Str("username", resp.Identity.Username).
		Str("store", common.store).
		Msg("Signed in")
	return nil
}

// saveSession persists the identity and token the beacon reads on run
func saveSession(store presence.IdentityStore, resp *staff.LoginResponse) error {
	if err := presence.SaveIdentity(store, resp.Identity); err != nil {
		return fmt.Errorf("save identity: %w", err)
	}
	if err := store.Set(presence.TokenKey, resp.Token); err != nil {
		return fmt.Errorf("save token: %w", err)
	}
	return nil
}
