package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/mcdev12/kiosk/go/internal/auth"
	"github.com/mcdev12/kiosk/go/internal/dbconfig"
	"github.com/mcdev12/kiosk/go/internal/migrations"
	"github.com/mcdev12/kiosk/go/internal/models"
	"github.com/mcdev12/kiosk/go/internal/staff"
)

// StaffSeed mirrors an entry of the JSON seed file
type StaffSeed struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type registrar interface {
	Register(ctx context.Context, req staff.RegisterRequest) (*models.Staff, error)
}

type summary struct {
	total, inserted, skipped, errs int
}

func main() {
	path := os.Getenv("SEED_STAFF_FILE")
	if path == "" {
		path = "go/internal/assets/staff.json"
	}

	// 1) Load the JSON snapshot
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read JSON: %v\n", err)
		os.Exit(1)
	}
	var seeds []StaffSeed
	if err := json.Unmarshal(data, &seeds); err != nil {
		fmt.Fprintf(os.Stderr, "unmarshal JSON: %v\n", err)
		os.Exit(1)
	}

	// 2) Connect using shared dbconfig
	ctx := context.Background()
	database, err := dbconfig.Open(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to connect: %v\n", err)
		os.Exit(1)
	}
	defer database.Close()

	if err := migrations.Up(ctx, database); err != nil {
		fmt.Fprintf(os.Stderr, "failed to migrate: %v\n", err)
		os.Exit(1)
	}

	// 3) Register and count. Seeding never issues tokens.
	app := staff.NewApp(staff.NewRepository(database), nil)
	s := seed(ctx, app, seeds)

	// 4) Print summary
	fmt.Printf(
		"Staff seed complete: %d total, %d inserted, %d skipped, %d errors\n",
		s.total, s.inserted, s.skipped, s.errs,
	)
}

// seed registers every account as an admin would, skipping taken usernames
func seed(ctx context.Context, app registrar, seeds []StaffSeed) summary {
	ctx = auth.WithClaims(ctx, &auth.Claims{Username: "seed", Role: auth.RoleAdmin})

	s := summary{total: len(seeds)}
	for _, entry := range seeds {
		_, err := app.Register(ctx, staff.RegisterRequest{
			Username: entry.Username,
			Password: entry.Password,
			Role:     entry.Role,
		})
		switch {
		case err == nil:
			s.inserted++
		case errors.Is(err, staff.ErrUsernameTaken):
			s.skipped++
		default:
			log.Error().Err(err).Str("username", entry.Username).Msg("error inserting staff member")
			s.errs++
		}
	}
	return s
}
