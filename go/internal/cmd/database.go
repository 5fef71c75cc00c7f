package main

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/mcdev12/kiosk/go/internal/dbconfig"
	"github.com/mcdev12/kiosk/go/internal/migrations"
)

func setupDatabase(ctx context.Context) (*sql.DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	database, err := dbconfig.Open(ctx, dbconfig.NewConfigFromEnv())
	if err != nil {
		return nil, err
	}

	if err := migrations.Up(ctx, database); err != nil {
		database.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return database, nil
}
