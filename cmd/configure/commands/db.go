package commands

import (
	"context"
	"fmt"

	"github.com/benvon/mentra/internal/config"
	"github.com/benvon/mentra/internal/database"
)

// withDatabase connects to DATABASE_URL and runs fn. The configure tool only
// makes sense against PostgreSQL, whatever STORAGE_BACKEND says.
func withDatabase(ctx context.Context, fn func(db *database.DB) error) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	db, err := database.New(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connect to database: %w", err)
	}
	defer func() { _ = db.Close() }()
	return fn(db)
}
