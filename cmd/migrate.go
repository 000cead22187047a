package cmd

import (
	"fmt"

	"github.com/veritail/veritail/db"
	"github.com/veritail/veritail/internal/config"
	"github.com/veritail/veritail/internal/log"
)

// runMigrate applies pending database migrations and exits.
// serve also migrates on startup; this command exists for deploy
// pipelines that migrate before rolling the service.
func runMigrate(logger *log.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	if err := db.Migrate(cfg.PostgresURL()); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	logger.Info("migrations applied", "database", cfg.PostgresDBName)
	return nil
}
