package main

import (
	"context"
	"fmt"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database/migrations"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order/db"

	"github.com/uptrace/bun"
)

// prepareSchema brings the database up to date. Postgres runs the SQL migrations; SQLite
// gets its tables from the models.
func prepareSchema(ctx context.Context, bunDB *bun.DB, cfg config.DatabaseConfig, logger *logger.Logger) error {
	if !cfg.AutoMigrate {
		logger.Info("MIGRATION", "AUTO_MIGRATE=false, leaving the schema alone")
		return nil
	}

	if cfg.Driver == "sqlite" {
		if err := db.CreateSchema(ctx, bunDB); err != nil {
			return fmt.Errorf("create sqlite schema: %w", err)
		}
		logger.Info("MIGRATION", "✅ SQLite schema ready")
		return nil
	}

	opts := migrations.DefaultOptions()
	opts.MigrationsDir = cfg.MigrationsDir
	runner := migrations.NewRunner(bunDB, opts, logger)
	// Close is skipped: the postgres driver would close the pool the service still uses.
	if err := runner.RunMigrations(); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	logger.Info("MIGRATION", "✅ Migrations applied")
	return nil
}
