package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"

	"ms-storefront/internal/config"
	"ms-storefront/internal/database"
	"ms-storefront/internal/entitlement"
	"ms-storefront/internal/logger"
	"ms-storefront/internal/order/db"

	"github.com/joho/godotenv"
	_ "github.com/lib/pq"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
)

// backfill-downloads issues missing download links for orders that were paid before
// entitlements existed, or whose generation failed.
func main() {
	dryRun := flag.Bool("dry-run", false, "report what would be created without writing")
	batch := flag.Int("batch", 100, "orders loaded per page")
	flag.Parse()

	logger := logger.NewLogger("backfill-downloads")
	defer logger.Close()

	if err := godotenv.Load(); err != nil {
		logger.Warn("CONFIG", ".env file not found, using environment variables")
	}
	cfg := config.Load()

	bunDB, err := open(cfg.Database)
	if err != nil {
		logger.Fatal("DATABASE", err.Error())
	}
	defer bunDB.Close()

	ctx := context.Background()
	store := db.New(bunDB)
	generator := entitlement.NewGenerator(store, logger)

	var orders, created, failed int
	var afterID int64
	for {
		ids, err := store.ListPaidOrderIDs(ctx, afterID, *batch)
		if err != nil {
			logger.Fatal("DATABASE", fmt.Sprintf("Failed to page paid orders after %d: %v", afterID, err))
		}
		if len(ids) == 0 {
			break
		}

		for _, id := range ids {
			afterID = id
			o, err := store.GetOrderByID(ctx, id)
			if err != nil {
				logger.Error("BACKFILL", fmt.Sprintf("Failed to load order %d: %v", id, err))
				failed++
				continue
			}
			orders++

			if *dryRun {
				missing, err := missingDownloads(ctx, store, o.ID, len(o.Items))
				if err != nil {
					logger.Error("BACKFILL", fmt.Sprintf("Failed to inspect order %s: %v", o.OrderNumber, err))
					failed++
					continue
				}
				if missing > 0 {
					logger.LogOrder("DRY_RUN", o.OrderNumber, fmt.Sprintf("up to %d downloads missing", missing))
				}
				continue
			}

			result, err := generator.Generate(ctx, o)
			if err != nil {
				logger.Error("BACKFILL", fmt.Sprintf("Generation failed for %s: %v", o.OrderNumber, err))
				failed++
				continue
			}
			created += len(result.Created)
			failed += len(result.Failed)
		}
	}

	logger.Info("BACKFILL", fmt.Sprintf("✅ Checked %d paid orders: %d downloads created, %d failures (dry run: %t)",
		orders, created, failed, *dryRun))
	if failed > 0 {
		os.Exit(1)
	}
}

func missingDownloads(ctx context.Context, store *db.DB, orderID int64, items int) (int, error) {
	existing, err := store.GetDownloadsByOrderID(ctx, orderID)
	if err != nil {
		return 0, err
	}
	return items - len(existing), nil
}

func open(cfg config.DatabaseConfig) (*bun.DB, error) {
	if cfg.Driver == "sqlite" {
		return database.OpenSQLite(cfg.SQLitePath)
	}
	if cfg.DSN == "" {
		return nil, fmt.Errorf("POSTGRES_DSN not set")
	}
	sqldb, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := sqldb.Ping(); err != nil {
		return nil, fmt.Errorf("connect to postgres: %w", err)
	}
	return bun.NewDB(sqldb, pgdialect.New()), nil
}
