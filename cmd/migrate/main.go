package main

import (
	"context"
	"time"

	mongoMigration "bookswap/internal/migrations/mongo"
	postgresMigration "bookswap/internal/migrations/postgres"
	"bookswap/pkg/config"
)

const JobName = "migrate"

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), 120*time.Second)
	defer cancel()

	cfg := config.Load(JobName)
	cfg.Log.Info("Starting migration job", "store", cfg.StoreDriver)
	cfg.Connect()
	defer cfg.GracefulShutdown()

	var err error
	switch cfg.StoreDriver {
	case config.StoreMongo:
		err = mongoMigration.RunMigration(ctx, cfg.Client.MongoDB(), cfg.Log)
	case config.StorePostgres:
		err = postgresMigration.RunMigration(ctx, cfg.Client.Postgres, cfg.Log)
	default:
		cfg.Log.Info("Nothing to migrate for the memory store")
		return
	}
	if err != nil {
		cfg.Log.Error("Migration failed", "error", err)
		cancel()
		cfg.GracefulShutdown()
		cfg.Log.Fatal("Migration job aborted")
	}
	cfg.Log.Info("Migration completed successfully")
}
