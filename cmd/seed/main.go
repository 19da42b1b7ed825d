package main

import (
	"context"
	"os"

	"github.com/joho/godotenv"

	"github.com/planmint/planmint-backend/pkg/config"
	"github.com/planmint/planmint-backend/pkg/db"
	"github.com/planmint/planmint-backend/pkg/logger"
	"github.com/planmint/planmint-backend/pkg/seed"
)

// Seeds the product catalog (products, features, product_features) so a fresh
// environment has purchasable plans without hand-entered rows.
func main() {
	ctx := context.Background()
	logg := logger.New(logger.Options{ServiceName: "seed"})

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		logg.Error(ctx, "failed to load config", err)
		os.Exit(1)
	}

	logg = logger.New(logger.Options{
		ServiceName: "seed",
		Level:       logger.ParseLevel(cfg.App.LogLevel),
		WarnStack:   cfg.App.LogWarnStack,
	})

	dbClient, err := db.New(ctx, cfg.DB, logg)
	if err != nil {
		logg.Error(ctx, "failed to bootstrap database", err)
		os.Exit(1)
	}
	defer func() {
		if err := dbClient.Close(); err != nil {
			logg.Error(ctx, "error closing database", err)
		}
	}()

	if err := seed.Catalog(ctx, dbClient.DB(), logg); err != nil {
		logg.Error(ctx, "failed to seed catalog", err)
		os.Exit(1)
	}
	logg.Info(ctx, "product catalog seeded")
}
