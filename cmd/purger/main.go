// Command purger runs a single retention purge pass and exits. It is
// intended for external schedulers (cron, Kubernetes CronJob) deployed
// instead of, or alongside, chatd's in-process hourly ticker.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"

	"github.com/DriftThreads/DriftThreads/internal/config"
	"github.com/DriftThreads/DriftThreads/internal/logging"
	"github.com/DriftThreads/DriftThreads/internal/purge"
	"github.com/DriftThreads/DriftThreads/internal/store/postgres"
)

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "purger: %v\n", err)
		os.Exit(1)
	}
	logger := logging.New(cfg.LogLevel)

	db, err := postgres.New(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal().Err(err).Msg("connect postgres")
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		logger.Fatal().Err(err).Msg("apply migrations")
	}

	purger := purge.New(db, db, cfg.RetentionHorizon, cfg.PurgeInterval, logger)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	deleted, err := purger.Purge(ctx, time.Now().UTC())
	if err != nil {
		logger.Fatal().Err(err).Msg("purge failed")
	}
	fmt.Printf("purged %d messages\n", deleted)
}
