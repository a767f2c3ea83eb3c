// Package main provides a one-shot runner for the backfill job processor.
// It drains one batch of eligible jobs and exits, which makes it suitable
// for cron or a container scheduler.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/biopeak-sync/internal/config"
	"github.com/biopeak-sync/internal/garmin"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/oauth"
	"github.com/biopeak-sync/internal/storage"
	"github.com/biopeak-sync/internal/token"
	"github.com/biopeak-sync/internal/worker"
)

func main() {
	var (
		userID    = flag.String("user", "", "Process jobs for a single user only")
		batchSize = flag.Int("batch", 0, "Batch size override (0 uses the configured default)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()

	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		log.Fatalf("Failed to connect to Postgres: %v", err)
	}
	defer postgres.Close()

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		log.Fatalf("Failed to connect to Redis: %v", err)
	}
	defer redis.Close()

	jobRepo := storage.NewBackfillJobRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)

	ledger, err := storage.NewRateLedger(&storage.RateLedgerConfig{
		Redis:      redis.Client(),
		DayUnitCap: cfg.Backfill.DayUnitCap,
		Window:     cfg.Backfill.RateWindow,
	})
	if err != nil {
		log.Fatalf("Failed to create rate ledger: %v", err)
	}

	signer := oauth.NewSigner(cfg.Garmin.ConsumerKey, cfg.Garmin.ConsumerSecret)
	garminClient := garmin.NewClient(&cfg.Garmin, signer)
	tokenService := token.NewService(tokenRepo, garminClient, cfg.Backfill.RefreshWindow)

	processor := worker.NewProcessor(jobRepo, tokenService, garminClient, ledger, worker.Config{
		BatchSize: cfg.Backfill.BatchSize,
		JobDelay:  cfg.Backfill.JobDelay,
		UserDelay: cfg.Backfill.UserDelay,
	})

	logger.Info("Processing pending backfill jobs")

	result, err := processor.ProcessPending(context.Background(), *userID, *batchSize)
	if err != nil {
		log.Fatalf("Processor run failed: %v", err)
	}

	fmt.Printf("Found:       %d\n", result.TotalFound)
	fmt.Printf("Processed:   %d\n", result.Processed)
	fmt.Printf("Errors:      %d\n", result.Errors)
	fmt.Printf("RateLimited: %t\n", result.RateLimited)
	if result.RateLimitReset != nil {
		fmt.Printf("Rate limit resets at %s\n", result.RateLimitReset.Format("2006-01-02 15:04:05 MST"))
	}
}
