// Package main provides the API server entry point for the Garmin sync service.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/biopeak-sync/internal/api"
	"github.com/biopeak-sync/internal/config"
	"github.com/biopeak-sync/internal/garmin"
	"github.com/biopeak-sync/internal/logging"
	"github.com/biopeak-sync/internal/oauth"
	"github.com/biopeak-sync/internal/service"
	"github.com/biopeak-sync/internal/storage"
	"github.com/biopeak-sync/internal/token"
	"github.com/biopeak-sync/internal/worker"
)

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		logging.GetGlobalLogger().WithError(err).Fatal("Failed to load configuration")
	}

	logging.InitGlobalLogger(
		logging.ParseLogLevel(cfg.Logging.Level),
		logging.ParseLogFormat(cfg.Logging.Format),
	)
	logger := logging.GetGlobalLogger()
	logger.Info("Garmin sync API server starting")

	// Datastores
	postgres, err := storage.NewPostgresDB(&cfg.Database.Postgres)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Postgres")
	}
	defer postgres.Close()

	redis, err := storage.NewRedisStore(&cfg.Database.Redis)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to Redis")
	}
	defer redis.Close()

	clickhouse, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
	if err != nil {
		logger.WithError(err).Fatal("Failed to connect to ClickHouse")
	}
	defer clickhouse.Close()

	if err := clickhouse.EnsureSchema(context.Background()); err != nil {
		logger.WithError(err).Fatal("Failed to prepare ClickHouse schema")
	}

	logger.Info("Datastore connections established")

	// Repositories
	jobRepo := storage.NewBackfillJobRepository(postgres)
	tokenRepo := storage.NewTokenRepository(postgres)
	activityRepo := storage.NewActivityRepository(clickhouse)

	ledger, err := storage.NewRateLedger(&storage.RateLedgerConfig{
		Redis:      redis.Client(),
		DayUnitCap: cfg.Backfill.DayUnitCap,
		Window:     cfg.Backfill.RateWindow,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create rate ledger")
	}

	// Vendor client and services
	signer := oauth.NewSigner(cfg.Garmin.ConsumerKey, cfg.Garmin.ConsumerSecret)
	garminClient := garmin.NewClient(&cfg.Garmin, signer)
	tokenService := token.NewService(tokenRepo, garminClient, cfg.Backfill.RefreshWindow)

	intake := service.NewIntakeService(
		jobRepo, tokenService, garminClient,
		cfg.Backfill.MaxRetries, cfg.Backfill.MaxPeriodDays, cfg.Backfill.MaxLookback,
	)
	processor := worker.NewProcessor(jobRepo, tokenService, garminClient, ledger, worker.Config{
		BatchSize: cfg.Backfill.BatchSize,
		JobDelay:  cfg.Backfill.JobDelay,
		UserDelay: cfg.Backfill.UserDelay,
	})
	reconciler := service.NewReconciler(jobRepo, activityRepo, cfg.Backfill.CompletionAge)
	ingester := service.NewIngestService(activityRepo, jobRepo)

	server := api.NewServer(
		&api.ServerConfig{
			Host:            cfg.Server.Host,
			Port:            cfg.Server.Port,
			ReadTimeout:     cfg.Server.ReadTimeout,
			WriteTimeout:    cfg.Server.WriteTimeout,
			IdleTimeout:     cfg.Server.IdleTimeout,
			ShutdownTimeout: cfg.Server.ShutdownTimeout,
			RequestsPerSec:  cfg.Server.RequestsPerSec,
		},
		intake,
		processor,
		reconciler,
		jobRepo,
		tokenService,
		ingester,
		map[string]api.Pinger{
			"postgres":   postgres,
			"redis":      redis,
			"clickhouse": clickhouse,
		},
	)

	// Graceful shutdown on SIGINT/SIGTERM
	done := make(chan os.Signal, 1)
	signal.Notify(done, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			logger.WithError(err).Fatal("Server exited")
		}
	}()

	<-done
	logger.Info("Shutting down")
	if err := server.Shutdown(context.Background()); err != nil {
		logger.WithError(err).Error("Shutdown failed")
	}
}
