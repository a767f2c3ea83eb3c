// Package main provides a database migration tool for the Garmin sync schema.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/biopeak-sync/internal/config"
	"github.com/biopeak-sync/internal/storage"
)

func main() {
	var (
		action     = flag.String("action", "up", "Migration action: up, down, or version")
		clickhouse = flag.Bool("clickhouse", false, "Also ensure the ClickHouse schema (up only)")
	)
	flag.Parse()

	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	databaseURL := cfg.Database.Postgres.PostgresURL()
	migrationsPath := cfg.Backfill.MigrationsPath

	switch *action {
	case "up":
		log.Println("Running migrations...")
		if err := storage.RunMigrations(databaseURL, migrationsPath); err != nil {
			log.Fatalf("Migration failed: %v", err)
		}
		log.Println("Migrations completed successfully")

		if *clickhouse {
			ch, err := storage.NewClickHouseDB(&cfg.Database.ClickHouse)
			if err != nil {
				log.Fatalf("Failed to connect to ClickHouse: %v", err)
			}
			defer ch.Close()
			if err := ch.EnsureSchema(context.Background()); err != nil {
				log.Fatalf("ClickHouse schema failed: %v", err)
			}
			log.Println("ClickHouse schema ensured")
		}

	case "down":
		log.Println("Rolling back last migration...")
		if err := storage.RollbackMigrations(databaseURL, migrationsPath); err != nil {
			log.Fatalf("Rollback failed: %v", err)
		}
		log.Println("Rollback completed successfully")

	case "version":
		version, dirty, err := storage.MigrationVersion(databaseURL, migrationsPath)
		if err != nil {
			log.Fatalf("Failed to read migration version: %v", err)
		}
		fmt.Printf("Version: %d, Dirty: %t\n", version, dirty)

	default:
		log.Fatalf("Unknown action %q (expected up, down, or version)", *action)
	}
}
