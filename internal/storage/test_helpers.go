package storage

import (
	"context"
	"testing"
	"time"

	"github.com/biopeak-sync/internal/config"
)

// testContext creates a context with timeout for tests
func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newTestDB connects to the local development database. Tests that call it
// are integration tests: they skip in short mode and when Postgres is not
// reachable.
func newTestDB(t *testing.T) *PostgresDB {
	if testing.Short() {
		t.Skip("Skipping integration test in short mode")
	}

	cfg := &config.PostgresConfig{
		Host:           "localhost",
		Port:           "5432",
		Database:       "biopeak_sync",
		User:           "biopeak",
		Password:       "",
		MaxConnections: 10,
	}

	db, err := NewPostgresDB(cfg)
	if err != nil {
		t.Skipf("Skipping test - Postgres not available: %v", err)
		return nil
	}
	t.Cleanup(db.Close)
	return db
}
