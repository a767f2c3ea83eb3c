package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"github.com/biopeak-sync/internal/config"
)

// ClickHouseDB wraps the ClickHouse connection used for activity summaries
type ClickHouseDB struct {
	conn driver.Conn
}

// NewClickHouseDB creates a new ClickHouse database connection
func NewClickHouseDB(cfg *config.ClickHouseConfig) (*ClickHouseDB, error) {
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{fmt.Sprintf("%s:%s", cfg.Host, cfg.Port)},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.User,
			Password: cfg.Password,
		},
		Settings: clickhouse.Settings{
			"max_execution_time": 60,
		},
		DialTimeout:     10 * time.Second,
		MaxOpenConns:    10,
		MaxIdleConns:    5,
		ConnMaxLifetime: time.Hour,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to ClickHouse: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := conn.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping ClickHouse: %w", err)
	}

	return &ClickHouseDB{conn: conn}, nil
}

// EnsureSchema creates the activity summary table if it does not exist
func (db *ClickHouseDB) EnsureSchema(ctx context.Context) error {
	ddl := `
		CREATE TABLE IF NOT EXISTS activity_summaries (
			user_id          String,
			summary_type     LowCardinality(String),
			summary_id       String,
			start_time       DateTime,
			duration_seconds Int32,
			steps            Int32,
			calories         Float64,
			distance_meters  Float64,
			sleep_seconds    Int32,
			avg_heart_rate   Int32,
			avg_stress_level Int32,
			weight_grams     Float64,
			vo2_max          Float64,
			activity_name    String,
			received_at      DateTime
		)
		ENGINE = ReplacingMergeTree(received_at)
		ORDER BY (user_id, summary_type, summary_id)
	`
	if err := db.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("failed to create activity_summaries table: %w", err)
	}
	return nil
}

// Close closes the ClickHouse connection
func (db *ClickHouseDB) Close() error {
	if db.conn != nil {
		return db.conn.Close()
	}
	return nil
}

// Conn returns the underlying ClickHouse connection
func (db *ClickHouseDB) Conn() driver.Conn {
	return db.conn
}

// Ping checks if ClickHouse is reachable
func (db *ClickHouseDB) Ping(ctx context.Context) error {
	return db.conn.Ping(ctx)
}
