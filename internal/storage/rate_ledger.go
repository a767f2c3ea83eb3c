package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Default day-unit budget: Garmin meters backfill volume in requested-period
// days, capped per user per window.
const (
	DefaultDayUnitCap = 100
	DefaultRateWindow = time.Minute
)

// RateLedger tracks per-user backfill day-unit consumption in fixed windows,
// coordinated through Redis so concurrent processor passes share one budget.
type RateLedger struct {
	redis  redis.Cmdable
	cap    int
	window time.Duration
}

// RateLedgerConfig holds configuration for the ledger
type RateLedgerConfig struct {
	// Redis is the client used for atomic counting. Required.
	Redis redis.Cmdable

	// DayUnitCap is the per-user budget per window. Default: 100.
	DayUnitCap int

	// Window is the budget window. Default: 1 minute.
	Window time.Duration
}

// Validate checks if the configuration is valid
func (c *RateLedgerConfig) Validate() error {
	if c.Redis == nil {
		return errors.New("redis client is required")
	}
	if c.DayUnitCap < 0 {
		return errors.New("day-unit cap cannot be negative")
	}
	if c.Window < 0 {
		return errors.New("window cannot be negative")
	}
	return nil
}

// NewRateLedger creates a ledger with the given configuration
func NewRateLedger(cfg *RateLedgerConfig) (*RateLedger, error) {
	if cfg == nil {
		return nil, errors.New("configuration is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	capacity := cfg.DayUnitCap
	if capacity == 0 {
		capacity = DefaultDayUnitCap
	}
	window := cfg.Window
	if window == 0 {
		window = DefaultRateWindow
	}

	return &RateLedger{
		redis:  cfg.Redis,
		cap:    capacity,
		window: window,
	}, nil
}

// Consume tries to charge units against the user's current window.
// When the charge would exceed the cap it is rolled back and Consume returns
// allowed=false with the instant the window resets. The INCRBY/DECRBY pair
// keeps the ledger consistent under concurrent passes.
func (l *RateLedger) Consume(ctx context.Context, userID string, units int) (allowed bool, resetAt time.Time, err error) {
	now := time.Now()
	windowStart := now.Truncate(l.window)
	resetAt = windowStart.Add(l.window)
	key := l.key(userID, windowStart)

	total, err := l.redis.IncrBy(ctx, key, int64(units)).Result()
	if err != nil {
		return false, resetAt, fmt.Errorf("failed to charge rate ledger: %w", err)
	}

	// First charge of the window owns setting the expiry
	if total == int64(units) {
		if err := l.redis.Expire(ctx, key, l.window+time.Second).Err(); err != nil {
			return false, resetAt, fmt.Errorf("failed to expire rate ledger key: %w", err)
		}
	}

	if total > int64(l.cap) {
		if err := l.redis.DecrBy(ctx, key, int64(units)).Err(); err != nil {
			return false, resetAt, fmt.Errorf("failed to roll back rate ledger charge: %w", err)
		}
		return false, resetAt, nil
	}

	return true, resetAt, nil
}

// Consumed returns the units charged in the user's current window
func (l *RateLedger) Consumed(ctx context.Context, userID string) (int, error) {
	windowStart := time.Now().Truncate(l.window)
	val, err := l.redis.Get(ctx, l.key(userID, windowStart)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("failed to read rate ledger: %w", err)
	}
	return int(val), nil
}

// Cap returns the configured per-window day-unit budget
func (l *RateLedger) Cap() int {
	return l.cap
}

func (l *RateLedger) key(userID string, windowStart time.Time) string {
	return fmt.Sprintf("backfill:du:%s:%d", userID, windowStart.Unix())
}
