// Package config provides configuration management for the Garmin sync service.
// It loads configuration from environment variables and .env files.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Garmin   GarminConfig
	Backfill BackfillConfig
	Logging  LoggingConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
	RequestsPerSec  int
}

// DatabaseConfig holds all datastore configuration
type DatabaseConfig struct {
	Postgres   PostgresConfig
	Redis      RedisConfig
	ClickHouse ClickHouseConfig
}

// PostgresConfig holds Postgres configuration
type PostgresConfig struct {
	Host           string
	Port           string
	Database       string
	User           string
	Password       string
	MaxConnections int
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host           string
	Port           string
	Password       string
	DB             int
	MaxConnections int
}

// ClickHouseConfig holds ClickHouse configuration
type ClickHouseConfig struct {
	Host     string
	Port     string
	Database string
	User     string
	Password string
}

// GarminConfig holds Garmin API credentials and endpoints.
// The consumer key/secret sign OAuth 1.0 requests to the wellness API;
// the client id/secret authenticate OAuth 2.0 token refreshes.
type GarminConfig struct {
	ConsumerKey    string
	ConsumerSecret string
	ClientID       string
	ClientSecret   string
	APIBaseURL     string
	TokenURL       string
	RequestTimeout time.Duration
}

// BackfillConfig holds backfill pipeline configuration
type BackfillConfig struct {
	MaxRetries     int
	BatchSize      int
	DayUnitCap     int
	RateWindow     time.Duration
	JobDelay       time.Duration
	UserDelay      time.Duration
	MaxPeriodDays  int
	MaxLookback    time.Duration
	CompletionAge  time.Duration
	RefreshWindow  time.Duration
	MigrationsPath string
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string
	Format string
}

// LoadConfig loads configuration from .env file and environment variables
func LoadConfig() (*Config, error) {
	// .env file is optional - environment variables can be set directly
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("error loading .env file: %w", err)
		}
	}

	config := &Config{
		Server: ServerConfig{
			Host:            getEnv("SERVER_HOST", "0.0.0.0"),
			Port:            getEnv("SERVER_PORT", "8080"),
			ReadTimeout:     getEnvAsDuration("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getEnvAsDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
			IdleTimeout:     getEnvAsDuration("SERVER_IDLE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getEnvAsDuration("SERVER_SHUTDOWN_TIMEOUT", 10*time.Second),
			RequestsPerSec:  getEnvAsInt("SERVER_REQUESTS_PER_SEC", 20),
		},
		Database: DatabaseConfig{
			Postgres: PostgresConfig{
				Host:           getEnv("POSTGRES_HOST", "localhost"),
				Port:           getEnv("POSTGRES_PORT", "5432"),
				Database:       getEnv("POSTGRES_DB", "biopeak_sync"),
				User:           getEnv("POSTGRES_USER", "biopeak"),
				Password:       getEnv("POSTGRES_PASSWORD", ""),
				MaxConnections: getEnvAsInt("POSTGRES_MAX_CONNECTIONS", 50),
			},
			Redis: RedisConfig{
				Host:           getEnv("REDIS_HOST", "localhost"),
				Port:           getEnv("REDIS_PORT", "6379"),
				Password:       getEnv("REDIS_PASSWORD", ""),
				DB:             getEnvAsInt("REDIS_DB", 0),
				MaxConnections: getEnvAsInt("REDIS_MAX_CONNECTIONS", 20),
			},
			ClickHouse: ClickHouseConfig{
				Host:     getEnv("CLICKHOUSE_HOST", "localhost"),
				Port:     getEnv("CLICKHOUSE_PORT", "9000"),
				Database: getEnv("CLICKHOUSE_DB", "biopeak"),
				User:     getEnv("CLICKHOUSE_USER", "default"),
				Password: getEnv("CLICKHOUSE_PASSWORD", ""),
			},
		},
		Garmin: GarminConfig{
			ConsumerKey:    getEnv("GARMIN_CONSUMER_KEY", ""),
			ConsumerSecret: getEnv("GARMIN_CONSUMER_SECRET", ""),
			ClientID:       getEnv("GARMIN_CLIENT_ID", ""),
			ClientSecret:   getEnv("GARMIN_CLIENT_SECRET", ""),
			APIBaseURL:     getEnv("GARMIN_API_BASE_URL", "https://apis.garmin.com/wellness-api/rest"),
			TokenURL:       getEnv("GARMIN_TOKEN_URL", "https://diauth.garmin.com/di-oauth2-service/oauth/token"),
			RequestTimeout: getEnvAsDuration("GARMIN_REQUEST_TIMEOUT", 30*time.Second),
		},
		Backfill: BackfillConfig{
			MaxRetries:     getEnvAsInt("BACKFILL_MAX_RETRIES", 3),
			BatchSize:      getEnvAsInt("BACKFILL_BATCH_SIZE", 10),
			DayUnitCap:     getEnvAsInt("BACKFILL_DAY_UNIT_CAP", 100),
			RateWindow:     getEnvAsDuration("BACKFILL_RATE_WINDOW", time.Minute),
			JobDelay:       getEnvAsDuration("BACKFILL_JOB_DELAY", time.Second),
			UserDelay:      getEnvAsDuration("BACKFILL_USER_DELAY", 2*time.Second),
			MaxPeriodDays:  getEnvAsInt("BACKFILL_MAX_PERIOD_DAYS", 90),
			MaxLookback:    getEnvAsDuration("BACKFILL_MAX_LOOKBACK", 4380*time.Hour),
			CompletionAge:  getEnvAsDuration("RECONCILE_COMPLETION_AGE", 24*time.Hour),
			RefreshWindow:  getEnvAsDuration("TOKEN_REFRESH_WINDOW", 5*time.Minute),
			MigrationsPath: getEnv("MIGRATIONS_PATH", "migrations"),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
	}

	return config, nil
}

// PostgresURL builds a database URL for golang-migrate
func (c *PostgresConfig) PostgresURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable",
		c.User, c.Password, c.Host, c.Port, c.Database)
}

// getEnv gets an environment variable with a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as an integer with a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

// getEnvAsDuration gets an environment variable as a duration with a default value
func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	value, err := time.ParseDuration(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}
