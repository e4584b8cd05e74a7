// internal/config/config.go
// Runtime environment configuration: connection strings and credentials
// that come from the process environment rather than the tournament
// configuration document.

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// RuntimeConfig holds everything the CLI needs from the environment
// before it can load a tournament config and start the orchestrator.
type RuntimeConfig struct {
	Telemetry TelemetryConfig
	Standings StandingsConfig
	RateLimit RateLimitConfig
}

// TelemetryConfig configures the document-sink half of the telemetry
// pipeline. An empty StoreURI disables the document sink entirely — the
// file sink is always active and needs no configuration.
type TelemetryConfig struct {
	StoreURI       string
	StoreDatabase  string
	LogDir         string
	PromptVerbatim bool
}

// StandingsConfig configures the optional cross-tournament leaderboard.
// An empty DSN disables standings aggregation entirely.
type StandingsConfig struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RateLimitConfig configures the optional Redis-backed cross-match rate
// coordinator. An empty Addr means adapters use a no-op limiter.
type RateLimitConfig struct {
	Addr     string
	Password string
	DB       int
}

// Load reads runtime configuration from environment variables, loading a
// local .env file first when present (for local development convenience).
func Load() (*RuntimeConfig, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("error loading .env file: %w", err)
	}

	cfg := &RuntimeConfig{
		Telemetry: TelemetryConfig{
			StoreURI:       getEnvOrDefault("TOURNEY_STORE_URI", ""),
			StoreDatabase:  getEnvOrDefault("TOURNEY_STORE_DATABASE", "agenttourney"),
			LogDir:         getEnvOrDefault("TOURNEY_LOG_DIR", "./telemetry"),
			PromptVerbatim: getBoolOrDefault("TOURNEY_STORE_PROMPT_VERBATIM", false),
		},
		Standings: StandingsConfig{
			DSN:             getEnvOrDefault("TOURNEY_STANDINGS_DSN", ""),
			MaxOpenConns:    getIntOrDefault("TOURNEY_STANDINGS_MAX_OPEN_CONNS", 10),
			MaxIdleConns:    getIntOrDefault("TOURNEY_STANDINGS_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: getDurationOrDefault("TOURNEY_STANDINGS_CONN_MAX_LIFETIME", 5*time.Minute),
		},
		RateLimit: RateLimitConfig{
			Addr:     getEnvOrDefault("TOURNEY_RATE_LIMIT_REDIS_ADDR", ""),
			Password: getEnvOrDefault("TOURNEY_RATE_LIMIT_REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("TOURNEY_RATE_LIMIT_REDIS_DB", 0),
		},
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}
