// Package config provides centralized configuration loaded from environment
// variables. Shared by cmd/api and cmd/pulsectl.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// Config struct — populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Database
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// API rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Sports feed
	FeedBaseURL    string
	FeedAPIKey     string
	FeedRateLimit  int           // requests per minute against the provider
	FeedTimeout    time.Duration // per-refresh upstream budget
	TickInterval   time.Duration
	MomentumWindow int // trailing snapshots kept per match

	// Scheduler
	Workers      int
	TickDeadline time.Duration

	// Dispatch
	TelegramBotToken string
	SMSEndpoint      string
	SMSAPIKey        string
	DispatchTimeout  time.Duration

	// Shared retry policy
	RetryMaxAttempts int
	RetryBaseDelay   time.Duration
	RetryMaxDelay    time.Duration

	// Metric weights
	WeightsFile string

	// Maintenance
	HistoryRetention time.Duration
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	dbURL := envOr("DATABASE_URL", "")
	if dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL must be set")
	}

	return &Config{
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  time.Duration(envInt("DB_POOL_MAX_LIFE_MINUTES", 30)) * time.Minute,

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   time.Duration(envInt("RATE_LIMIT_WINDOW", 60)) * time.Second,

		FeedBaseURL:    envOr("FEED_BASE_URL", "https://api.sportsfeed.example.com"),
		FeedAPIKey:     envOr("FEED_API_KEY", ""),
		FeedRateLimit:  envInt("FEED_RATE_LIMIT_PER_MINUTE", 30),
		FeedTimeout:    time.Duration(envInt("FEED_TIMEOUT_SECONDS", 5)) * time.Second,
		TickInterval:   time.Duration(envInt("TICK_INTERVAL_SECONDS", 30)) * time.Second,
		MomentumWindow: envInt("MOMENTUM_WINDOW", 5),

		Workers:      envInt("EVAL_WORKERS", 8),
		TickDeadline: time.Duration(envInt("TICK_DEADLINE_SECONDS", 60)) * time.Second,

		TelegramBotToken: envOr("TELEGRAM_BOT_TOKEN", ""),
		SMSEndpoint:      envOr("SMS_GATEWAY_URL", ""),
		SMSAPIKey:        envOr("SMS_GATEWAY_API_KEY", ""),
		DispatchTimeout:  time.Duration(envInt("DISPATCH_TIMEOUT_SECONDS", 15)) * time.Second,

		RetryMaxAttempts: envInt("RETRY_MAX_ATTEMPTS", 3),
		RetryBaseDelay:   time.Duration(envInt("RETRY_BASE_DELAY_MS", 500)) * time.Millisecond,
		RetryMaxDelay:    time.Duration(envInt("RETRY_MAX_DELAY_MS", 10000)) * time.Millisecond,

		WeightsFile: envOr("METRIC_WEIGHTS_FILE", ""),

		HistoryRetention: time.Duration(envInt("HISTORY_RETENTION_DAYS", 30)) * 24 * time.Hour,
	}, nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
