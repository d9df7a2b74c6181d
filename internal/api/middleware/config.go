package middleware

import (
	"time"

	"github.com/tablesentry-io/tablesentry/internal/config"
)

// Config holds rate limiter configuration.
//
// Rates specify requests per second (RPS) for two tiers: a global limit
// applied to all requests, and a per-client limit keyed by caller address.
// Burst capacity allows temporary bursts above the sustained rate; zero
// means twice the rate.
type Config struct {
	GlobalRPS int
	ClientRPS int

	GlobalBurst int
	ClientBurst int

	CleanupInterval time.Duration
	IdleTimeout     time.Duration
}

// LoadConfig loads middleware config from environment variables with
// fallback to defaults.
func LoadConfig() *Config {
	return &Config{
		GlobalRPS: config.GetEnvInt("TABLESENTRY_GLOBAL_RPS", defaultGlobalRPS),
		ClientRPS: config.GetEnvInt("TABLESENTRY_CLIENT_RPS", defaultClientRPS),

		GlobalBurst: config.GetEnvInt("TABLESENTRY_GLOBAL_BURST", 0),
		ClientBurst: config.GetEnvInt("TABLESENTRY_CLIENT_BURST", 0),

		CleanupInterval: config.GetEnvDuration(
			"TABLESENTRY_RATE_LIMIT_CLEANUP_INTERVAL", rateLimiterCleanupInterval,
		),
		IdleTimeout: config.GetEnvDuration("TABLESENTRY_RATE_LIMIT_IDLE_TIMEOUT", rateLimiterIdleTimeout),
	}
}
