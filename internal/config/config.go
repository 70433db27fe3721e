// Package config loads server configuration from environment variables.
//
// Required variables:
//   - DATABASE_URL: PostgreSQL connection string.
//
// Optional variables:
//   - HTTP_ADDR: listen address for the HTTP server (default ":8080").
//   - LOG_LEVEL: minimum log level (default "info").
//   - ACTIVATION_TTL: redemption window applied to new activations
//     (default "24h", must be > 0 if set).
//   - SWEEP_INTERVAL: interval of the background sweep that expires
//     overdue activations (default "1m", must be > 0 if set).
//   - CONDITION_CACHE_SIZE: max number of compiled conditions held in
//     memory (default "1024", must be > 0 if set).
//   - MAX_JSON_BODY_SIZE: max HTTP JSON request body size in bytes
//     (default "1048576", must be > 0 if set).
//   - AUTH_RATE_LIMIT: per-IP budget of failed authentication attempts
//     per minute (default "10", must be > 0 if set).
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

const (
	defaultHTTPAddr                 = ":8080"
	defaultActivationTTL            = 24 * time.Hour
	defaultSweepInterval            = time.Minute
	defaultConditionCacheSize       = 1024
	defaultAuthRateLimit            = 10
	defaultMaxJSONBodySize    int64 = 1 << 20 // 1MB
)

// Config holds the runtime configuration for the dealz server.
type Config struct {
	DatabaseURL        string
	HTTPAddr           string
	LogLevel           string
	ActivationTTL      time.Duration
	SweepInterval      time.Duration
	ConditionCacheSize int
	AuthRateLimit      int
	MaxJSONBodySize    int64
}

// Load reads configuration from environment variables, applying defaults where
// appropriate. It returns an error if required variables are missing or if
// optional values fail validation.
func Load() (Config, error) {
	databaseURL := strings.TrimSpace(os.Getenv("DATABASE_URL"))
	if databaseURL == "" {
		return Config{}, errors.New("DATABASE_URL is required")
	}

	activationTTL := defaultActivationTTL
	if value := strings.TrimSpace(os.Getenv("ACTIVATION_TTL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse ACTIVATION_TTL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("ACTIVATION_TTL must be > 0")
		}
		activationTTL = parsed
	}

	sweepInterval := defaultSweepInterval
	if value := strings.TrimSpace(os.Getenv("SWEEP_INTERVAL")); value != "" {
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse SWEEP_INTERVAL: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("SWEEP_INTERVAL must be > 0")
		}
		sweepInterval = parsed
	}

	conditionCacheSize := defaultConditionCacheSize
	if v := strings.TrimSpace(os.Getenv("CONDITION_CACHE_SIZE")); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			return Config{}, errors.New("CONDITION_CACHE_SIZE must be a positive integer")
		}
		conditionCacheSize = n
	}

	authRateLimit := defaultAuthRateLimit
	if value := strings.TrimSpace(os.Getenv("AUTH_RATE_LIMIT")); value != "" {
		parsed, err := strconv.Atoi(value)
		if err != nil {
			return Config{}, fmt.Errorf("parse AUTH_RATE_LIMIT: %w", err)
		}
		if parsed <= 0 {
			return Config{}, errors.New("AUTH_RATE_LIMIT must be > 0")
		}
		authRateLimit = parsed
	}

	maxJSONBodySize := defaultMaxJSONBodySize
	if v := strings.TrimSpace(os.Getenv("MAX_JSON_BODY_SIZE")); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil || n < 1 {
			return Config{}, errors.New("MAX_JSON_BODY_SIZE must be a positive integer (bytes)")
		}
		maxJSONBodySize = n
	}

	return Config{
		DatabaseURL:        databaseURL,
		HTTPAddr:           envOrDefault("HTTP_ADDR", defaultHTTPAddr),
		LogLevel:           envOrDefault("LOG_LEVEL", "info"),
		ActivationTTL:      activationTTL,
		SweepInterval:      sweepInterval,
		ConditionCacheSize: conditionCacheSize,
		AuthRateLimit:      authRateLimit,
		MaxJSONBodySize:    maxJSONBodySize,
	}, nil
}

func envOrDefault(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}
