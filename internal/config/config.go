// Package config handles application configuration from environment variables
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
	// Server settings
	Port     string
	Env      string // "development", "staging", "production"
	LogLevel string

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Fulfillment provider
	ProviderURL     string // Base URL of the external fulfillment provider API
	ProviderKey     string // API key sent with every provider request
	ProviderTimeout time.Duration

	// Reconciliation
	ReconcileInterval time.Duration // How often a reconciliation round runs
	ReconcileTimeout  time.Duration // Per-round deadline
	CheckConcurrency  int           // Bounded worker pool size for provider polls
	MinCheckInterval  time.Duration // Per-order provider poll rate limit

	// Balance verification
	VerifyInterval    time.Duration // How often the verifier sweeps approved deposits
	VerifySampleDelay time.Duration // Delay between the three balance samples
}

const (
	DefaultPort              = "8080"
	DefaultEnv               = "development"
	DefaultLogLevel          = "info"
	DefaultProviderTimeout   = 15 * time.Second
	DefaultReconcileInterval = 5 * time.Minute
	DefaultReconcileTimeout  = 2 * time.Minute
	DefaultCheckConcurrency  = 10
	DefaultMinCheckInterval  = 5 * time.Minute
	DefaultVerifyInterval    = 10 * time.Minute
	DefaultVerifySampleDelay = 500 * time.Millisecond
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	// Load .env file if it exists (ignore error if not present)
	_ = godotenv.Load()

	cfg := &Config{
		Port:              getEnv("PORT", DefaultPort),
		Env:               getEnv("ENV", DefaultEnv),
		LogLevel:          getEnv("LOG_LEVEL", DefaultLogLevel),
		DatabaseURL:       os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		ProviderURL:       os.Getenv("PROVIDER_URL"),
		ProviderKey:       os.Getenv("PROVIDER_KEY"),
		ProviderTimeout:   getEnvDuration("PROVIDER_TIMEOUT", DefaultProviderTimeout),
		ReconcileInterval: getEnvDuration("RECONCILE_INTERVAL", DefaultReconcileInterval),
		ReconcileTimeout:  getEnvDuration("RECONCILE_TIMEOUT", DefaultReconcileTimeout),
		CheckConcurrency:  getEnvInt("CHECK_CONCURRENCY", DefaultCheckConcurrency),
		MinCheckInterval:  getEnvDuration("MIN_CHECK_INTERVAL", DefaultMinCheckInterval),
		VerifyInterval:    getEnvDuration("VERIFY_INTERVAL", DefaultVerifyInterval),
		VerifySampleDelay: getEnvDuration("VERIFY_SAMPLE_DELAY", DefaultVerifySampleDelay),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that all required configuration is present
func (c *Config) Validate() error {
	if c.ProviderURL == "" {
		return fmt.Errorf("PROVIDER_URL is required")
	}
	if c.CheckConcurrency <= 0 {
		return fmt.Errorf("CHECK_CONCURRENCY must be positive")
	}
	if c.MinCheckInterval <= 0 {
		return fmt.Errorf("MIN_CHECK_INTERVAL must be positive")
	}
	return nil
}

// IsDevelopment returns true if running in development mode
func (c *Config) IsDevelopment() bool {
	return c.Env == "development"
}

// IsProduction returns true if running in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Helper functions

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
