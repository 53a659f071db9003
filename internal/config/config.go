// Package config handles application configuration from environment variables
package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	// Server settings
	Port      string
	Env       string // "development", "staging", "production"
	LogLevel  string
	LogFormat string // "text" or "json"

	// Database
	DatabaseURL string // PostgreSQL connection string (optional, uses in-memory if not set)

	// Decision policy
	PolicyWebhookURL string        // Remote decision authority; in-process thresholds if not set
	PolicyTimeout    time.Duration // Budget for a single policy call

	// Explainer
	GeminiAPIKey   string // Optional; explanations fall back to static text if not set
	GeminiModel    string
	ExplainTimeout time.Duration

	// Security
	RateLimitPerMinute int

	// Observability
	OTLPEndpoint string // OTLP gRPC endpoint; tracing disabled if not set
}

// Defaults
const (
	DefaultPort           = "8080"
	DefaultEnv            = "development"
	DefaultLogLevel       = "info"
	DefaultGeminiModel    = "gemini-3-flash-preview"
	DefaultPolicyTimeout  = 5 * time.Second
	DefaultExplainTimeout = 10 * time.Second
	DefaultRateLimit      = 120
)

// Load reads configuration from environment variables.
// It loads .env file if present (for local development).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Port:               getEnv("PORT", DefaultPort),
		Env:                getEnv("ENV", DefaultEnv),
		LogLevel:           getEnv("LOG_LEVEL", DefaultLogLevel),
		LogFormat:          getEnv("LOG_FORMAT", "json"),
		DatabaseURL:        os.Getenv("DATABASE_URL"), // Optional, uses in-memory if not set
		PolicyWebhookURL:   os.Getenv("POLICY_WEBHOOK_URL"),
		PolicyTimeout:      getEnvDuration("POLICY_TIMEOUT", DefaultPolicyTimeout),
		GeminiAPIKey:       os.Getenv("GEMINI_API_KEY"),
		GeminiModel:        getEnv("GEMINI_MODEL", DefaultGeminiModel),
		ExplainTimeout:     getEnvDuration("EXPLAIN_TIMEOUT", DefaultExplainTimeout),
		RateLimitPerMinute: int(getEnvInt64("RATE_LIMIT_PER_MINUTE", DefaultRateLimit)),
		OTLPEndpoint:       os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate checks that the configuration is coherent
func (c *Config) Validate() error {
	if c.PolicyWebhookURL != "" {
		u, err := url.Parse(c.PolicyWebhookURL)
		if err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("POLICY_WEBHOOK_URL must be an absolute URL")
		}
	}
	if c.PolicyTimeout <= 0 {
		return fmt.Errorf("POLICY_TIMEOUT must be positive")
	}
	if c.ExplainTimeout <= 0 {
		return fmt.Errorf("EXPLAIN_TIMEOUT must be positive")
	}
	if c.GeminiAPIKey != "" && c.GeminiModel == "" {
		return fmt.Errorf("GEMINI_MODEL is required when GEMINI_API_KEY is set")
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

func getEnvInt64(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.ParseInt(value, 10, 64); err == nil {
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
