// Package config loads service configuration from environment variables.
package config

import (
	"errors"
	"os"
)

// Config holds process-wide configuration. The JWT secret is loaded once at
// startup and cached for the life of the process.
type Config struct {
	Port     string
	LogLevel string

	// JWTSecret verifies inbound bearer tokens. Required.
	JWTSecret string

	// RedisURL enables the shared token blacklist when set.
	RedisURL string

	// DatabaseURL selects the repository backend. "postgres://" DSNs use
	// lib/pq; anything else is treated as a sqlite path.
	DatabaseURL string

	// SeedAdminPassword bootstraps the initial admin account.
	SeedAdminPassword string

	// LLM provider selection. When no key or endpoint is present the
	// deliberator runs in mock mode and warns loudly.
	OpenAIKey      string
	AnthropicKey   string
	OllamaEndpoint string

	// OTLPEndpoint enables telemetry export when set.
	OTLPEndpoint string
}

// ErrMissingJWTSecret aborts startup: tokens cannot be verified without it.
var ErrMissingJWTSecret = errors.New("config: COMPLIANCE_JWT_SECRET or JWT_SECRET_KEY must be set")

// Load reads configuration from the environment.
func Load() (*Config, error) {
	cfg := &Config{
		Port:              envOr("PORT", "8080"),
		LogLevel:          envOr("LOG_LEVEL", "INFO"),
		JWTSecret:         firstEnv("COMPLIANCE_JWT_SECRET", "JWT_SECRET_KEY"),
		RedisURL:          firstEnv("COMPLIANCE_REDIS_URL", "REDIS_URL"),
		DatabaseURL:       envOr("DATABASE_URL", "forge.db"),
		SeedAdminPassword: os.Getenv("SEED_ADMIN_PASSWORD"),
		OpenAIKey:         os.Getenv("OPENAI_API_KEY"),
		AnthropicKey:      os.Getenv("ANTHROPIC_API_KEY"),
		OllamaEndpoint:    os.Getenv("OLLAMA_ENDPOINT"),
		OTLPEndpoint:      os.Getenv("OTLP_ENDPOINT"),
	}

	if cfg.JWTSecret == "" {
		return nil, ErrMissingJWTSecret
	}
	return cfg, nil
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func firstEnv(keys ...string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return ""
}
