// Package config loads courier configuration from the environment.
package config

import (
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds all courier configuration.
type Config struct {
	Mode string `env:"COURIER_MODE" envDefault:"api"`

	// Server
	Host string `env:"COURIER_HOST" envDefault:"0.0.0.0"`
	Port int    `env:"COURIER_PORT" envDefault:"8080"`

	// Database
	DatabaseURL   string `env:"DATABASE_URL" envDefault:"postgres://localhost:5432/courier?sslmode=disable"`
	MigrationsDir string `env:"MIGRATIONS_DIR" envDefault:"migrations"`

	// Redis
	RedisURL string `env:"REDIS_URL" envDefault:"redis://localhost:6379/0"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"json"`

	// Metrics
	MetricsPath string `env:"METRICS_PATH" envDefault:"/metrics"`

	// CORS
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"*" envSeparator:","`

	// Credential vault. The secret is padded/truncated to the AES-256 key
	// length; rotating it invalidates every stored gateway credential.
	CredentialSecret string `env:"COURIER_CREDENTIAL_SECRET"`

	// Message gateway
	GatewayTimeout time.Duration `env:"GATEWAY_TIMEOUT" envDefault:"10s"`

	// Webhook fan-out
	WebhookTimeout time.Duration `env:"WEBHOOK_TIMEOUT" envDefault:"10s"`

	// Outbound send rate limit, per tenant per window.
	RateLimitMax    int           `env:"RATE_LIMIT_MAX" envDefault:"30"`
	RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"60s"`
}

// Load reads configuration from the environment. A .env file in the working
// directory is applied first when present (development convenience; real
// deployments set the environment directly).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parsing config from env: %w", err)
	}
	return cfg, nil
}

// ListenAddr returns the address the HTTP server should listen on.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
