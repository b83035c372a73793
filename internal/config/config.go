package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/rs/zerolog/log"
)

const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendPostgres = "postgres"
	BackendRedis    = "redis"
)

type Config struct {
	Port                  int    `env:"PORT" envDefault:"3000"`
	LogLevel              string `env:"LOG_LEVEL" envDefault:"info"`
	LedgerBackend         string `env:"LEDGER_BACKEND" envDefault:"memory"`
	LedgerFile            string `env:"LEDGER_FILE" envDefault:"codes.json"`
	DatabaseURL           string `env:"DATABASE_URL"`
	RedisURL              string `env:"REDIS_URL"`
	StripeWebhookSecret   string `env:"STRIPE_WEBHOOK_SECRET"`
	BrevoAPIKey           string `env:"BREVO_API_KEY"`
	BrevoFromEmail        string `env:"BREVO_FROM_EMAIL" envDefault:"onboarding@curtistech.dev"`
	BrevoFromName         string `env:"BREVO_FROM_NAME" envDefault:"Curtis Tech"`
	AdminPasswordHash     string `env:"ADMIN_PASSWORD_HASH"`
	ProductName           string `env:"PRODUCT_NAME" envDefault:"Quote Genius"`
	RedeemRateLimitPerMin int    `env:"REDEEM_RATE_LIMIT_PER_MIN" envDefault:"30"`
	NotifyQueueSize       int    `env:"NOTIFY_QUEUE_SIZE" envDefault:"100"`
	StatsIntervalSeconds  int    `env:"STATS_INTERVAL_SECONDS" envDefault:"60"`
}

func (c *Config) Addr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c *Config) StatsInterval() time.Duration {
	return time.Duration(c.StatsIntervalSeconds) * time.Second
}

func (c *Config) Validate(isProduction bool) error {
	switch c.LedgerBackend {
	case BackendMemory, BackendFile:
	case BackendPostgres:
		if c.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required when LEDGER_BACKEND=%s", BackendPostgres)
		}
	case BackendRedis:
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when LEDGER_BACKEND=%s", BackendRedis)
		}
	default:
		return fmt.Errorf("unknown LEDGER_BACKEND %q (want memory, file, postgres or redis)", c.LedgerBackend)
	}

	if c.LedgerBackend == BackendFile && strings.TrimSpace(c.LedgerFile) == "" {
		return fmt.Errorf("LEDGER_FILE must not be empty when LEDGER_BACKEND=%s", BackendFile)
	}

	if c.AdminPasswordHash != "" {
		if !strings.HasPrefix(c.AdminPasswordHash, "$2a$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2b$") &&
			!strings.HasPrefix(c.AdminPasswordHash, "$2y$") {
			return fmt.Errorf("ADMIN_PASSWORD_HASH must be a bcrypt hash (generate with: go run scripts/hash-password.go <password>)")
		}
	}

	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE must be positive")
	}

	if isProduction {
		if c.StripeWebhookSecret == "" {
			log.Warn().Msg("STRIPE_WEBHOOK_SECRET is empty in production: webhook signature verification disabled")
		}
		if c.LedgerBackend == BackendMemory {
			log.Warn().Msg("LEDGER_BACKEND=memory in production: codes are lost on restart")
		}
		if c.BrevoAPIKey == "" {
			log.Warn().Msg("BREVO_API_KEY is empty in production: purchasers will not receive their codes by email")
		}
		if strings.HasPrefix(c.RedisURL, "redis://") {
			log.Warn().Msg("REDIS_URL uses redis:// (not TLS) in production: consider using rediss://")
		}
	}

	return nil
}

func Load() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return &cfg, nil
}
