package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
)

const devJWTSecret = "cryptopay-dev-secret"

// Config captures application runtime configuration loaded from environment variables.
type Config struct {
	AppName        string        `env:"APP_NAME" envDefault:"CryptoPay"`
	Env            string        `env:"APP_ENV" envDefault:"development"`
	Port           string        `env:"PORT" envDefault:"8080"`
	LogLevel       string        `env:"LOG_LEVEL" envDefault:"info"`
	DatabaseURL    string        `env:"DATABASE_URL"`
	RedisURL       string        `env:"REDIS_URL"`
	AutoMigrate    bool          `env:"AUTO_MIGRATE" envDefault:"false"`
	ShutdownPeriod time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
	IdempotencyTTL time.Duration `env:"IDEMPOTENCY_TTL" envDefault:"24h"`
	LoginRateLimit int           `env:"LOGIN_RATE_LIMIT" envDefault:"5"`

	Auth    AuthConfig
	Gateway GatewayConfig `envPrefix:"GATEWAY_"`
}

// AuthConfig configures token issuance and alias minting.
type AuthConfig struct {
	JWTSecret      string        `env:"JWT_SECRET"`
	AccessTokenTTL time.Duration `env:"ACCESS_TOKEN_TTL" envDefault:"1h"`
	AliasDomain    string        `env:"ALIAS_DOMAIN" envDefault:"cryptopay"`
}

// GatewayConfig holds payment gateway endpoints and per-mode credentials.
// An empty BaseURL selects the local simulated gateway, which is only
// allowed in development.
type GatewayConfig struct {
	BaseURL       string        `env:"BASE_URL"`
	Timeout       time.Duration `env:"TIMEOUT" envDefault:"10s"`
	TestKeyID     string        `env:"TEST_KEY_ID"`
	TestKeySecret string        `env:"TEST_KEY_SECRET"`
	LiveKeyID     string        `env:"LIVE_KEY_ID"`
	LiveKeySecret string        `env:"LIVE_KEY_SECRET"`
}

// Load reads configuration values from the environment and populates a Config instance.
func Load() (Config, error) {
	return load(env.Options{})
}

func load(opts env.Options) (Config, error) {
	var cfg Config
	if err := env.ParseWithOptions(&cfg, opts); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	cfg.LogLevel = strings.ToLower(cfg.LogLevel)

	if cfg.IsDev() {
		if cfg.Auth.JWTSecret == "" {
			cfg.Auth.JWTSecret = devJWTSecret
		}
		return cfg, nil
	}

	if cfg.DatabaseURL == "" {
		return Config{}, fmt.Errorf("DATABASE_URL must be set")
	}
	if cfg.RedisURL == "" {
		return Config{}, fmt.Errorf("REDIS_URL must be set")
	}
	if len(cfg.Auth.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters")
	}
	if cfg.Gateway.BaseURL == "" {
		return Config{}, fmt.Errorf("GATEWAY_BASE_URL must be set")
	}
	if cfg.Gateway.LiveKeyID == "" {
		return Config{}, fmt.Errorf("GATEWAY_LIVE_KEY_ID must be set")
	}
	if cfg.Gateway.LiveKeySecret == "" {
		return Config{}, fmt.Errorf("GATEWAY_LIVE_KEY_SECRET must be set")
	}
	return cfg, nil
}

// IsDev reports whether the process runs in a local development environment,
// where Postgres, Redis and gateway credentials are optional.
func (c Config) IsDev() bool {
	switch strings.ToLower(c.Env) {
	case "dev", "development", "local", "test":
		return true
	default:
		return false
	}
}

// Address returns the listen address in the format Fiber expects.
func (c Config) Address() string {
	if strings.HasPrefix(c.Port, ":") {
		return c.Port
	}
	return fmt.Sprintf(":%s", c.Port)
}
