// Package config loads runtime settings from the environment.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"

	"github.com/aryangodara/secure_gate/gate"
	"github.com/aryangodara/secure_gate/validators"
)

// Limiter stores.
const (
	StoreMemory     = "memory"
	StoreRedis      = "redis"
	StoreRedisFixed = "redis-fixed"
)

// Config holds runtime configuration.
type Config struct {
	AppEnv  string `envconfig:"APP_ENV" default:"development"`
	AppAddr string `envconfig:"APP_ADDR" default:":8080"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`
	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`

	LimiterStore         string        `envconfig:"LIMITER_STORE" default:"memory"`
	LimiterSweepInterval time.Duration `envconfig:"LIMITER_SWEEP_INTERVAL" default:"5m"`
	RedisAddr            string        `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	SignInMaxAttempts uint64        `envconfig:"SIGNIN_MAX_ATTEMPTS" default:"5"`
	SignInWindow      time.Duration `envconfig:"SIGNIN_WINDOW" default:"15m"`
	SignUpMaxAttempts uint64        `envconfig:"SIGNUP_MAX_ATTEMPTS" default:"3"`
	SignUpWindow      time.Duration `envconfig:"SIGNUP_WINDOW" default:"1h"`

	PasswordMinLength     int  `envconfig:"PASSWORD_MIN_LENGTH" default:"8"`
	PasswordRequireUpper  bool `envconfig:"PASSWORD_REQUIRE_UPPER" default:"true"`
	PasswordRequireLower  bool `envconfig:"PASSWORD_REQUIRE_LOWER" default:"true"`
	PasswordRequireDigit  bool `envconfig:"PASSWORD_REQUIRE_DIGIT" default:"true"`
	PasswordRequireSymbol bool `envconfig:"PASSWORD_REQUIRE_SYMBOL" default:"true"`

	BackendURL     string        `envconfig:"BACKEND_URL"`
	BackendAPIKey  string        `envconfig:"BACKEND_API_KEY"`
	BackendTimeout time.Duration `envconfig:"BACKEND_TIMEOUT" default:"10s"`

	HTTPIPLimitPerMinute int `envconfig:"HTTP_IP_LIMIT_PER_MINUTE" default:"120"`
	AuthIPLimitPerMinute int `envconfig:"AUTH_IP_LIMIT_PER_MINUTE" default:"30"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the gates cannot run with.
func (c *Config) Validate() error {
	switch c.LimiterStore {
	case StoreMemory, StoreRedis, StoreRedisFixed:
	default:
		return fmt.Errorf("unsupported limiter store: %s", c.LimiterStore)
	}
	if c.SignInMaxAttempts == 0 || c.SignInWindow <= 0 {
		return errors.New("sign-in budget must be positive")
	}
	if c.SignUpMaxAttempts == 0 || c.SignUpWindow <= 0 {
		return errors.New("sign-up budget must be positive")
	}
	if c.PasswordMinLength < 0 {
		return errors.New("password minimum length must not be negative")
	}
	if c.BackendURL != "" && c.BackendAPIKey == "" {
		return errors.New("backend api key must be provided with BACKEND_URL")
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}

func (c *Config) SignInBudget() gate.Budget {
	return gate.Budget{MaxAttempts: c.SignInMaxAttempts, Window: c.SignInWindow}
}

func (c *Config) SignUpBudget() gate.Budget {
	return gate.Budget{MaxAttempts: c.SignUpMaxAttempts, Window: c.SignUpWindow}
}

func (c *Config) PasswordPolicy() validators.Policy {
	return validators.Policy{
		MinLength:     c.PasswordMinLength,
		RequireUpper:  c.PasswordRequireUpper,
		RequireLower:  c.PasswordRequireLower,
		RequireDigit:  c.PasswordRequireDigit,
		RequireSymbol: c.PasswordRequireSymbol,
	}
}
