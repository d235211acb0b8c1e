// Package config loads service configuration from the environment, with an
// optional .env file for local runs. Real environment variables win.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Storage drivers.
const (
	StoreBolt     = "bolt"
	StorePostgres = "postgres"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int    `mapstructure:"PORT"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	// Storage
	StoreDriver string `mapstructure:"STORE_DRIVER"`
	BoltPath    string `mapstructure:"BOLT_PATH"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`

	// Locks. An empty REDIS_URL falls back to the in-process locker.
	RedisURL            string        `mapstructure:"REDIS_URL"`
	LockPrefix          string        `mapstructure:"LOCK_PREFIX"`
	RefundLockTTL       time.Duration `mapstructure:"REFUND_LOCK_TTL"`
	RegistrationLockTTL time.Duration `mapstructure:"REGISTRATION_LOCK_TTL"` // 0 disables the registration lock
	LockRetryInterval   time.Duration `mapstructure:"LOCK_RETRY_INTERVAL"`
	LockWaitTimeout     time.Duration `mapstructure:"LOCK_WAIT_TIMEOUT"`

	// Messaging
	RabbitMQURL    string `mapstructure:"RABBITMQ_URL"`
	EventsExchange string `mapstructure:"EVENTS_EXCHANGE"`

	// Providers
	EnabledProviders []string `mapstructure:"ENABLED_PROVIDERS"`
	ProviderURLs     string   `mapstructure:"PROVIDER_URLS"` // name=url,name=url
	DefaultLocale    string   `mapstructure:"DEFAULT_LOCALE"`

	// HTTP client
	HTTPTimeout time.Duration `mapstructure:"HTTP_TIMEOUT"`

	// Resilience
	MaxRetries               int           `mapstructure:"MAX_RETRIES"`
	InitialBackoff           time.Duration `mapstructure:"INITIAL_BACKOFF"`
	MaxConcurrency           int           `mapstructure:"MAX_CONCURRENCY"`
	PayableRefundConcurrency int           `mapstructure:"PAYABLE_REFUND_CONCURRENCY"`

	// Cache
	CacheTTL time.Duration `mapstructure:"CACHE_TTL"`

	// Observability
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`

	// Auth / signing
	JWTSecret            string `mapstructure:"JWT_SECRET"`
	WebhookSigningSecret string `mapstructure:"WEBHOOK_SIGNING_SECRET"`
}

var defaults = map[string]any{
	"PORT":                        8080,
	"LOG_LEVEL":                   "info",
	"STORE_DRIVER":                StoreBolt,
	"BOLT_PATH":                   "acquiring.db",
	"DATABASE_URL":                "",
	"REDIS_URL":                   "",
	"LOCK_PREFIX":                 "acq:lock",
	"REFUND_LOCK_TTL":             "30s",
	"REGISTRATION_LOCK_TTL":       "10s",
	"LOCK_RETRY_INTERVAL":         "100ms",
	"LOCK_WAIT_TIMEOUT":           "5s",
	"RABBITMQ_URL":                "",
	"EVENTS_EXCHANGE":             "acquiring.events",
	"ENABLED_PROVIDERS":           "sandbox",
	"PROVIDER_URLS":               "",
	"DEFAULT_LOCALE":              "pt-BR",
	"HTTP_TIMEOUT":                "10s",
	"MAX_RETRIES":                 3,
	"INITIAL_BACKOFF":             "100ms",
	"MAX_CONCURRENCY":             50,
	"PAYABLE_REFUND_CONCURRENCY":  4,
	"CACHE_TTL":                   "5m",
	"OTEL_EXPORTER_OTLP_ENDPOINT": "",
	"JWT_SECRET":                  "acq-default-dev-secret-change-me",
	"WEBHOOK_SIGNING_SECRET":      "",
}

// Load reads .env (when present) and then the environment.
func Load() (*Config, error) {
	_ = godotenv.Load()
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	v.AutomaticEnv()
	for key, value := range defaults {
		v.SetDefault(key, value)
		_ = v.BindEnv(key)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.EnabledProviders = splitList(cfg.EnabledProviders)

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	switch c.StoreDriver {
	case StoreBolt:
		if c.BoltPath == "" {
			return errors.New("BOLT_PATH is required for the bolt store")
		}
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.StoreDriver)
	}
	if c.RefundLockTTL <= 0 {
		return errors.New("REFUND_LOCK_TTL must be positive")
	}
	if _, err := c.ProviderURLMap(); err != nil {
		return err
	}
	return nil
}

// ProviderURLMap parses PROVIDER_URLS ("stone=https://...,rede=https://...").
func (c *Config) ProviderURLMap() (map[string]string, error) {
	out := make(map[string]string)
	for _, pair := range strings.Split(c.ProviderURLs, ",") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		name, url, ok := strings.Cut(pair, "=")
		if !ok || strings.TrimSpace(name) == "" || strings.TrimSpace(url) == "" {
			return nil, fmt.Errorf("invalid PROVIDER_URLS entry %q", pair)
		}
		out[strings.TrimSpace(name)] = strings.TrimSpace(url)
	}
	return out, nil
}

// splitList flattens comma-separated entries, since a single env var
// arrives as one element.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
