package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds all host configuration.
type Config struct {
	Server    ServerConfig
	Backend   BackendConfig
	Storage   StorageConfig
	Host      HostConfig
	Logging   LogConfig
	RateLimit RateLimitConfig
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Port string `envconfig:"PORT" default:"8000"`
	Host string `envconfig:"HOST" default:"0.0.0.0"`
}

// BackendConfig describes the remote catalog, entitlement and token issuer.
type BackendConfig struct {
	BaseURL     string        `envconfig:"BACKEND_BASE_URL" default:"http://localhost:9090/api/v1"`
	AccessToken string        `envconfig:"ACCESS_TOKEN"`
	Timeout     time.Duration `envconfig:"HTTP_TIMEOUT" default:"30s"`
	RetryCount  int           `envconfig:"HTTP_RETRY_COUNT" default:"0"`
	RateLimit   float64       `envconfig:"HTTP_RATE_LIMIT" default:"0"`

	BreakerThreshold uint32        `envconfig:"BACKEND_BREAKER_THRESHOLD" default:"5"`
	BreakerCooldown  time.Duration `envconfig:"BACKEND_BREAKER_COOLDOWN" default:"30s"`
}

// StorageConfig selects the durable key-value backend.
type StorageConfig struct {
	Driver     string `envconfig:"STORE_DRIVER" default:"sqlite"`
	SQLitePath string `envconfig:"SQLITE_PATH" default:"data/superapp.db"`
	RedisURL   string `envconfig:"REDIS_URL" default:"redis://localhost:6379"`
}

// HostConfig holds micro-app host settings.
type HostConfig struct {
	DocumentRoot           string `envconfig:"DOCUMENT_ROOT" default:"data/documents"`
	UserID                 string `envconfig:"USER_ID"`
	DeveloperMode          bool   `envconfig:"DEVELOPER_MODE" default:"false"`
	DefaultClientID        string `envconfig:"DEFAULT_CLIENT_ID" default:"default-microapp-client-id"`
	BridgeRequestTimeoutMS int    `envconfig:"BRIDGE_REQUEST_TIMEOUT_MS" default:"0"`
	SyncOnStart            bool   `envconfig:"SYNC_ON_START" default:"false"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level       string `envconfig:"LOG_LEVEL" default:"info"`
	Development bool   `envconfig:"LOG_DEV" default:"false"`
}

// RateLimitConfig holds API rate limiting configuration.
type RateLimitConfig struct {
	RequestsPerSecond int  `envconfig:"RATE_LIMIT_RPS" default:"100"`
	Burst             int  `envconfig:"RATE_LIMIT_BURST" default:"200"`
	Enabled           bool `envconfig:"RATE_LIMIT_ENABLED" default:"true"`
}

// Load loads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// LoadOrDefault loads configuration from environment or returns default.
func LoadOrDefault() *Config {
	cfg, err := Load()
	if err != nil {
		return Default()
	}
	return cfg
}

// Validate rejects combinations the host cannot start with.
func (c *Config) Validate() error {
	switch c.Storage.Driver {
	case "sqlite", "redis", "memory":
	default:
		return fmt.Errorf("unsupported STORE_DRIVER %q", c.Storage.Driver)
	}
	if c.Host.DocumentRoot == "" {
		return fmt.Errorf("DOCUMENT_ROOT is required")
	}
	if c.Backend.RetryCount < 0 {
		return fmt.Errorf("HTTP_RETRY_COUNT must not be negative")
	}
	return nil
}

// Default returns default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port: "8000",
			Host: "0.0.0.0",
		},
		Backend: BackendConfig{
			BaseURL: "http://localhost:9090/api/v1",
			Timeout: 30 * time.Second,

			BreakerThreshold: 5,
			BreakerCooldown:  30 * time.Second,
		},
		Storage: StorageConfig{
			Driver:     "sqlite",
			SQLitePath: "data/superapp.db",
			RedisURL:   "redis://localhost:6379",
		},
		Host: HostConfig{
			DocumentRoot:    "data/documents",
			DefaultClientID: "default-microapp-client-id",
		},
		Logging: LogConfig{
			Level: "info",
		},
		RateLimit: RateLimitConfig{
			RequestsPerSecond: 100,
			Burst:             200,
			Enabled:           true,
		},
	}
}
