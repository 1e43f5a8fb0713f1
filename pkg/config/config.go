package config

import (
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Server       ServerConfig        `yaml:"server" envconfig:"SERVER"`
	Storage      StorageConfig       `yaml:"storage" envconfig:"STORAGE"`
	Logging      LoggingConfig       `yaml:"logging" envconfig:"LOGGING"`
	JWT          JWTConfig           `yaml:"jwt" envconfig:"JWT"`
	SessionStore SessionStoreConfig  `yaml:"session_store" envconfig:"SESSION_STORE"`
	Issuance     IssuanceConfig      `yaml:"issuance" envconfig:"ISSUANCE"`
	Notification NotificationConfig  `yaml:"notification" envconfig:"NOTIFICATION"`
	RateLimit    AuthRateLimitConfig `yaml:"rate_limit" envconfig:"RATE_LIMIT"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host       string `yaml:"host" envconfig:"HOST"`
	Port       int    `yaml:"port" envconfig:"PORT"`
	AdminToken string `yaml:"admin_token" envconfig:"ADMIN_TOKEN"` // Bearer token for /admin routes (disabled if empty)
	// BaseURL is the public URL of this service; jwks_uri and default logos are derived from it.
	BaseURL string `yaml:"base_url" envconfig:"BASE_URL"`
	// WalletClientURL is the wallet frontend landing page, used as OAuth redirect_uri.
	WalletClientURL string `yaml:"wallet_client_url" envconfig:"WALLET_CLIENT_URL"`
}

// StorageConfig contains storage configuration
type StorageConfig struct {
	Type    string        `yaml:"type" envconfig:"TYPE"` // memory, mongodb
	MongoDB MongoDBConfig `yaml:"mongodb" envconfig:"MONGODB"`
}

// MongoDBConfig contains MongoDB-specific configuration
type MongoDBConfig struct {
	URI      string `yaml:"uri" envconfig:"URI"`
	Database string `yaml:"database" envconfig:"DATABASE"`
	Timeout  int    `yaml:"timeout" envconfig:"TIMEOUT"` // seconds
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" envconfig:"LEVEL"`   // debug, info, warn, error
	Format string `yaml:"format" envconfig:"FORMAT"` // json, text
}

// JWTConfig contains JWT configuration
type JWTConfig struct {
	Secret      string `yaml:"secret" envconfig:"SECRET"`
	ExpiryHours int    `yaml:"expiry_hours" envconfig:"EXPIRY_HOURS"`
	Issuer      string `yaml:"issuer" envconfig:"ISSUER"`
}

// Session write policies
const (
	WritePolicyLastWriteWins  = "last_write_wins"
	WritePolicyCompareAndSwap = "compare_and_swap"
)

// SessionStoreConfig contains protocol session store configuration
type SessionStoreConfig struct {
	// Type is the session store type: "memory" or "redis"
	Type string `yaml:"type" envconfig:"TYPE"`
	// WritePolicy is "last_write_wins" or "compare_and_swap"
	WritePolicy string `yaml:"write_policy" envconfig:"WRITE_POLICY"`
	// Redis contains Redis-specific configuration
	Redis RedisConfig `yaml:"redis" envconfig:"REDIS"`
	// DefaultTTLHours is the session TTL in hours (redis only)
	DefaultTTLHours int `yaml:"default_ttl_hours" envconfig:"DEFAULT_TTL_HOURS"`
}

// RedisConfig contains Redis connection configuration
type RedisConfig struct {
	Address   string `yaml:"address" envconfig:"ADDRESS"`
	Password  string `yaml:"password" envconfig:"PASSWORD"`
	DB        int    `yaml:"db" envconfig:"DB"`
	KeyPrefix string `yaml:"key_prefix" envconfig:"KEY_PREFIX"`
}

// IssuanceConfig controls outbound calls to credential issuers
type IssuanceConfig struct {
	HTTPTimeoutSeconds  int `yaml:"http_timeout_seconds" envconfig:"HTTP_TIMEOUT_SECONDS"`
	DeferredPollDelayMS int `yaml:"deferred_poll_delay_ms" envconfig:"DEFERRED_POLL_DELAY_MS"`
	// DeferredMaxAttempts bounds deferred credential polling; 0 polls until cancelled.
	DeferredMaxAttempts uint `yaml:"deferred_max_attempts" envconfig:"DEFERRED_MAX_ATTEMPTS"`
	// DeferredBackoff switches from a fixed delay to exponential backoff.
	DeferredBackoff bool `yaml:"deferred_backoff" envconfig:"DEFERRED_BACKOFF"`
}

// HTTPTimeout returns the outbound HTTP client timeout
func (c IssuanceConfig) HTTPTimeout() time.Duration {
	return time.Duration(c.HTTPTimeoutSeconds) * time.Second
}

// DeferredPollDelay returns the delay between deferred credential polls
func (c IssuanceConfig) DeferredPollDelay() time.Duration {
	return time.Duration(c.DeferredPollDelayMS) * time.Millisecond
}

// NotificationConfig controls the websocket push notifier
type NotificationConfig struct {
	Enabled             bool `yaml:"enabled" envconfig:"ENABLED"`
	WriteTimeoutSeconds int  `yaml:"write_timeout_seconds" envconfig:"WRITE_TIMEOUT_SECONDS"`
}

// AuthRateLimitConfig configures login throttling
type AuthRateLimitConfig struct {
	Enabled        bool `yaml:"enabled" envconfig:"ENABLED"`
	MaxAttempts    int  `yaml:"max_attempts" envconfig:"MAX_ATTEMPTS"`
	WindowSeconds  int  `yaml:"window_seconds" envconfig:"WINDOW_SECONDS"`
	LockoutSeconds int  `yaml:"lockout_seconds" envconfig:"LOCKOUT_SECONDS"`
}

// SetDefaults fills zero values
func (c *AuthRateLimitConfig) SetDefaults() {
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 10
	}
	if c.WindowSeconds <= 0 {
		c.WindowSeconds = 60
	}
	if c.LockoutSeconds <= 0 {
		c.LockoutSeconds = 300
	}
}

// Load loads configuration from file and environment variables
func Load(configFile string) (*Config, error) {
	cfg := defaultConfig()

	if configFile != "" {
		data, err := os.ReadFile(configFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			// File doesn't exist, that's ok - we'll use defaults and env vars
		} else {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		}
	}

	// Environment variables have the highest priority
	if err := envconfig.Process("WALLET", cfg); err != nil {
		return nil, fmt.Errorf("failed to process environment variables: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Server.BaseURL == "" {
		cfg.Server.BaseURL = fmt.Sprintf("http://%s:%d", cfg.Server.Host, cfg.Server.Port)
	}
	if cfg.Server.WalletClientURL == "" {
		cfg.Server.WalletClientURL = cfg.Server.BaseURL + "/cb"
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible default values
func defaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "0.0.0.0",
			Port: 8080,
		},
		Storage: StorageConfig{
			Type: "memory",
			MongoDB: MongoDBConfig{
				URI:      "mongodb://localhost:27017",
				Database: "wallet",
				Timeout:  10,
			},
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		JWT: JWTConfig{
			ExpiryHours: 24,
			Issuer:      "wallet-orchestrator",
		},
		SessionStore: SessionStoreConfig{
			Type:            "memory",
			WritePolicy:     WritePolicyLastWriteWins,
			DefaultTTLHours: 24,
			Redis: RedisConfig{
				Address:   "localhost:6379",
				KeyPrefix: "wallet:session:",
			},
		},
		Issuance: IssuanceConfig{
			HTTPTimeoutSeconds:  30,
			DeferredPollDelayMS: 2000,
		},
		Notification: NotificationConfig{
			Enabled:             true,
			WriteTimeoutSeconds: 5,
		},
		RateLimit: AuthRateLimitConfig{
			Enabled:        true,
			MaxAttempts:    10,
			WindowSeconds:  60,
			LockoutSeconds: 300,
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}

	for name, raw := range map[string]string{"base_url": c.Server.BaseURL, "wallet_client_url": c.Server.WalletClientURL} {
		if raw == "" {
			continue
		}
		if u, err := url.Parse(raw); err != nil || u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("invalid %s: %q", name, raw)
		}
	}

	if c.Storage.Type != "memory" && c.Storage.Type != "mongodb" {
		return fmt.Errorf("invalid storage type: %s (must be memory or mongodb)", c.Storage.Type)
	}

	if c.Storage.Type == "mongodb" && c.Storage.MongoDB.URI == "" {
		return fmt.Errorf("mongodb uri is required when using mongodb storage")
	}

	if c.JWT.Secret == "" {
		return fmt.Errorf("jwt secret is required")
	}

	switch c.SessionStore.Type {
	case "", "memory":
	case "redis":
		if c.SessionStore.Redis.Address == "" {
			return fmt.Errorf("redis address is required when using redis session store")
		}
	default:
		return fmt.Errorf("invalid session store type: %s (must be memory or redis)", c.SessionStore.Type)
	}

	switch c.SessionStore.WritePolicy {
	case "", WritePolicyLastWriteWins, WritePolicyCompareAndSwap:
	default:
		return fmt.Errorf("invalid session write policy: %s", c.SessionStore.WritePolicy)
	}

	if c.Issuance.HTTPTimeoutSeconds < 0 || c.Issuance.DeferredPollDelayMS < 0 {
		return fmt.Errorf("issuance timeouts must not be negative")
	}

	return nil
}

// Address returns the server address
func (c *ServerConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
