// ABOUTME: Configuration loading and parsing for bot-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete bot-gateway configuration
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Auth      AuthConfig      `yaml:"auth"`
	Limits    LimitsConfig    `yaml:"limits"`
	Webhooks  WebhooksConfig  `yaml:"webhooks"`
	Platform  PlatformConfig  `yaml:"platform"`
	Retention RetentionConfig `yaml:"retention"`
	Logging   LoggingConfig   `yaml:"logging"`
	Metrics   MetricsConfig   `yaml:"metrics"`
}

// ServerConfig holds the listen address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path"`
}

// AuthConfig holds session verification configuration. JWTSecret signs
// and verifies owner/user session tokens issued by the identity service.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret"`
}

// LimitsConfig holds registration quotas and default rate-limit ceilings.
// Per-bot overrides on the bot row take precedence over the defaults.
type LimitsConfig struct {
	MaxBotsPerOwner    int `yaml:"max_bots_per_owner"`
	RateLimitPerSecond int `yaml:"rate_limit_per_second"`
	RateLimitPerMinute int `yaml:"rate_limit_per_minute"`
}

// WebhooksConfig sizes the webhook delivery worker pool
type WebhooksConfig struct {
	Workers int `yaml:"workers"`
}

// PlatformConfig points at the collaborating platform services. Empty
// URLs select the no-op implementations, which is the standalone mode
// used in development.
type PlatformConfig struct {
	DeliveryURL string `yaml:"delivery_url"`
	MediaURL    string `yaml:"media_url"`
}

// RetentionConfig holds the background cleanup windows
type RetentionConfig struct {
	SweepInterval     time.Duration `yaml:"-"`
	DeliveryRetention time.Duration `yaml:"-"`
	MessageRetention  time.Duration `yaml:"-"`

	// Raw string values for YAML unmarshaling
	SweepIntervalRaw     string `yaml:"sweep_interval"`
	DeliveryRetentionRaw string `yaml:"delivery_retention"`
	MessageRetentionRaw  string `yaml:"message_retention"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	// Parse duration fields
	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	// Validate required fields
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	// Match ${VAR_NAME} pattern
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		// Extract variable name from ${VAR_NAME}
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills unset optional fields
func (c *Config) applyDefaults() {
	if c.Limits.MaxBotsPerOwner <= 0 {
		c.Limits.MaxBotsPerOwner = 20
	}
	if c.Limits.RateLimitPerSecond <= 0 {
		c.Limits.RateLimitPerSecond = 30
	}
	if c.Limits.RateLimitPerMinute <= 0 {
		c.Limits.RateLimitPerMinute = 600
	}
	if c.Webhooks.Workers <= 0 {
		c.Webhooks.Workers = 4
	}
	if c.Metrics.Enabled && c.Metrics.Path == "" {
		c.Metrics.Path = "/metrics"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret is required")
	}
	if c.Limits.RateLimitPerSecond > c.Limits.RateLimitPerMinute {
		return fmt.Errorf("limits.rate_limit_per_second cannot exceed limits.rate_limit_per_minute")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Retention.SweepIntervalRaw != "" {
		cfg.Retention.SweepInterval, err = time.ParseDuration(cfg.Retention.SweepIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sweep_interval %q: %w", cfg.Retention.SweepIntervalRaw, err)
		}
	}

	if cfg.Retention.DeliveryRetentionRaw != "" {
		cfg.Retention.DeliveryRetention, err = time.ParseDuration(cfg.Retention.DeliveryRetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing delivery_retention %q: %w", cfg.Retention.DeliveryRetentionRaw, err)
		}
	}

	if cfg.Retention.MessageRetentionRaw != "" {
		cfg.Retention.MessageRetention, err = time.ParseDuration(cfg.Retention.MessageRetentionRaw)
		if err != nil {
			return fmt.Errorf("parsing message_retention %q: %w", cfg.Retention.MessageRetentionRaw, err)
		}
	}

	return nil
}
