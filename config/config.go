// Package config provides configuration loading and validation.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/artpar/metergate/domain/plan"
	"github.com/artpar/metergate/domain/subscription"
)

// Config is the root configuration structure.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Storage StorageConfig `yaml:"storage"`
	Usage   UsageConfig   `yaml:"usage"`
	Quota   QuotaConfig   `yaml:"quota"`
	Chat    ChatConfig    `yaml:"chat"`
	Plans   []plan.Plan   `yaml:"plans"`
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// StorageConfig selects and configures the event store backend.
type StorageConfig struct {
	Driver  string `yaml:"driver"` // "postgres", "sqlite", "jsonl", "memory"
	DSN     string `yaml:"dsn"`
	LogsDir string `yaml:"logs_dir"` // jsonl driver only
}

// UsageConfig tunes the async usage recorder.
type UsageConfig struct {
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	MaxAttempts   int           `yaml:"max_attempts"`
	RetryBackoff  time.Duration `yaml:"retry_backoff"`
}

// QuotaConfig configures quota evaluation.
type QuotaConfig struct {
	ExpiryPolicy string `yaml:"expiry_policy"` // "revert-to-free" or "block"
}

// ChatConfig configures the chat passthrough endpoint.
type ChatConfig struct {
	Enabled     bool          `yaml:"enabled"`
	UpstreamURL string        `yaml:"upstream_url"` // empty = echo stub
	Timeout     time.Duration `yaml:"timeout"`
}

// LoggingConfig configures logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // "debug", "info", "warn", "error"
	Format string `yaml:"format"` // "json" or "console"
}

// MetricsConfig configures Prometheus metrics.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
}

// Load reads configuration from a YAML file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	// Expand environment variables
	data = []byte(os.ExpandEnv(string(data)))

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadFromEnv creates configuration entirely from environment variables.
// Useful for Docker deployments where no config file is needed.
//
// Environment variables:
//
//	METERGATE_SERVER_HOST       - Server host (default: 0.0.0.0)
//	METERGATE_SERVER_PORT       - Server port (default: 8080)
//	METERGATE_STORAGE_DRIVER    - Storage driver: postgres, sqlite, jsonl, memory
//	METERGATE_STORAGE_DSN       - Database DSN (falls back to POSTGRES_URL, DATABASE_URL)
//	METERGATE_LOGS_DIR          - Directory for the jsonl driver (also USAGE_LOGS_DIR)
//	METERGATE_USAGE_BATCH_SIZE  - Recorder batch size (default: 100)
//	METERGATE_QUOTA_EXPIRY      - Expiry policy: revert-to-free or block
//	METERGATE_CHAT_UPSTREAM_URL - Chat upstream URL (empty = echo stub)
//	METERGATE_LOG_LEVEL         - Log level: debug, info, warn, error (default: info)
//	METERGATE_LOG_FORMAT        - Log format: json or console (default: json)
//	METERGATE_METRICS_ENABLED   - Enable /metrics endpoint (default: true)
func LoadFromEnv() (*Config, error) {
	var cfg Config

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	if err := validate(&cfg); err != nil {
		return nil, fmt.Errorf("validate config: %w", err)
	}

	return &cfg, nil
}

// LoadWithFallback tries to load from file, falls back to environment
// variables.
func LoadWithFallback(path string) (*Config, error) {
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			return Load(path)
		}
	}
	return LoadFromEnv()
}

// applyEnvOverrides applies METERGATE_* environment variables.
// Environment variables always override file-based configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("METERGATE_SERVER_HOST"); v != "" {
		cfg.Server.Host = v
	}
	if v := os.Getenv("METERGATE_SERVER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("METERGATE_SERVER_READ_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.ReadTimeout = d
		}
	}
	if v := os.Getenv("METERGATE_SERVER_WRITE_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Server.WriteTimeout = d
		}
	}

	if v := os.Getenv("METERGATE_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("METERGATE_STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("METERGATE_LOGS_DIR"); v != "" {
		cfg.Storage.LogsDir = v
	} else if v := os.Getenv("USAGE_LOGS_DIR"); v != "" {
		cfg.Storage.LogsDir = v
	}

	if v := os.Getenv("METERGATE_USAGE_BATCH_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Usage.BatchSize = n
		}
	}
	if v := os.Getenv("METERGATE_USAGE_FLUSH_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Usage.FlushInterval = d
		}
	}
	if v := os.Getenv("METERGATE_USAGE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Usage.MaxAttempts = n
		}
	}

	if v := os.Getenv("METERGATE_QUOTA_EXPIRY"); v != "" {
		cfg.Quota.ExpiryPolicy = v
	}

	if v := os.Getenv("METERGATE_CHAT_ENABLED"); v != "" {
		cfg.Chat.Enabled = parseBool(v)
	}
	if v := os.Getenv("METERGATE_CHAT_UPSTREAM_URL"); v != "" {
		cfg.Chat.UpstreamURL = v
	}

	if v := os.Getenv("METERGATE_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
	if v := os.Getenv("METERGATE_LOG_FORMAT"); v != "" {
		cfg.Logging.Format = v
	}
	if v := os.Getenv("METERGATE_METRICS_ENABLED"); v != "" {
		cfg.Metrics.Enabled = parseBool(v)
	}
}

// ResolveDSN returns the effective database DSN: the configured value,
// then POSTGRES_URL, then DATABASE_URL.
func (c *Config) ResolveDSN() string {
	if c.Storage.DSN != "" {
		return c.Storage.DSN
	}
	if v := os.Getenv("POSTGRES_URL"); v != "" {
		return v
	}
	return os.Getenv("DATABASE_URL")
}

// Catalog returns the plan catalog with config overrides applied.
func (c *Config) Catalog() plan.Catalog {
	return plan.Default().Override(c.Plans)
}

// ExpiryPolicy returns the configured subscription expiry policy.
func (c *Config) ExpiryPolicy() subscription.ExpiryPolicy {
	if c.Quota.ExpiryPolicy == string(subscription.ExpiryBlock) {
		return subscription.ExpiryBlock
	}
	return subscription.ExpiryRevertToFree
}

// parseBool parses a boolean from common string values.
func parseBool(v string) bool {
	v = strings.ToLower(strings.TrimSpace(v))
	return v == "true" || v == "1" || v == "yes" || v == "on"
}

func setDefaults(cfg *Config) {
	if cfg.Server.Host == "" {
		cfg.Server.Host = "0.0.0.0"
	}
	if cfg.Server.Port == 0 {
		cfg.Server.Port = 8080
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = 30 * time.Second
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = 60 * time.Second
	}

	if cfg.Storage.Driver == "" {
		cfg.Storage.Driver = "postgres"
	}
	if cfg.Storage.LogsDir == "" {
		cfg.Storage.LogsDir = "usage-logs"
	}

	if cfg.Usage.BatchSize == 0 {
		cfg.Usage.BatchSize = 100
	}
	if cfg.Usage.FlushInterval == 0 {
		cfg.Usage.FlushInterval = 10 * time.Second
	}
	if cfg.Usage.MaxAttempts == 0 {
		cfg.Usage.MaxAttempts = 3
	}
	if cfg.Usage.RetryBackoff == 0 {
		cfg.Usage.RetryBackoff = 250 * time.Millisecond
	}

	if cfg.Quota.ExpiryPolicy == "" {
		cfg.Quota.ExpiryPolicy = string(subscription.ExpiryRevertToFree)
	}

	if cfg.Chat.Timeout == 0 {
		cfg.Chat.Timeout = 30 * time.Second
	}

	if cfg.Logging.Level == "" {
		cfg.Logging.Level = "info"
	}
	if cfg.Logging.Format == "" {
		cfg.Logging.Format = "json"
	}
}

func validate(cfg *Config) error {
	switch cfg.Storage.Driver {
	case "postgres", "sqlite", "jsonl", "memory":
	default:
		return fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}

	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		return fmt.Errorf("invalid server port %d", cfg.Server.Port)
	}

	switch cfg.Quota.ExpiryPolicy {
	case string(subscription.ExpiryRevertToFree), string(subscription.ExpiryBlock):
	default:
		return fmt.Errorf("unknown expiry policy %q", cfg.Quota.ExpiryPolicy)
	}

	for _, p := range cfg.Plans {
		if !p.Tier.IsValid() {
			return fmt.Errorf("unknown plan tier %q", p.Tier)
		}
	}

	return nil
}
