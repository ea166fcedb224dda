// Package config provides YAML configuration parsing for the tracker.
//
// Example configuration:
//
//	api_key: ${TORN_API_KEY}
//	concurrency: 4
//
//	rate_limit:
//	  max_calls: 100
//	  period: 60s
//	  min_interval: 620ms
//
//	retry:
//	  max_attempts: 5
//	  base_backoff: 600ms
//	  max_backoff: 8s
//
//	storage:
//	  backend: sqlite
//	  sqlite_path: tracker.db
package config

import (
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// Limits enforced during validation.
const (
	MaxConcurrency = 20
	MaxAutoRefresh = time.Hour
)

// Config is the root configuration structure.
type Config struct {
	// APIKey is the Torn API key forwarded on every request.
	// Supports environment variable substitution: ${VAR} or ${VAR:-default}.
	APIKey string `yaml:"api_key"`

	// BaseURL overrides the Torn API endpoint. Defaults to the production API.
	BaseURL string `yaml:"base_url"`

	// Concurrency is the fetch worker count (1-20). Defaults to 4.
	Concurrency int `yaml:"concurrency"`

	// Timeout is the hard per-attempt request timeout. Defaults to 10s.
	Timeout Duration `yaml:"timeout"`

	// SaveEvery persists the snapshot after this many applied results.
	// Defaults to 50.
	SaveEvery int `yaml:"save_every"`

	// AutoRefresh re-runs the batch on this interval. Zero disables;
	// capped at 1h.
	AutoRefresh Duration `yaml:"auto_refresh"`

	// TargetsFile is the path of the tracked id list. Defaults to
	// targets.json.
	TargetsFile string `yaml:"targets_file"`

	// Listen enables the /metrics and /health HTTP listener when set
	// (e.g. ":9090"). Empty disables it.
	Listen string `yaml:"listen"`

	// LogLevel sets the global log level: debug, info, warn, error.
	// Defaults to info.
	LogLevel string `yaml:"log_level"`

	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Retry     RetryConfig     `yaml:"retry"`
	Storage   StorageConfig   `yaml:"storage"`
}

// RateLimitConfig shapes the shared token bucket.
type RateLimitConfig struct {
	// MaxCalls is the token bucket capacity per period. Defaults to 100.
	MaxCalls int `yaml:"max_calls"`

	// Period is the bucket refill window. Defaults to 60s.
	Period Duration `yaml:"period"`

	// MinInterval is the floor between consecutive calls. Defaults to 620ms.
	MinInterval Duration `yaml:"min_interval"`
}

// RetryConfig shapes the per-fetch retry loop.
type RetryConfig struct {
	// MaxAttempts is the retry ceiling including the first attempt.
	// Defaults to 5.
	MaxAttempts int `yaml:"max_attempts"`

	// BaseBackoff is the first retry delay. Defaults to 600ms.
	BaseBackoff Duration `yaml:"base_backoff"`

	// MaxBackoff caps computed delays. Defaults to 8s.
	MaxBackoff Duration `yaml:"max_backoff"`
}

// StorageConfig selects and configures the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite" or "redis". Defaults to sqlite.
	Backend string `yaml:"backend"`

	// SQLitePath is the database file path for the sqlite backend.
	// Defaults to tracker.db.
	SQLitePath string `yaml:"sqlite_path"`

	Redis RedisConfig `yaml:"redis"`
}

// RedisConfig configures the redis backend. Addr and Password support
// environment variable substitution.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// Duration wraps time.Duration for YAML unmarshalling.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return err
	}

	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}

	*d = Duration(parsed)
	return nil
}

// Duration returns the underlying time.Duration value.
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		BaseURL:     "https://api.torn.com",
		Concurrency: 4,
		Timeout:     Duration(10 * time.Second),
		SaveEvery:   50,
		TargetsFile: "targets.json",
		LogLevel:    "info",
		RateLimit: RateLimitConfig{
			MaxCalls:    100,
			Period:      Duration(60 * time.Second),
			MinInterval: Duration(620 * time.Millisecond),
		},
		Retry: RetryConfig{
			MaxAttempts: 5,
			BaseBackoff: Duration(600 * time.Millisecond),
			MaxBackoff:  Duration(8 * time.Second),
		},
		Storage: StorageConfig{
			Backend:    "sqlite",
			SQLitePath: "tracker.db",
		},
	}
}

// Load reads and parses a YAML configuration file. Environment variables in
// credential fields are expanded after parsing.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse parses YAML configuration data over the defaults and validates the
// result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := cfg.expandAndValidate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// expandAndValidate expands environment variables and validates the config.
func (c *Config) expandAndValidate() error {
	expanded, err := expandEnvVars(c.APIKey)
	if err != nil {
		return fmt.Errorf("api_key: %w", err)
	}
	c.APIKey = expanded
	if c.APIKey == "" {
		return fmt.Errorf("api_key is required")
	}

	if c.Concurrency < 1 || c.Concurrency > MaxConcurrency {
		return fmt.Errorf("concurrency must be 1-%d, got %d", MaxConcurrency, c.Concurrency)
	}
	if c.Timeout.Duration() <= 0 {
		return fmt.Errorf("timeout must be positive, got %s", c.Timeout.Duration())
	}
	if c.SaveEvery <= 0 {
		return fmt.Errorf("save_every must be positive, got %d", c.SaveEvery)
	}
	if c.AutoRefresh.Duration() < 0 || c.AutoRefresh.Duration() > MaxAutoRefresh {
		return fmt.Errorf("auto_refresh must be 0-%s, got %s", MaxAutoRefresh, c.AutoRefresh.Duration())
	}

	if c.RateLimit.MaxCalls <= 0 {
		return fmt.Errorf("rate_limit.max_calls must be positive, got %d", c.RateLimit.MaxCalls)
	}
	if c.RateLimit.Period.Duration() <= 0 {
		return fmt.Errorf("rate_limit.period must be positive, got %s", c.RateLimit.Period.Duration())
	}
	if c.RateLimit.MinInterval.Duration() < 0 {
		return fmt.Errorf("rate_limit.min_interval cannot be negative, got %s", c.RateLimit.MinInterval.Duration())
	}

	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("retry.max_attempts must be at least 1, got %d", c.Retry.MaxAttempts)
	}
	if c.Retry.BaseBackoff.Duration() <= 0 {
		return fmt.Errorf("retry.base_backoff must be positive, got %s", c.Retry.BaseBackoff.Duration())
	}
	if c.Retry.MaxBackoff.Duration() < c.Retry.BaseBackoff.Duration() {
		return fmt.Errorf("retry.max_backoff must be at least base_backoff, got %s", c.Retry.MaxBackoff.Duration())
	}

	switch c.Storage.Backend {
	case "sqlite":
		if c.Storage.SQLitePath == "" {
			return fmt.Errorf("storage.sqlite_path is required for the sqlite backend")
		}
	case "redis":
		addr, err := expandEnvVars(c.Storage.Redis.Addr)
		if err != nil {
			return fmt.Errorf("storage.redis.addr: %w", err)
		}
		c.Storage.Redis.Addr = addr
		if c.Storage.Redis.Addr == "" {
			return fmt.Errorf("storage.redis.addr is required for the redis backend")
		}
		password, err := expandEnvVars(c.Storage.Redis.Password)
		if err != nil {
			return fmt.Errorf("storage.redis.password: %w", err)
		}
		c.Storage.Redis.Password = password
	default:
		return fmt.Errorf("storage.backend must be sqlite or redis, got %q", c.Storage.Backend)
	}

	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log_level must be debug, info, warn, or error, got %q", c.LogLevel)
	}

	return nil
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns.
var envVarPattern = regexp.MustCompile(`\$\{([^}:]+)(:-([^}]*))?\}`)

// expandEnvVars replaces ${VAR} and ${VAR:-default} patterns with
// environment values. A reference without a default to an unset variable is
// an error.
func expandEnvVars(s string) (string, error) {
	var firstErr error

	result := envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		if firstErr != nil {
			return match
		}

		submatches := envVarPattern.FindStringSubmatch(match)
		if len(submatches) < 2 {
			return match
		}

		varName := submatches[1]
		hasDefault := len(submatches) > 2 && submatches[2] != ""
		defaultVal := ""
		if hasDefault && len(submatches) > 3 {
			defaultVal = submatches[3]
		}

		value, exists := os.LookupEnv(varName)
		if !exists {
			if hasDefault {
				return defaultVal
			}
			firstErr = fmt.Errorf("environment variable %q is not set", varName)
			return match
		}
		return value
	})

	if firstErr != nil {
		return "", firstErr
	}
	return result, nil
}
