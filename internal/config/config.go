// Package config loads the service configuration from YAML with environment
// overrides.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/adpilot/engine/internal/domain"
)

// BudgetConfig holds the guardrail limits, in minor currency units.
type BudgetConfig struct {
	MinDailyCents        int64 `yaml:"min_daily_cents"`
	DefaultMaxDailyCents int64 `yaml:"default_max_daily_cents"`
}

// PlatformConfig configures the advertising platform client.
type PlatformConfig struct {
	BaseURL     string `yaml:"base_url"`
	AccessToken string `yaml:"access_token"`
	Timeout     string `yaml:"timeout"`
	MaxRetries  int    `yaml:"max_retries"`
	RetryBase   string `yaml:"retry_base"`
}

// Config holds the service's runtime configuration.
type Config struct {
	ListenAddr     string         `yaml:"listen_addr"`
	DBPath         string         `yaml:"db_path"`
	LogLevel       string         `yaml:"log_level"`
	LogFormat      string         `yaml:"log_format"`
	RequestTimeout string         `yaml:"request_timeout"`
	Budget         BudgetConfig   `yaml:"budget"`
	Platform       PlatformConfig `yaml:"platform"`
}

// Load reads a YAML config file, applies environment overrides and
// defaults, and validates. An empty path skips the file.
func Load(path string) (*Config, error) {
	var cfg Config
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parse config YAML: %w", err)
		}
	}

	cfg.applyEnvOverrides()
	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ADPILOT_DB_PATH"); v != "" {
		c.DBPath = v
	}
	if v := os.Getenv("ADPILOT_LISTEN_ADDR"); v != "" {
		c.ListenAddr = v
	}
	if v := os.Getenv("ADPILOT_LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("META_ACCESS_TOKEN"); v != "" {
		c.Platform.AccessToken = v
	}
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "adpilot.db"
	}
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "json"
	}
	if c.RequestTimeout == "" {
		c.RequestTimeout = "30s"
	}
	if c.Budget.MinDailyCents == 0 {
		c.Budget.MinDailyCents = 500
	}
	if c.Budget.DefaultMaxDailyCents == 0 {
		c.Budget.DefaultMaxDailyCents = 50000
	}
	if c.Platform.BaseURL == "" {
		c.Platform.BaseURL = "https://graph.facebook.com/v19.0"
	}
	if c.Platform.Timeout == "" {
		c.Platform.Timeout = "15s"
	}
	if c.Platform.MaxRetries == 0 {
		c.Platform.MaxRetries = 3
	}
	if c.Platform.RetryBase == "" {
		c.Platform.RetryBase = "200ms"
	}
}

func (c *Config) validate() error {
	var problems []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, "log_level must be debug, info, warn or error")
	}
	if c.LogFormat != "json" && c.LogFormat != "console" {
		problems = append(problems, "log_format must be json or console")
	}
	for name, v := range map[string]string{
		"request_timeout":     c.RequestTimeout,
		"platform.timeout":    c.Platform.Timeout,
		"platform.retry_base": c.Platform.RetryBase,
	} {
		if d, err := time.ParseDuration(v); err != nil || d <= 0 {
			problems = append(problems, name+" must be a positive duration")
		}
	}
	if c.Budget.MinDailyCents < 0 {
		problems = append(problems, "budget.min_daily_cents must not be negative")
	}
	if c.Budget.DefaultMaxDailyCents < c.Budget.MinDailyCents {
		problems = append(problems, "budget.default_max_daily_cents must be at least budget.min_daily_cents")
	}
	if c.Platform.MaxRetries < 0 {
		problems = append(problems, "platform.max_retries must not be negative")
	}

	if len(problems) > 0 {
		return &domain.EngineError{
			Code:    domain.ErrConfigInvalid.Code,
			Message: fmt.Sprintf("%s: %v", domain.ErrConfigInvalid.Message, problems),
		}
	}
	return nil
}

// RequestTimeoutDuration returns the per-request deadline.
func (c *Config) RequestTimeoutDuration() time.Duration {
	return mustDuration(c.RequestTimeout, 30*time.Second)
}

// PlatformTimeout returns the HTTP timeout for platform calls.
func (c *Config) PlatformTimeout() time.Duration {
	return mustDuration(c.Platform.Timeout, 15*time.Second)
}

// PlatformRetryBase returns the first backoff step for platform retries.
func (c *Config) PlatformRetryBase() time.Duration {
	return mustDuration(c.Platform.RetryBase, 200*time.Millisecond)
}

func mustDuration(s string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}
