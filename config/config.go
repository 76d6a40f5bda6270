package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Sandbox SandboxConfig `mapstructure:"sandbox"`
	Limits  LimitsConfig  `mapstructure:"limits"`
	Logging LoggingConfig `mapstructure:"logging"`
}

// ServerConfig holds MCP server configuration
type ServerConfig struct {
	Transport   string `mapstructure:"transport"`
	HTTPPort    int    `mapstructure:"http_port"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// SandboxConfig holds sandbox configuration
type SandboxConfig struct {
	Interpreter     string `mapstructure:"interpreter"`
	PolicyPath      string `mapstructure:"policy_path"`
	StagingDir      string `mapstructure:"staging_dir"`
	TimeBudgetSec   int    `mapstructure:"time_budget_sec"`
	TimeoutMarginMS int    `mapstructure:"timeout_margin_ms"`
	MaxCodeBytes    int    `mapstructure:"max_code_bytes"`
}

// LimitsConfig holds request throttling for the MCP server
type LimitsConfig struct {
	RequestsPerSec float64 `mapstructure:"requests_per_sec"`
	Burst          int     `mapstructure:"burst"`
	MaxConcurrent  int     `mapstructure:"max_concurrent"`
}

// LoggingConfig holds logger configuration
type LoggingConfig struct {
	Mode  string `mapstructure:"mode"`
	Level string `mapstructure:"level"`
}

// EnvPrefix is the prefix for environment overrides, e.g. LUABOX_SANDBOX_INTERPRETER.
const EnvPrefix = "LUABOX"

// New loads config.yaml from "." or "./config", falling back to defaults
// when no file is present.
func New() (*Config, error) {
	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
		// If config file not found, continue with defaults
	}

	return load(v)
}

// NewFromFile loads the configuration from an explicit file path.
func NewFromFile(path string) (*Config, error) {
	v := newViper()
	v.SetConfigFile(path)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("error reading config file %s: %w", path, err)
	}

	return load(v)
}

func newViper() *viper.Viper {
	v := viper.New()

	v.SetDefault("server.transport", "stdio")
	v.SetDefault("server.http_port", 8080)
	v.SetDefault("server.metrics_addr", "")

	v.SetDefault("sandbox.interpreter", "lua")
	v.SetDefault("sandbox.policy_path", "sandbox.lua")
	v.SetDefault("sandbox.staging_dir", "__cacheweb__")
	v.SetDefault("sandbox.time_budget_sec", 5)
	v.SetDefault("sandbox.timeout_margin_ms", 1000)
	v.SetDefault("sandbox.max_code_bytes", 1<<20)

	v.SetDefault("limits.requests_per_sec", 10)
	v.SetDefault("limits.burst", 20)
	v.SetDefault("limits.max_concurrent", 4)

	v.SetDefault("logging.mode", "production")
	v.SetDefault("logging.level", "info")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	return v
}

func load(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	if err := config.validate(); err != nil {
		return nil, fmt.Errorf("config validation error: %w", err)
	}

	return &config, nil
}

// validate ensures the configuration is valid
func (c *Config) validate() error {
	if c.Server.Transport != "stdio" && c.Server.Transport != "http" {
		return fmt.Errorf("invalid server.transport: %s, must be 'stdio' or 'http'", c.Server.Transport)
	}

	if c.Sandbox.Interpreter == "" {
		return fmt.Errorf("sandbox.interpreter must not be empty")
	}

	if c.Sandbox.StagingDir == "" {
		return fmt.Errorf("sandbox.staging_dir must not be empty")
	}

	if c.Sandbox.TimeBudgetSec <= 0 {
		return fmt.Errorf("sandbox.time_budget_sec must be positive, got: %d", c.Sandbox.TimeBudgetSec)
	}

	if c.Sandbox.TimeoutMarginMS <= 0 {
		return fmt.Errorf("sandbox.timeout_margin_ms must be positive, got: %d", c.Sandbox.TimeoutMarginMS)
	}

	if c.Sandbox.MaxCodeBytes < 0 {
		return fmt.Errorf("sandbox.max_code_bytes must not be negative, got: %d", c.Sandbox.MaxCodeBytes)
	}

	if c.Limits.RequestsPerSec <= 0 {
		return fmt.Errorf("limits.requests_per_sec must be positive, got: %v", c.Limits.RequestsPerSec)
	}

	if c.Limits.MaxConcurrent <= 0 {
		return fmt.Errorf("limits.max_concurrent must be positive, got: %d", c.Limits.MaxConcurrent)
	}

	if c.Logging.Mode != "production" && c.Logging.Mode != "development" {
		return fmt.Errorf("invalid logging.mode: %s, must be 'production' or 'development'", c.Logging.Mode)
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error", "dpanic", "panic", "fatal":
	default:
		return fmt.Errorf("invalid logging.level: %s", c.Logging.Level)
	}

	return nil
}

// GetTimeBudget returns the in-policy time budget as a duration
func (c *Config) GetTimeBudget() time.Duration {
	return time.Duration(c.Sandbox.TimeBudgetSec) * time.Second
}

// GetTimeoutMargin returns the grace added on top of the budget before the
// interpreter is killed
func (c *Config) GetTimeoutMargin() time.Duration {
	return time.Duration(c.Sandbox.TimeoutMarginMS) * time.Millisecond
}
