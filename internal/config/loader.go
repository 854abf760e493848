// Package config loads the bridge configuration from a YAML file with
// environment variable overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"verisurebridge/internal/logger"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

// Defaults applied to empty fields
const (
	DefaultPollingIntervalSeconds = 240
	DefaultHeartbeatSeconds       = 10
	DefaultTimeoutSeconds         = 30
	DefaultAPIPort                = 8080
)

// ErrMissingCredentials is returned by Validate when username or password is empty
var ErrMissingCredentials = errors.New("username and password are required")

// Config represents the bridge configuration file
type Config struct {
	Verisure VerisureConfig `yaml:"verisure"`
	Bridge   BridgeConfig   `yaml:"bridge"`
	API      APIConfig      `yaml:"api"`
	Log      logger.Config  `yaml:"log"`
}

// VerisureConfig holds the account and endpoint settings
type VerisureConfig struct {
	Username               string `yaml:"username"`
	Password               string `yaml:"password"`
	PollingIntervalSeconds int    `yaml:"polling_interval_seconds"`
	BaseURL                string `yaml:"base_url"`
	TimeoutSeconds         int    `yaml:"timeout_seconds"`
}

// BridgeConfig holds host runtime settings
type BridgeConfig struct {
	HeartbeatSeconds int `yaml:"heartbeat_seconds"`
}

// APIConfig holds HTTP API settings
type APIConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// PollingInterval returns the configured polling interval
func (c *Config) PollingInterval() time.Duration {
	return time.Duration(c.Verisure.PollingIntervalSeconds) * time.Second
}

// HeartbeatInterval returns the configured heartbeat interval
func (c *Config) HeartbeatInterval() time.Duration {
	return time.Duration(c.Bridge.HeartbeatSeconds) * time.Second
}

// Timeout returns the HTTP timeout for Verisure requests
func (c *Config) Timeout() time.Duration {
	return time.Duration(c.Verisure.TimeoutSeconds) * time.Second
}

// Load reads the YAML file at path (skipped when path is empty), applies
// environment overrides and fills defaults. It does not validate.
func Load(path string, log *zap.Logger) (*Config, error) {
	cfg := &Config{
		API: APIConfig{Enabled: true},
	}

	if path != "" {
		log.Debug("Loading config file", zap.String("path", path))

		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return nil, err
	}
	cfg.applyDefaults()

	log.Info("Config loaded",
		zap.String("username", cfg.Verisure.Username),
		zap.Bool("password_set", cfg.Verisure.Password != ""),
		zap.Int("polling_interval_seconds", cfg.Verisure.PollingIntervalSeconds),
		zap.Int("heartbeat_seconds", cfg.Bridge.HeartbeatSeconds),
		zap.Bool("api_enabled", cfg.API.Enabled),
		zap.Int("api_port", cfg.API.Port))
	return cfg, nil
}

// applyEnv overrides file values with environment variables
func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("invalid %s: %w", key, err)
		}
		*dst = n
		return nil
	}

	str("VERISURE_USERNAME", &c.Verisure.Username)
	str("VERISURE_PASSWORD", &c.Verisure.Password)
	str("VERISURE_BASE_URL", &c.Verisure.BaseURL)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)

	if err := num("VERISURE_POLLING_INTERVAL", &c.Verisure.PollingIntervalSeconds); err != nil {
		return err
	}
	if err := num("VERISURE_TIMEOUT", &c.Verisure.TimeoutSeconds); err != nil {
		return err
	}
	if err := num("BRIDGE_HEARTBEAT_INTERVAL", &c.Bridge.HeartbeatSeconds); err != nil {
		return err
	}
	if err := num("BRIDGE_API_PORT", &c.API.Port); err != nil {
		return err
	}

	if v, ok := lookup("BRIDGE_API_ENABLED"); ok && v != "" {
		c.API.Enabled = v == "true"
	}
	return nil
}

// applyDefaults fills empty or non-positive fields
func (c *Config) applyDefaults() {
	if c.Verisure.PollingIntervalSeconds <= 0 {
		c.Verisure.PollingIntervalSeconds = DefaultPollingIntervalSeconds
	}
	if c.Verisure.TimeoutSeconds <= 0 {
		c.Verisure.TimeoutSeconds = DefaultTimeoutSeconds
	}
	if c.Bridge.HeartbeatSeconds <= 0 {
		c.Bridge.HeartbeatSeconds = DefaultHeartbeatSeconds
	}
	if c.API.Port <= 0 {
		c.API.Port = DefaultAPIPort
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// Validate checks the settings needed to talk to Verisure
func (c *Config) Validate() error {
	if c.Verisure.Username == "" || c.Verisure.Password == "" {
		return ErrMissingCredentials
	}
	if c.API.Port > 65535 {
		return fmt.Errorf("invalid api port %d", c.API.Port)
	}
	return nil
}
