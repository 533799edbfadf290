package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment override
const EnvPrefix = "ROOMLINK_"

// LoadOptions represents options for loading configuration
type LoadOptions struct {
	Path string

	// LookupEnv defaults to os.LookupEnv
	LookupEnv func(key string) (string, bool)
}

// Load loads configuration from the defaults, an optional file and the
// environment, in that order
func Load(opts ...LoadOptions) (*Config, error) {
	cfg := Default()

	var options LoadOptions
	if len(opts) > 0 {
		options = opts[0]
	}
	if options.LookupEnv == nil {
		options.LookupEnv = os.LookupEnv
	}

	if options.Path != "" {
		if err := loadFromFile(cfg, options.Path); err != nil {
			return nil, err
		}
	}

	if err := loadFromEnv(cfg, options.LookupEnv); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFromFile loads configuration from a file
func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse JSON config: %w", err)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".toml":
		if err := toml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse TOML config: %w", err)
		}
	default:
		return fmt.Errorf("unsupported config file format: %s", ext)
	}

	return nil
}

// loadFromEnv applies ROOMLINK_* overrides
func loadFromEnv(cfg *Config, lookup func(string) (string, bool)) error {
	get := func(name string) (string, bool) {
		v, ok := lookup(EnvPrefix + name)
		return v, ok && v != ""
	}

	if v, ok := get("SERVER_URL"); ok {
		cfg.Session.ServerURL = v
	}
	if v, ok := get("TOKEN"); ok {
		cfg.Session.Token = v
	}
	if v, ok := get("AUTO_RECONNECT"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"AUTO_RECONNECT", "expected a boolean")
		}
		cfg.Session.AutoReconnect = b
	}
	if v, ok := get("RECONNECT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"RECONNECT_INTERVAL", "expected a duration")
		}
		cfg.Session.ReconnectInterval = Duration(d)
	}
	if v, ok := get("MAX_RECONNECT_ATTEMPTS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"MAX_RECONNECT_ATTEMPTS", "expected an integer")
		}
		cfg.Session.MaxReconnectAttempts = n
	}
	if v, ok := get("HEARTBEAT_INTERVAL"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return NewConfigError(EnvPrefix+"HEARTBEAT_INTERVAL", "expected a duration")
		}
		cfg.Session.HeartbeatInterval = Duration(d)
	}

	if v, ok := get("LOG_LEVEL"); ok {
		cfg.Logging.Level = v
	}
	if v, ok := get("LOG_FORMAT"); ok {
		cfg.Logging.Format = v
	}

	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

// NewConfigError creates a new configuration error
func NewConfigError(field, message string) *ConfigError {
	return &ConfigError{
		Field:   field,
		Message: message,
	}
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	return fmt.Sprintf("config error in field '%s': %s", e.Field, e.Message)
}
