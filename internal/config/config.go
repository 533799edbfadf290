package config

import (
	"net/url"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/session"
	"github.com/HMasataka/roomlink/pkg/transport/stomp"
)

// Config represents the application configuration
type Config struct {
	Session   SessionConfig   `json:"session" yaml:"session" toml:"session"`
	Transport TransportConfig `json:"transport" yaml:"transport" toml:"transport"`
	Logging   logging.Config  `json:"logging" yaml:"logging" toml:"logging"`
}

// SessionConfig represents session configuration
type SessionConfig struct {
	ServerURL            string   `json:"server_url" yaml:"server_url" toml:"server_url"`
	Token                string   `json:"token,omitempty" yaml:"token,omitempty" toml:"token,omitempty"`
	AutoReconnect        bool     `json:"auto_reconnect" yaml:"auto_reconnect" toml:"auto_reconnect"`
	ReconnectInterval    Duration `json:"reconnect_interval" yaml:"reconnect_interval" toml:"reconnect_interval"`
	MaxReconnectAttempts int      `json:"max_reconnect_attempts" yaml:"max_reconnect_attempts" toml:"max_reconnect_attempts"`
	HeartbeatInterval    Duration `json:"heartbeat_interval" yaml:"heartbeat_interval" toml:"heartbeat_interval"`
	CloseTimeout         Duration `json:"close_timeout" yaml:"close_timeout" toml:"close_timeout"`
}

// TransportConfig represents STOMP transport configuration
type TransportConfig struct {
	Host           string   `json:"host,omitempty" yaml:"host,omitempty" toml:"host,omitempty"`
	ConnectTimeout Duration `json:"connect_timeout" yaml:"connect_timeout" toml:"connect_timeout"`
	WriteTimeout   Duration `json:"write_timeout" yaml:"write_timeout" toml:"write_timeout"`
	ReadTimeout    Duration `json:"read_timeout" yaml:"read_timeout" toml:"read_timeout"`
	PingInterval   Duration `json:"ping_interval" yaml:"ping_interval" toml:"ping_interval"`
	MaxMessageSize int64    `json:"max_message_size" yaml:"max_message_size" toml:"max_message_size"`
}

// Default returns the default configuration
func Default() *Config {
	return &Config{
		Session: SessionConfig{
			ServerURL:            "ws://localhost:8080/ws",
			AutoReconnect:        true,
			ReconnectInterval:    Duration(5 * time.Second),
			MaxReconnectAttempts: 10,
			HeartbeatInterval:    Duration(30 * time.Second),
			CloseTimeout:         Duration(5 * time.Second),
		},
		Transport: TransportConfig{
			ConnectTimeout: Duration(10 * time.Second),
			WriteTimeout:   Duration(10 * time.Second),
			ReadTimeout:    Duration(60 * time.Second),
			PingInterval:   Duration(30 * time.Second),
			MaxMessageSize: 512 * 1024,
		},
		Logging: logging.Config{
			Level:  "info",
			Format: "text",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	u, err := url.Parse(c.Session.ServerURL)
	if err != nil || c.Session.ServerURL == "" {
		return NewConfigError("session.server_url", "invalid server URL")
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return NewConfigError("session.server_url", "scheme must be ws or wss")
	}

	if c.Session.AutoReconnect && c.Session.ReconnectInterval <= 0 {
		return NewConfigError("session.reconnect_interval", "interval must be positive when auto_reconnect is enabled")
	}

	if c.Session.MaxReconnectAttempts < 0 {
		return NewConfigError("session.max_reconnect_attempts", "attempts cannot be negative")
	}

	if c.Session.HeartbeatInterval < 0 {
		return NewConfigError("session.heartbeat_interval", "interval cannot be negative")
	}

	if c.Session.CloseTimeout < 0 {
		return NewConfigError("session.close_timeout", "timeout cannot be negative")
	}

	if c.Transport.ConnectTimeout < 0 {
		return NewConfigError("transport.connect_timeout", "timeout cannot be negative")
	}

	if c.Transport.WriteTimeout < 0 {
		return NewConfigError("transport.write_timeout", "timeout cannot be negative")
	}

	if c.Transport.ReadTimeout < 0 {
		return NewConfigError("transport.read_timeout", "timeout cannot be negative")
	}

	if c.Transport.PingInterval < 0 {
		return NewConfigError("transport.ping_interval", "interval cannot be negative")
	}

	if c.Transport.ReadTimeout > 0 && c.Transport.PingInterval >= c.Transport.ReadTimeout {
		return NewConfigError("transport.ping_interval", "ping interval must be shorter than read timeout")
	}

	if !logging.ValidLevel(c.Logging.Level) {
		return NewConfigError("logging.level", "unknown level")
	}

	if !logging.ValidFormat(c.Logging.Format) {
		return NewConfigError("logging.format", "unknown format")
	}

	return nil
}

// SessionOptions maps the configuration onto session options
func (c *Config) SessionOptions(logger *logging.Logger) session.Options {
	options := session.DefaultOptions()
	options.Logger = logger
	options.ServerURL = c.Session.ServerURL
	options.Token = c.Session.Token
	options.AutoReconnect = c.Session.AutoReconnect
	options.ReconnectInterval = c.Session.ReconnectInterval.Std()
	options.MaxReconnectAttempts = c.Session.MaxReconnectAttempts
	options.HeartbeatInterval = c.Session.HeartbeatInterval.Std()
	options.ConnectTimeout = c.Transport.ConnectTimeout.Std()
	options.CloseTimeout = c.Session.CloseTimeout.Std()
	return options
}

// TransportOptions maps the configuration onto STOMP transport options
func (c *Config) TransportOptions(logger *logging.Logger) stomp.Options {
	options := stomp.DefaultOptions()
	options.Logger = logger
	options.Host = c.Transport.Host
	options.ConnectTimeout = c.Transport.ConnectTimeout.Std()
	options.WriteTimeout = c.Transport.WriteTimeout.Std()
	options.ReadTimeout = c.Transport.ReadTimeout.Std()
	options.PingInterval = c.Transport.PingInterval.Std()
	if c.Transport.MaxMessageSize > 0 {
		options.MaxMessageSize = c.Transport.MaxMessageSize
	}
	return options
}
