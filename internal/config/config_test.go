package config

import (
	stderrors "errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noEnv(string) (string, bool) { return "", false }

func envOf(values map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := values[key]
		return v, ok
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "ws://localhost:8080/ws", cfg.Session.ServerURL)
	assert.True(t, cfg.Session.AutoReconnect)
	assert.Equal(t, 5*time.Second, cfg.Session.ReconnectInterval.Std())
	assert.Equal(t, 10, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, 30*time.Second, cfg.Session.HeartbeatInterval.Std())
}

func TestLoadFileFormats(t *testing.T) {
	tests := []struct {
		name    string
		file    string
		content string
	}{
		{
			name: "json",
			file: "roomlink.json",
			content: `{
				"session": {"server_url": "wss://chat.example.com/ws", "token": "abc", "auto_reconnect": false, "reconnect_interval": "2s", "max_reconnect_attempts": 3, "heartbeat_interval": "15s"},
				"logging": {"level": "debug", "format": "json"}
			}`,
		},
		{
			name: "yaml",
			file: "roomlink.yaml",
			content: `
session:
  server_url: wss://chat.example.com/ws
  token: abc
  auto_reconnect: false
  reconnect_interval: 2s
  max_reconnect_attempts: 3
  heartbeat_interval: 15s
logging:
  level: debug
  format: json
`,
		},
		{
			name: "toml",
			file: "roomlink.toml",
			content: `
[session]
server_url = "wss://chat.example.com/ws"
token = "abc"
auto_reconnect = false
reconnect_interval = "2s"
max_reconnect_attempts = 3
heartbeat_interval = "15s"

[logging]
level = "debug"
format = "json"
`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeFile(t, tt.file, tt.content)

			cfg, err := Load(LoadOptions{Path: path, LookupEnv: noEnv})
			require.NoError(t, err)

			assert.Equal(t, "wss://chat.example.com/ws", cfg.Session.ServerURL)
			assert.Equal(t, "abc", cfg.Session.Token)
			assert.False(t, cfg.Session.AutoReconnect)
			assert.Equal(t, 2*time.Second, cfg.Session.ReconnectInterval.Std())
			assert.Equal(t, 3, cfg.Session.MaxReconnectAttempts)
			assert.Equal(t, 15*time.Second, cfg.Session.HeartbeatInterval.Std())
			assert.Equal(t, "debug", cfg.Logging.Level)

			// untouched sections keep their defaults
			assert.Equal(t, 10*time.Second, cfg.Transport.ConnectTimeout.Std())
		})
	}
}

func TestLoadUnsupportedFormat(t *testing.T) {
	path := writeFile(t, "roomlink.ini", "x=1")

	_, err := Load(LoadOptions{Path: path, LookupEnv: noEnv})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported config file format")
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(LoadOptions{Path: filepath.Join(t.TempDir(), "absent.yaml"), LookupEnv: noEnv})
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestEnvOverridesFile(t *testing.T) {
	path := writeFile(t, "roomlink.yaml", "session:\n  token: from-file\n")

	cfg, err := Load(LoadOptions{
		Path: path,
		LookupEnv: envOf(map[string]string{
			"ROOMLINK_SERVER_URL":             "ws://10.0.0.1:9000/ws",
			"ROOMLINK_TOKEN":                  "from-env",
			"ROOMLINK_AUTO_RECONNECT":         "false",
			"ROOMLINK_RECONNECT_INTERVAL":     "250ms",
			"ROOMLINK_MAX_RECONNECT_ATTEMPTS": "4",
			"ROOMLINK_HEARTBEAT_INTERVAL":     "1m",
			"ROOMLINK_LOG_LEVEL":              "warn",
			"ROOMLINK_LOG_FORMAT":             "pretty",
		}),
	})
	require.NoError(t, err)

	assert.Equal(t, "ws://10.0.0.1:9000/ws", cfg.Session.ServerURL)
	assert.Equal(t, "from-env", cfg.Session.Token)
	assert.False(t, cfg.Session.AutoReconnect)
	assert.Equal(t, 250*time.Millisecond, cfg.Session.ReconnectInterval.Std())
	assert.Equal(t, 4, cfg.Session.MaxReconnectAttempts)
	assert.Equal(t, time.Minute, cfg.Session.HeartbeatInterval.Std())
	assert.Equal(t, logging.Config{Level: "warn", Format: "pretty"}, cfg.Logging)
}

func TestEnvRejectsMalformedValues(t *testing.T) {
	_, err := Load(LoadOptions{LookupEnv: envOf(map[string]string{
		"ROOMLINK_MAX_RECONNECT_ATTEMPTS": "many",
	})})

	var cfgErr *ConfigError
	require.True(t, stderrors.As(err, &cfgErr))
	assert.Equal(t, "ROOMLINK_MAX_RECONNECT_ATTEMPTS", cfgErr.Field)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		field  string
	}{
		{"http scheme", func(c *Config) { c.Session.ServerURL = "http://localhost/ws" }, "session.server_url"},
		{"empty url", func(c *Config) { c.Session.ServerURL = "" }, "session.server_url"},
		{"zero interval", func(c *Config) { c.Session.ReconnectInterval = 0 }, "session.reconnect_interval"},
		{"negative attempts", func(c *Config) { c.Session.MaxReconnectAttempts = -1 }, "session.max_reconnect_attempts"},
		{"negative heartbeat", func(c *Config) { c.Session.HeartbeatInterval = Duration(-time.Second) }, "session.heartbeat_interval"},
		{"ping after read timeout", func(c *Config) { c.Transport.PingInterval = Duration(2 * time.Minute) }, "transport.ping_interval"},
		{"bad level", func(c *Config) { c.Logging.Level = "loud" }, "logging.level"},
		{"bad format", func(c *Config) { c.Logging.Format = "xml" }, "logging.format"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			var cfgErr *ConfigError
			require.True(t, stderrors.As(err, &cfgErr), "got %v", err)
			assert.Equal(t, tt.field, cfgErr.Field)
		})
	}
}

func TestZeroIntervalAllowedWithoutAutoReconnect(t *testing.T) {
	cfg := Default()
	cfg.Session.AutoReconnect = false
	cfg.Session.ReconnectInterval = 0

	assert.NoError(t, cfg.Validate())
}

func TestOptionMapping(t *testing.T) {
	cfg := Default()
	cfg.Session.Token = "t"
	cfg.Transport.Host = "chat.example.com"
	logger := logging.Discard()

	so := cfg.SessionOptions(logger)
	assert.Equal(t, "t", so.Token)
	assert.Equal(t, 5*time.Second, so.ReconnectInterval)
	assert.Equal(t, 10*time.Second, so.ConnectTimeout)
	assert.Same(t, logger, so.Logger)

	to := cfg.TransportOptions(logger)
	assert.Equal(t, "chat.example.com", to.Host)
	assert.Equal(t, 30*time.Second, to.PingInterval)
	assert.Equal(t, int64(512*1024), to.MaxMessageSize)
}

func TestDurationText(t *testing.T) {
	var d Duration
	require.NoError(t, d.UnmarshalText([]byte("1m30s")))
	assert.Equal(t, 90*time.Second, d.Std())

	text, err := d.MarshalText()
	require.NoError(t, err)
	assert.Equal(t, "1m30s", string(text))

	assert.Error(t, d.UnmarshalText([]byte("soon")))
}
