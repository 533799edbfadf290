package main

import (
	"github.com/HMasataka/roomlink/internal/config"
	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/session"
	"github.com/HMasataka/roomlink/pkg/transport/stomp"
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
	serverURL  string
	token      string
	logLevel   string
	logFormat  string

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	cmd := &cobra.Command{
		Use:          "roomlink",
		Short:        "Chat room client over STOMP websockets",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}
			opts.cfg = cfg
			cmd.SetContext(logging.WithLogger(cmd.Context(), logging.New(cfg.Logging)))
			return nil
		},
	}

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (.json, .yaml, .yml or .toml)")
	flags.StringVar(&opts.serverURL, "server", "", "websocket URL of the chat server")
	flags.StringVar(&opts.token, "token", "", "authentication token")
	flags.StringVar(&opts.logLevel, "log-level", "", "log level (debug, info, warn, error)")
	flags.StringVar(&opts.logFormat, "log-format", "", "log format (text, json, pretty)")

	cmd.AddCommand(
		newChatCommand(opts),
		newSendCommand(opts),
		newBrokerCommand(),
	)

	return cmd
}

// load resolves configuration from the file, the environment and flags
func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(config.LoadOptions{Path: o.configPath})
	if err != nil {
		return nil, err
	}

	if o.serverURL != "" {
		cfg.Session.ServerURL = o.serverURL
	}
	if o.token != "" {
		cfg.Session.Token = o.token
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Logging.Format = o.logFormat
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newSession(cfg *config.Config, logger *logging.Logger) *session.Session {
	transport := stomp.NewTransportWithOptions(cfg.TransportOptions(logger))
	return session.New(transport, cfg.SessionOptions(logger))
}
