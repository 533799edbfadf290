package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/internal/testbroker"
	"github.com/spf13/cobra"
)

func newBrokerCommand() *cobra.Command {
	var listen string

	cmd := &cobra.Command{
		Use:   "broker",
		Short: "Run an in-memory chat broker for local development",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			broker := testbroker.New(testbroker.WithLogger(logger))
			server := &http.Server{
				Addr:              listen,
				Handler:           broker,
				ReadHeaderTimeout: 10 * time.Second,
			}

			errCh := make(chan error, 1)
			go func() {
				logger.Info("broker listening", "addr", listen)
				errCh <- server.ListenAndServe()
			}()

			select {
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			logger.Info("broker shutting down", "sessions", broker.Sessions())
			err := server.Shutdown(shutdownCtx)
			// hijacked websocket connections are not tracked by the server
			broker.DropAll()
			return err
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8080", "address to listen on")

	return cmd
}
