package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/spf13/cobra"
)

func newSendCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "send <room_id> <text>...",
		Short: "Send one text message to a room and exit",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			cfg := *root.cfg
			cfg.Session.AutoReconnect = false

			s := newSession(&cfg, logging.FromContext(ctx))

			if err := s.Connect(ctx); err != nil {
				return err
			}
			defer s.Destroy(context.Background())

			roomID := args[0]
			if err := s.SendText(roomID, strings.Join(args[1:], " ")); err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", roomID)
			return nil
		},
	}
}
