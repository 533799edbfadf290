package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/signal"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/HMasataka/roomlink/internal/logging"
	"github.com/HMasataka/roomlink/pkg/events"
	"github.com/HMasataka/roomlink/pkg/session"
	"github.com/spf13/cobra"
)

func newChatCommand(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "chat [room_id]",
		Short: "Join a room and chat interactively",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger := logging.FromContext(cmd.Context())

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			s := newSession(root.cfg, logger)
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = s.Destroy(closeCtx)
			}()

			out := cmd.OutOrStdout()
			r := &repl{client: s, out: out}

			var printMu sync.Mutex
			printEvent := func(event *events.Event) {
				printMu.Lock()
				defer printMu.Unlock()
				fmt.Fprintln(out, render(event))
			}
			for _, kind := range events.Kinds() {
				s.On(kind, printEvent)
			}

			// subscriptions do not survive a reconnect
			var connectedBefore atomic.Bool
			s.On(events.KindConnected, func(*events.Event) {
				if connectedBefore.Swap(true) {
					resubscribe(s, r.currentRoom())
				}
			})

			if err := s.Connect(ctx); err != nil {
				return err
			}
			resubscribe(s, "")

			if len(args) == 1 {
				if err := r.execute(input{name: "join", args: args}); err != nil {
					return err
				}
			}

			return loop(ctx, cmd.InOrStdin(), out, r)
		},
	}
}

// resubscribe restores the private queue and the current room
func resubscribe(s *session.Session, room string) {
	_ = s.SubscribeToUserQueue()
	if room != "" {
		_ = s.SubscribeToRoom(room)
	}
}

// loop feeds stdin lines to the REPL until /quit, EOF or ctx ends
func loop(ctx context.Context, in io.Reader, out io.Writer, r *repl) error {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}

			parsed, err := parseInput(line)
			if err == nil {
				err = r.execute(parsed)
			}
			if errors.Is(err, errQuit) {
				return nil
			}
			if err != nil {
				fmt.Fprintln(out, err)
			}
		}
	}
}
