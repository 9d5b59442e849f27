package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/Zereker/framed"
)

type sendFlags struct {
	addr    string
	timeout time.Duration
	noWait  bool
}

func sendCmd(global *globalFlags) *cobra.Command {
	var flags sendFlags

	cmd := &cobra.Command{
		Use:   "send MESSAGE...",
		Short: "Send messages and print the replies",
		Long: `Connect to a server, send each argument as one message and print one
reply per message (the serve command echoes them back).`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, err := newLogger(global)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), flags.timeout)
			defer cancel()

			return runSend(ctx, flags, logger, args, cmd.OutOrStdout())
		},
	}

	cmd.Flags().StringVarP(&flags.addr, "addr", "a", "127.0.0.1:12345", "server address")
	cmd.Flags().DurationVarP(&flags.timeout, "timeout", "t", 5*time.Second, "give up after this long")
	cmd.Flags().BoolVar(&flags.noWait, "no-wait", false, "do not wait for replies")

	return cmd
}

func runSend(ctx context.Context, flags sendFlags, logger framed.Logger, messages []string, out io.Writer) error {
	client := framed.NewClient(flags.addr, framed.LoggerOption(logger))
	if err := client.Connect(ctx); err != nil {
		return err
	}
	defer func() {
		client.Disconnect()
		_ = client.Wait(context.Background())
	}()

	for _, msg := range messages {
		if err := client.Send([]byte(msg)); err != nil {
			return errors.Wrap(err, "send")
		}
	}

	if flags.noWait {
		return waitDrained(ctx, client)
	}

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for received := 0; received < len(messages); {
		if reply, ok := client.TakeMessage(); ok {
			fmt.Fprintln(out, string(reply))
			received++
			continue
		}

		if client.State() != framed.StateConnected {
			return errors.Errorf("connection %s after %d of %d replies", client.State(), received, len(messages))
		}

		select {
		case <-ctx.Done():
			return errors.Wrapf(ctx.Err(), "waiting for replies (%d of %d)", received, len(messages))
		case <-ticker.C:
		}
	}
	return nil
}

// waitDrained returns once every queued byte has reached the socket.
func waitDrained(ctx context.Context, client *framed.Client) error {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for client.Pending() > 0 {
		select {
		case <-ctx.Done():
			return errors.Wrap(ctx.Err(), "flushing")
		case <-ticker.C:
		}
	}
	return nil
}
