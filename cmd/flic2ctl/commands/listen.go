package commands

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/event"
	"github.com/bleasdale/flic2/pkg/flic2"
	"github.com/bleasdale/flic2/pkg/packet"
	"github.com/bleasdale/flic2/pkg/transport"
)

// listen <address>: print classified button events until interrupted.
func listenCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "listen <address>",
		Short: "Print button events as they happen",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			address, err := transport.ParseAddress(args[0])
			if err != nil {
				return err
			}
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := newClient(address, store, flic2.Config{
				OnEvent: func(e event.ButtonEvent) {
					stamp := time.Now().Format("15:04:05.000")
					if e.WasQueued {
						fmt.Printf("%s  %-12s (queued, %.1fs ago)\n", stamp, e.Kind, e.AgeSeconds)
						return
					}
					fmt.Printf("%s  %s\n", stamp, e.Kind)
				},
				OnDisconnect: func(reason packet.DisconnectReason) {
					fmt.Printf("button disconnected: %s\n", reason)
					stop()
				},
				OnBattery: func(level uint8) {
					fmt.Printf("battery: %d%%\n", level)
				},
			})
			if err != nil {
				return err
			}
			defer c.Close()

			connectCtx, cancel := connectContext(ctx)
			defer cancel()
			if err := c.Connect(connectCtx); err != nil {
				return err
			}
			if err := verify(connectCtx, c); err != nil {
				return err
			}
			if err := c.InitEvents(connectCtx); err != nil {
				return err
			}

			fmt.Printf("listening to %q, press Ctrl-C to stop\n", c.Credentials().Name)
			<-ctx.Done()
			return nil
		},
	}
}
