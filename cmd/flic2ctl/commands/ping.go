package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/flic2"
	"github.com/bleasdale/flic2/pkg/transport"
)

// ping <address>: round-trip over the signed channel.
func pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping <address>",
		Short: "Check a paired button end to end",
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

			c, err := newClient(address, store, flic2.Config{})
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := connectContext(context.Background())
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				return err
			}
			if err := c.QuickVerify(ctx); err != nil {
				if errors.Is(err, flic2.ErrNoCredentials) {
					return fmt.Errorf("not paired with %s, run flic2ctl pair first", address)
				}
				return err
			}

			start := time.Now()
			if err := c.Ping(ctx); err != nil {
				return err
			}
			fmt.Printf("pong from %s in %s\n", address, time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}
