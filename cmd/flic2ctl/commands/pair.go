package commands

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/flic2"
	"github.com/bleasdale/flic2/pkg/pairing"
	"github.com/bleasdale/flic2/pkg/transport"
)

// pair <address>: run a fresh pairing and persist the credentials.
func pairCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pair <address>",
		Short: "Pair with a button and store its credentials",
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

			var battery uint8
			c, err := newClient(address, store, flic2.Config{
				OnBattery: func(level uint8) { battery = level },
			})
			if err != nil {
				return err
			}
			defer c.Close()

			ctx, cancel := connectContext(context.Background())
			defer cancel()
			if err := c.Connect(ctx); err != nil {
				return err
			}

			creds, err := c.FullVerify(ctx)
			if errors.Is(err, pairing.ErrNotPairable) {
				return fmt.Errorf("button refuses pairing; hold it down for 6 seconds and retry")
			}
			if err != nil {
				return err
			}

			fmt.Printf("paired %q (%s)\n", creds.Name, address)
			fmt.Printf("  serial    %s\n", creds.SerialNumber)
			fmt.Printf("  firmware  %d\n", creds.FirmwareVersion)
			fmt.Printf("  battery   %d%%\n", battery)
			return nil
		},
	}
}
