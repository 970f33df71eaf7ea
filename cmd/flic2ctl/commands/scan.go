package commands

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/transport"
)

// scan: discover advertising buttons.
func scanCmd() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "scan",
		Short: "Discover nearby buttons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			fmt.Println("scanning, press Ctrl-C to stop")
			seen := make(map[transport.Address]bool)
			err := transport.Scan(ctx, nil, func(r transport.ScanResult) bool {
				if seen[r.Address] {
					return true
				}
				seen[r.Address] = true
				fmt.Printf("%s  rssi %4d  %s\n", r.Address, r.RSSI, r.Name)
				return true
			})
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "stop scanning after this long")
	return cmd
}
