package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/transport"
)

// buttons: list stored pairings.
func buttonsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "buttons",
		Short: "List paired buttons",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			all, err := store.List()
			if err != nil {
				return err
			}
			if len(all) == 0 {
				fmt.Println("no paired buttons")
				return nil
			}
			for _, creds := range all {
				fmt.Printf("%s  %-24q serial %s firmware %d\n",
					creds.Address, creds.Name, creds.SerialNumber, creds.FirmwareVersion)
			}
			return nil
		},
	}
}

// forget <address>: drop a stored pairing.
func forgetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "forget <address>",
		Short: "Delete a button's stored credentials",
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

			if err := store.Delete(address); err != nil {
				return err
			}
			fmt.Printf("forgot %s\n", address)
			return nil
		},
	}
}
