// Package commands implements the flic2ctl CLI.
package commands

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/pion/logging"
	"github.com/spf13/cobra"

	"github.com/bleasdale/flic2/pkg/flic2"
	"github.com/bleasdale/flic2/pkg/pairing"
	"github.com/bleasdale/flic2/pkg/storage"
	"github.com/bleasdale/flic2/pkg/transport"
)

const defaultConfigPath = "~/.flic2/config.yaml"

var (
	configPath string
	storePath  string
	verbose    bool

	cfg           Config
	loggerFactory *logging.DefaultLoggerFactory
)

// Execute runs the root command.
func Execute() error {
	root := &cobra.Command{
		Use:           "flic2ctl",
		Short:         "Pair, monitor and manage Flic 2 buttons",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := LoadConfig(configPath, cmd.Flags().Changed("config"))
			if err != nil {
				return err
			}
			cfg = loaded
			if storePath != "" {
				cfg.Store = storePath
			}

			loggerFactory = logging.NewDefaultLoggerFactory()
			loggerFactory.DefaultLogLevel = logging.LogLevelWarn
			if verbose {
				loggerFactory.DefaultLogLevel = logging.LogLevelDebug
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&configPath, "config", defaultConfigPath, "config file")
	root.PersistentFlags().StringVar(&storePath, "store", "", "credentials database (overrides config)")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")

	root.AddCommand(scanCmd(), pairCmd(), listenCmd(), pingCmd(), buttonsCmd(), forgetCmd())
	return root.Execute()
}

// openStore opens the SQLite credentials database, creating its
// directory if needed.
func openStore() (storage.Store, error) {
	path := expandHome(cfg.Store)
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return nil, err
		}
	}
	return storage.OpenSQLite(path)
}

// newClient builds a client over a fresh BLE link to the button.
func newClient(address transport.Address, store storage.Store, config flic2.Config) (*flic2.Client, error) {
	config.Transport = transport.NewBLE(transport.BLEConfig{
		Address:         address,
		AddressIsRandom: cfg.RandomAddress,
		LoggerFactory:   loggerFactory,
	})
	config.Address = address
	config.Store = store
	config.HoldThreshold = cfg.HoldThreshold.get()
	config.DoubleClickWindow = cfg.DoubleClickWindow.get()
	config.LoggerFactory = loggerFactory
	return flic2.New(config)
}

// connectContext bounds connect plus handshake with the configured
// timeout.
func connectContext(parent context.Context) (context.Context, context.CancelFunc) {
	if cfg.ConnectTimeout.get() <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, cfg.ConnectTimeout.get())
}

// verify resumes the stored pairing, falling back to a fresh pairing
// when there is none or the button no longer recognizes it.
func verify(ctx context.Context, c *flic2.Client) error {
	err := c.QuickVerify(ctx)
	if err == nil {
		return nil
	}
	if errors.Is(err, flic2.ErrNoCredentials) || pairing.IsCredentialFailure(err) {
		_, err = c.FullVerify(ctx)
	}
	return err
}
