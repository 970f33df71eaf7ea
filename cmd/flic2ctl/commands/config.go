package commands

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration parses YAML durations in time.ParseDuration notation
// ("500ms", "1.5s").
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) get() time.Duration { return time.Duration(d) }

// Config is the flic2ctl configuration file.
type Config struct {
	// Store is the path of the SQLite credentials database.
	Store string `yaml:"store"`

	// RandomAddress marks button addresses as static random BLE
	// addresses.
	RandomAddress bool `yaml:"random_address"`

	// HoldThreshold is the press duration that turns a click into a
	// hold.
	HoldThreshold Duration `yaml:"hold_threshold"`

	// DoubleClickWindow is the wait for a second click before a click
	// resolves as a single click.
	DoubleClickWindow Duration `yaml:"double_click_window"`

	// ConnectTimeout bounds connect plus handshake.
	ConnectTimeout Duration `yaml:"connect_timeout"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() Config {
	return Config{
		Store:          "~/.flic2/buttons.db",
		RandomAddress:  true,
		ConnectTimeout: Duration(30 * time.Second),
	}
}

// LoadConfig reads a YAML config file on top of the defaults. A
// missing file is an error only when the path was given explicitly.
func LoadConfig(path string, explicit bool) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(expandHome(path))
	if os.IsNotExist(err) && !explicit {
		return cfg, nil
	}
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse %s: %w", path, err)
	}
	return cfg, nil
}

// expandHome resolves a leading ~/ against the user's home directory.
func expandHome(path string) string {
	if len(path) < 2 || path[:2] != "~/" {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}
