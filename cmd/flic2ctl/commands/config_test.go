package commands

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
store: /tmp/buttons.db
random_address: false
hold_threshold: 2s
double_click_window: 300ms
connect_timeout: 1m
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Store != "/tmp/buttons.db" {
		t.Fatalf("store %q", cfg.Store)
	}
	if cfg.RandomAddress {
		t.Fatal("random_address not overridden")
	}
	if cfg.HoldThreshold.get() != 2*time.Second {
		t.Fatalf("hold threshold %s", cfg.HoldThreshold.get())
	}
	if cfg.DoubleClickWindow.get() != 300*time.Millisecond {
		t.Fatalf("double click window %s", cfg.DoubleClickWindow.get())
	}
	if cfg.ConnectTimeout.get() != time.Minute {
		t.Fatalf("connect timeout %s", cfg.ConnectTimeout.get())
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	missing := filepath.Join(t.TempDir(), "nope.yaml")

	cfg, err := LoadConfig(missing, false)
	if err != nil {
		t.Fatalf("implicit missing config must fall back to defaults: %v", err)
	}
	if cfg.Store != DefaultConfig().Store {
		t.Fatalf("store %q, want default", cfg.Store)
	}

	if _, err := LoadConfig(missing, true); err == nil {
		t.Fatal("explicit missing config must error")
	}
}

func TestLoadConfigBadDuration(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("hold_threshold: soon\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(path, true); err == nil {
		t.Fatal("expected a parse error")
	}
}

func TestLoadConfigPartial(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte("hold_threshold: 3s\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := LoadConfig(path, true)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.HoldThreshold.get() != 3*time.Second {
		t.Fatalf("hold threshold %s", cfg.HoldThreshold.get())
	}
	if cfg.Store != DefaultConfig().Store {
		t.Fatal("unset keys must keep their defaults")
	}
}
