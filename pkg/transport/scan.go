package transport

import (
	"context"
	"fmt"
	"sync"

	"tinygo.org/x/bluetooth"
)

// ScanResult describes one discovered button.
type ScanResult struct {
	// Address is the button's device address.
	Address Address

	// Name is the advertised local name, if any.
	Name string

	// RSSI is the received signal strength in dBm.
	RSSI int16
}

// Scan discovers buttons advertising the button service. Every match
// is handed to found; returning false stops the scan. Scan also stops
// when the context ends, returning the context error.
func Scan(ctx context.Context, adapter *bluetooth.Adapter, found func(ScanResult) bool) error {
	if adapter == nil {
		adapter = bluetooth.DefaultAdapter
	}
	if err := adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	var once sync.Once
	done := make(chan struct{})
	stop := func() {
		once.Do(func() {
			adapter.StopScan()
			close(done)
		})
	}

	go func() {
		select {
		case <-ctx.Done():
			stop()
		case <-done:
		}
	}()

	err := adapter.Scan(func(a *bluetooth.Adapter, result bluetooth.ScanResult) {
		if !result.HasServiceUUID(serviceUUID) {
			return
		}
		var addr Address
		copy(addr[:], result.Address.MAC[:])
		keep := found(ScanResult{
			Address: addr,
			Name:    result.LocalName(),
			RSSI:    result.RSSI,
		})
		if !keep {
			stop()
		}
	})
	stop()

	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	return err
}

// FindButton scans until a button with the given address is seen.
func FindButton(ctx context.Context, adapter *bluetooth.Adapter, address Address) (ScanResult, error) {
	var match ScanResult
	matched := false
	err := Scan(ctx, adapter, func(r ScanResult) bool {
		if r.Address != address {
			return true
		}
		match = r
		matched = true
		return false
	})
	if matched {
		return match, nil
	}
	if err != nil {
		return ScanResult{}, err
	}
	return ScanResult{}, ErrScanTimeout
}
