// Package storage persists long-term pairing credentials so a button
// can be resumed with Quick Verify across restarts.
package storage

import (
	"time"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/transport"
)

// Credentials is everything needed to resume a pairing, plus the
// button metadata learned during Full Verify.
type Credentials struct {
	// Address identifies the button.
	Address transport.Address

	// PairingID and PairingKey are the long-term pairing secrets.
	PairingID  [crypto.PairingIDSize]byte
	PairingKey [crypto.PairingKeySize]byte

	// Button metadata from Full Verify.
	ButtonUUID      string
	Name            string
	SerialNumber    string
	FirmwareVersion uint32

	// LastBootID and LastEventCount track event history so queued
	// events are not replayed after reconnect.
	LastBootID     uint32
	LastEventCount uint32

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Valid reports whether the credentials carry the required secrets.
func (c *Credentials) Valid() bool {
	var zeroID [crypto.PairingIDSize]byte
	var zeroKey [crypto.PairingKeySize]byte
	return c != nil && c.PairingID != zeroID && c.PairingKey != zeroKey
}

// Store is a credential store keyed by button address.
type Store interface {
	// Load returns the credentials for an address, or ErrNotFound.
	Load(address transport.Address) (*Credentials, error)

	// Save inserts or replaces the credentials for their address.
	Save(credentials *Credentials) error

	// Delete removes the credentials for an address. Deleting an
	// unknown address is not an error.
	Delete(address transport.Address) error

	// List returns all stored credentials.
	List() ([]*Credentials, error)

	// Close releases the store.
	Close() error
}
