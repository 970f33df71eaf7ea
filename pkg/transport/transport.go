// Package transport carries protocol packets between the host and a
// button. The real implementation runs over a BLE GATT link; an
// in-memory pipe serves tests.
package transport

import "context"

// DefaultWriteSize is the usable write payload on an unnegotiated BLE
// link (ATT MTU 23 minus the 3-byte ATT header).
const DefaultWriteSize = 20

// Transport is a packet-oriented link to one button.
//
// Writes and notifications carry raw link-layer chunks. Fragmentation
// and reassembly of protocol packets happen above this interface; a
// Transport only promises that each Send arrives as one notification
// on the peer, in order.
type Transport interface {
	// Connect establishes the link. It must be called before Send.
	Connect(ctx context.Context) error

	// Send writes one chunk to the button. The chunk must not exceed
	// WriteSize.
	Send(ctx context.Context, data []byte) error

	// Notifications returns the channel of inbound chunks. The channel
	// is closed when the link goes down.
	Notifications() <-chan []byte

	// WriteSize is the largest chunk Send accepts. Valid after Connect.
	WriteSize() int

	// Close tears down the link. Safe to call more than once.
	Close() error
}
