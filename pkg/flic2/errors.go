package flic2

import "errors"

// Client errors.
var (
	// ErrClosed is returned when the client has been closed.
	ErrClosed = errors.New("flic2: client closed")

	// ErrNotConnected is returned when an operation needs a connected
	// transport.
	ErrNotConnected = errors.New("flic2: not connected")

	// ErrNoSession is returned when an operation needs an established
	// session.
	ErrNoSession = errors.New("flic2: no session, verify first")

	// ErrHandshakeActive is returned when a handshake is already in
	// flight.
	ErrHandshakeActive = errors.New("flic2: handshake already in progress")

	// ErrNoCredentials is returned when Quick Verify has no stored
	// credentials to resume.
	ErrNoCredentials = errors.New("flic2: no stored credentials for button")

	// ErrDisconnected is returned when the button ends the link during
	// an operation.
	ErrDisconnected = errors.New("flic2: button disconnected")
)
