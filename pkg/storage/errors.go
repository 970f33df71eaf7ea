package storage

import "errors"

// Storage errors.
var (
	// ErrNotFound is returned when no credentials exist for an address.
	ErrNotFound = errors.New("storage: credentials not found")

	// ErrClosed is returned when the store has been closed.
	ErrClosed = errors.New("storage: closed")

	// ErrInvalidCredentials is returned when credentials are missing
	// required fields.
	ErrInvalidCredentials = errors.New("storage: invalid credentials")
)
