package transport

import "errors"

// Transport errors.
var (
	// ErrClosed is returned when an operation is attempted on a closed transport.
	ErrClosed = errors.New("transport: closed")

	// ErrNotConnected is returned when an operation requires an established link.
	ErrNotConnected = errors.New("transport: not connected")

	// ErrAlreadyConnected is returned when Connect is called on a live link.
	ErrAlreadyConnected = errors.New("transport: already connected")

	// ErrInvalidAddress is returned when a device address cannot be parsed.
	ErrInvalidAddress = errors.New("transport: invalid address")

	// ErrServiceNotFound is returned when the device does not expose the
	// button GATT service.
	ErrServiceNotFound = errors.New("transport: button service not found")

	// ErrCharacteristicNotFound is returned when a required GATT
	// characteristic is missing.
	ErrCharacteristicNotFound = errors.New("transport: characteristic not found")

	// ErrScanTimeout is returned when a scan ends without a match.
	ErrScanTimeout = errors.New("transport: scan timeout")

	// ErrWriteTooLarge is returned when a write exceeds the link's write size.
	ErrWriteTooLarge = errors.New("transport: write exceeds link write size")
)
