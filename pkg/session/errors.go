package session

import "errors"

// Session layer errors.
var (
	// ErrMacVerification reports a single failed signature check. The
	// session stays usable until the consecutive-failure limit is
	// reached.
	ErrMacVerification = errors.New("session: packet signature verification failed")

	// ErrCounterDesync reports that consecutive signature failures
	// reached the configured limit. The session is closed; a fresh
	// handshake is required.
	ErrCounterDesync = errors.New("session: counters desynchronized, re-handshake required")

	// ErrCounterExhausted reports a wrapped transmit counter. Counters
	// never restart within a session.
	ErrCounterExhausted = errors.New("session: message counter exhausted")

	// ErrClosed reports use of a closed session.
	ErrClosed = errors.New("session: closed")
)
