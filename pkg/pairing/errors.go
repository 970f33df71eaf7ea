package pairing

import "errors"

// Pairing errors.
var (
	// ErrInvalidState is returned when a call is not valid in the
	// machine's current state.
	ErrInvalidState = errors.New("pairing: invalid state for operation")

	// ErrNotPairable is returned when the button is not in pairing
	// mode. The user must hold the button until the LED blinks rapidly.
	ErrNotPairable = errors.New("pairing: button not in pairing mode")

	// ErrIdentity is returned when the button's identity proof does
	// not verify against the manufacturer key.
	ErrIdentity = errors.New("pairing: button identity verification failed")

	// ErrVerifierMismatch is returned when the button rejects the key
	// confirmation verifier. The pairing cannot be recovered.
	ErrVerifierMismatch = errors.New("pairing: verifier rejected by button")

	// ErrNoPairing is returned when the button no longer holds the
	// pairing the client tried to resume. Stored credentials are dead
	// and a new Full Verify is required.
	ErrNoPairing = errors.New("pairing: no such pairing on button")

	// ErrRejected is returned for any other failure response from the
	// button.
	ErrRejected = errors.New("pairing: rejected by button")

	// ErrTmpIDMismatch is returned when a response correlates to a
	// different handshake attempt.
	ErrTmpIDMismatch = errors.New("pairing: response tmp id mismatch")
)

// IsCredentialFailure reports whether err means the stored credentials
// are invalid and a fresh Full Verify is needed, as opposed to a
// transient channel failure.
func IsCredentialFailure(err error) bool {
	return errors.Is(err, ErrNoPairing) || errors.Is(err, ErrVerifierMismatch)
}
