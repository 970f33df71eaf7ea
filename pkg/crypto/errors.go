package crypto

import "errors"

// Crypto primitive errors. All primitives fail closed: a malformed
// input is reported as a typed error, never as a partially derived
// value.
var (
	ErrInvalidKeySize    = errors.New("crypto: invalid key size")
	ErrInvalidBlockSize  = errors.New("crypto: block must be exactly 16 bytes")
	ErrInvalidPublicKey  = errors.New("crypto: invalid public key")
	ErrInvalidSignature  = errors.New("crypto: signature verification failed")
	ErrInvalidRandomSize = errors.New("crypto: random value too short")
	ErrKeyAgreement      = errors.New("crypto: X25519 key agreement failed")
	ErrEntropyFailure    = errors.New("crypto: system entropy source failed")
)
