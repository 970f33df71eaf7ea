package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/curve25519"
)

// X25519 sizes.
const (
	// X25519KeySize is the size of X25519 private keys, public keys
	// and shared secrets.
	X25519KeySize = 32
)

// EphemeralKeyPair is an X25519 key pair generated fresh for a single
// Full Verify attempt. The private scalar must be zeroized when the
// handshake ends, on every exit path.
type EphemeralKeyPair struct {
	private [X25519KeySize]byte
	public  [X25519KeySize]byte
}

// GenerateKeyPair generates a new ephemeral X25519 key pair.
func GenerateKeyPair() (*EphemeralKeyPair, error) {
	kp := &EphemeralKeyPair{}
	if _, err := rand.Read(kp.private[:]); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrEntropyFailure, err)
	}

	pub, err := curve25519.X25519(kp.private[:], curve25519.Basepoint)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrKeyAgreement, err)
	}
	copy(kp.public[:], pub)
	return kp, nil
}

// Public returns the 32-byte public key.
func (kp *EphemeralKeyPair) Public() [X25519KeySize]byte {
	return kp.public
}

// SharedSecret computes the X25519 shared secret between the private
// key and the peer's public key.
func (kp *EphemeralKeyPair) SharedSecret(peerPublic []byte) ([X25519KeySize]byte, error) {
	var secret [X25519KeySize]byte
	if len(peerPublic) != X25519KeySize {
		return secret, ErrInvalidPublicKey
	}

	shared, err := curve25519.X25519(kp.private[:], peerPublic)
	if err != nil {
		return secret, fmt.Errorf("%w: %v", ErrKeyAgreement, err)
	}
	copy(secret[:], shared)
	return secret, nil
}

// Zeroize clears the private scalar. The key pair is unusable
// afterwards.
func (kp *EphemeralKeyPair) Zeroize() {
	for i := range kp.private {
		kp.private[i] = 0
	}
}

// Zeroize clears a byte slice in place. Used for shared secrets and
// session keys on session teardown.
func Zeroize(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
