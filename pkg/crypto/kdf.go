package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
)

// Derived value sizes.
const (
	// SecretSize is the size of the full verify secret.
	SecretSize = sha256.Size

	// SessionKeySize is the size of the Chaskey session key.
	SessionKeySize = 16

	// VerifierSize is the size of the key confirmation verifier.
	VerifierSize = 16

	// PairingIDSize is the size of the long-term pairing identifier.
	PairingIDSize = 5

	// PairingKeySize is the size of the long-term pairing key.
	PairingKeySize = 16

	// NonceSize is the size of the handshake random values.
	NonceSize = 8
)

// KDF context labels. Each derived value uses its own label so no two
// derivations can collide on identical input.
const (
	labelVerifier   = "AT"
	labelSessionKey = "SK"
	labelPairing    = "PK"
)

// DeriveFullVerifySecret computes the Full Verify master secret:
//
//	SHA256(sharedSecret || sigBits || buttonRandom || clientRandom || 0x00)
//
// Every session value of a full pairing (verifier, session key,
// pairing credentials) is derived from this secret under a distinct
// label.
func DeriveFullVerifySecret(sharedSecret [X25519KeySize]byte, sigBits byte, buttonRandom, clientRandom [NonceSize]byte) [SecretSize]byte {
	h := sha256.New()
	h.Write(sharedSecret[:])
	h.Write([]byte{sigBits})
	h.Write(buttonRandom[:])
	h.Write(clientRandom[:])
	h.Write([]byte{0x00})

	var secret [SecretSize]byte
	copy(secret[:], h.Sum(nil))
	return secret
}

// hmacDerive computes HMAC-SHA256(secret, label) truncated to n bytes.
func hmacDerive(secret []byte, label string, n int) []byte {
	mac := hmac.New(sha256.New, secret)
	mac.Write([]byte(label))
	return mac.Sum(nil)[:n]
}

// DeriveVerifier derives the 16-byte key confirmation value exchanged
// in FullVerifyRequest2. Matching verifiers prove both sides hold the
// same shared secret.
func DeriveVerifier(secret [SecretSize]byte) [VerifierSize]byte {
	var out [VerifierSize]byte
	copy(out[:], hmacDerive(secret[:], labelVerifier, VerifierSize))
	return out
}

// DeriveSessionKey derives the Chaskey session key for a freshly
// paired connection.
func DeriveSessionKey(secret [SecretSize]byte) [SessionKeySize]byte {
	var out [SessionKeySize]byte
	copy(out[:], hmacDerive(secret[:], labelSessionKey, SessionKeySize))
	return out
}

// DerivePairing derives the long-term pairing credentials issued at
// the end of Full Verify: the pairing ID (presented in later Quick
// Verify requests) and the pairing key (the symmetric secret that
// authenticates them).
func DerivePairing(secret [SecretSize]byte) (id [PairingIDSize]byte, key [PairingKeySize]byte) {
	data := hmacDerive(secret[:], labelPairing, PairingIDSize+PairingKeySize)
	copy(id[:], data[:PairingIDSize])
	copy(key[:], data[PairingIDSize:])
	return id, key
}

// DeriveQuickVerifyKey computes the Quick Verify session key by
// encrypting the nonce block
//
//	clientRandom[0:7] || 0x00 || buttonRandom[0:8]
//
// with Chaskey keyed by the stored pairing key. No asymmetric step is
// involved; the authentication strength of a reconnection rests
// entirely on the secrecy of the pairing key.
func DeriveQuickVerifyKey(pairingKey [PairingKeySize]byte, clientRandom, buttonRandom []byte) ([SessionKeySize]byte, error) {
	var key [SessionKeySize]byte
	if len(clientRandom) < 7 || len(buttonRandom) < 8 {
		return key, ErrInvalidRandomSize
	}

	c, err := NewChaskey(pairingKey[:])
	if err != nil {
		return key, err
	}

	var block [ChaskeyKeySize]byte
	copy(block[:7], clientRandom[:7])
	block[7] = 0x00
	copy(block[8:], buttonRandom[:8])

	ct, err := c.EncryptBlock(block[:])
	if err != nil {
		return key, err
	}
	copy(key[:], ct)
	return key, nil
}

// HMACEqual compares two MACs in constant time.
func HMACEqual(a, b []byte) bool {
	return hmac.Equal(a, b)
}
