package crypto

import (
	"crypto/ed25519"
	"encoding/hex"
)

// defaultButtonPublicKeyHex is the manufacturer's long-term Ed25519
// public key. Every Flic 2 button carries an identity certificate
// signed by this key.
const defaultButtonPublicKeyHex = "d33f2440dd54b31b2e1dcf40132efa41d8f8a7474168df4008f5a95fb3b0d022"

// DefaultButtonPublicKey returns the manufacturer Ed25519 public key
// used to verify button identity proofs during Full Verify. Callers
// construct their pairing machinery with this value; tests substitute
// their own key.
func DefaultButtonPublicKey() ed25519.PublicKey {
	key, err := hex.DecodeString(defaultButtonPublicKeyHex)
	if err != nil {
		// The constant is well formed; this cannot happen at runtime.
		panic("crypto: malformed built-in public key")
	}
	return ed25519.PublicKey(key)
}

// ButtonAddressSize is the size of the Bluetooth device address
// covered by the identity signature.
const ButtonAddressSize = 6

// IdentitySignatureSize is the size of the Ed25519 identity proof.
const IdentitySignatureSize = ed25519.SignatureSize

// VerifyButtonIdentity verifies the button's signed identity proof
// from FullVerifyResponse1.
//
// The signature covers address(6) || addressType(1) || ecdhPublic(32).
// The button firmware stores two protocol bits in the low bits of
// signature byte 32 (the first byte of the Ed25519 scalar s), so the
// raw signature as received generally does not verify. All four bit
// combinations are tried; the one that verifies is returned as
// sigBits and feeds the key derivation.
//
// Fails closed: any malformed input or failed verification returns
// ErrInvalidSignature.
func VerifyButtonIdentity(publicKey ed25519.PublicKey, signature, address []byte, addressType byte, ecdhPublic []byte) (sigBits byte, err error) {
	if len(publicKey) != ed25519.PublicKeySize {
		return 0, ErrInvalidPublicKey
	}
	if len(signature) != IdentitySignatureSize ||
		len(address) != ButtonAddressSize ||
		len(ecdhPublic) != X25519KeySize {
		return 0, ErrInvalidSignature
	}

	message := make([]byte, 0, ButtonAddressSize+1+X25519KeySize)
	message = append(message, address...)
	message = append(message, addressType)
	message = append(message, ecdhPublic...)

	trial := make([]byte, IdentitySignatureSize)
	copy(trial, signature)

	for bitsValue := byte(0); bitsValue < 4; bitsValue++ {
		trial[32] = signature[32]&0xFC | bitsValue
		if ed25519.Verify(publicKey, message, trial) {
			return bitsValue, nil
		}
	}
	return 0, ErrInvalidSignature
}
