package crypto

import (
	"testing"
)

func testSecretInputs() ([X25519KeySize]byte, [NonceSize]byte, [NonceSize]byte) {
	var shared [X25519KeySize]byte
	var buttonRandom, clientRandom [NonceSize]byte
	for i := range shared {
		shared[i] = byte(i)
	}
	for i := range buttonRandom {
		buttonRandom[i] = byte(0xb0 + i)
		clientRandom[i] = byte(0xc0 + i)
	}
	return shared, buttonRandom, clientRandom
}

func TestDeriveFullVerifySecretSensitivity(t *testing.T) {
	shared, buttonRandom, clientRandom := testSecretInputs()
	base := DeriveFullVerifySecret(shared, 2, buttonRandom, clientRandom)

	if got := DeriveFullVerifySecret(shared, 2, buttonRandom, clientRandom); got != base {
		t.Fatal("secret not deterministic")
	}

	mutShared := shared
	mutShared[31] ^= 0x01
	if DeriveFullVerifySecret(mutShared, 2, buttonRandom, clientRandom) == base {
		t.Error("secret unchanged after shared secret mutation")
	}
	if DeriveFullVerifySecret(shared, 3, buttonRandom, clientRandom) == base {
		t.Error("secret unchanged after sigBits mutation")
	}
	for i := 0; i < NonceSize; i++ {
		mb := buttonRandom
		mb[i] ^= 0xff
		if DeriveFullVerifySecret(shared, 2, mb, clientRandom) == base {
			t.Errorf("secret unchanged after buttonRandom[%d] mutation", i)
		}
		mc := clientRandom
		mc[i] ^= 0xff
		if DeriveFullVerifySecret(shared, 2, buttonRandom, mc) == base {
			t.Errorf("secret unchanged after clientRandom[%d] mutation", i)
		}
	}
}

func TestDerivedValuesAreDomainSeparated(t *testing.T) {
	shared, buttonRandom, clientRandom := testSecretInputs()
	secret := DeriveFullVerifySecret(shared, 0, buttonRandom, clientRandom)

	verifier := DeriveVerifier(secret)
	sessionKey := DeriveSessionKey(secret)
	pairingID, pairingKey := DerivePairing(secret)

	if verifier == sessionKey {
		t.Error("verifier and session key collide")
	}
	if sessionKey == pairingKey {
		t.Error("session key and pairing key collide")
	}
	if len(pairingID) != PairingIDSize || len(pairingKey) != PairingKeySize {
		t.Errorf("pairing sizes = %d/%d, want %d/%d",
			len(pairingID), len(pairingKey), PairingIDSize, PairingKeySize)
	}
}

func TestDeriveQuickVerifyKey(t *testing.T) {
	var pairingKey [PairingKeySize]byte
	copy(pairingKey[:], testChaskeyKey)

	clientRandom := []byte{1, 2, 3, 4, 5, 6, 7, 8}
	buttonRandom := []byte{9, 10, 11, 12, 13, 14, 15, 16}

	base, err := DeriveQuickVerifyKey(pairingKey, clientRandom, buttonRandom)
	if err != nil {
		t.Fatalf("DeriveQuickVerifyKey() error: %v", err)
	}
	again, err := DeriveQuickVerifyKey(pairingKey, clientRandom, buttonRandom)
	if err != nil {
		t.Fatalf("DeriveQuickVerifyKey() error: %v", err)
	}
	if base != again {
		t.Fatal("quick verify key not deterministic")
	}

	// Only the first 7 client bytes participate.
	longClient := append([]byte{}, clientRandom...)
	longClient[7] ^= 0xff
	same, err := DeriveQuickVerifyKey(pairingKey, longClient, buttonRandom)
	if err != nil {
		t.Fatalf("DeriveQuickVerifyKey() error: %v", err)
	}
	if same != base {
		t.Error("client random byte 7 should not affect the key")
	}

	// Every participating input byte changes the key.
	for i := 0; i < 7; i++ {
		mutated := append([]byte{}, clientRandom...)
		mutated[i] ^= 0x01
		key, err := DeriveQuickVerifyKey(pairingKey, mutated, buttonRandom)
		if err != nil {
			t.Fatalf("DeriveQuickVerifyKey() error: %v", err)
		}
		if key == base {
			t.Errorf("key unchanged after clientRandom[%d] mutation", i)
		}
	}
	for i := 0; i < 8; i++ {
		mutated := append([]byte{}, buttonRandom...)
		mutated[i] ^= 0x01
		key, err := DeriveQuickVerifyKey(pairingKey, clientRandom, mutated)
		if err != nil {
			t.Fatalf("DeriveQuickVerifyKey() error: %v", err)
		}
		if key == base {
			t.Errorf("key unchanged after buttonRandom[%d] mutation", i)
		}
	}

	// Short nonces are rejected.
	if _, err := DeriveQuickVerifyKey(pairingKey, clientRandom[:6], buttonRandom); err != ErrInvalidRandomSize {
		t.Errorf("short client random error = %v, want ErrInvalidRandomSize", err)
	}
	if _, err := DeriveQuickVerifyKey(pairingKey, clientRandom, buttonRandom[:7]); err != ErrInvalidRandomSize {
		t.Errorf("short button random error = %v, want ErrInvalidRandomSize", err)
	}
}
