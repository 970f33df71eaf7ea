package pairing

import (
	"bytes"
	"crypto/ed25519"
	"errors"
	"testing"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/packet"
)

// simButton plays the button side of a handshake inline, deriving the
// same secrets the machine must arrive at.
type simButton struct {
	t *testing.T

	identityPub  ed25519.PublicKey
	identityPriv ed25519.PrivateKey

	address     [packet.AddressSize]byte
	addressType byte
	eph         *crypto.EphemeralKeyPair
	random      [crypto.NonceSize]byte
	sigBits     byte
	connID      uint8

	sessionKey [crypto.SessionKeySize]byte
	pairingID  [crypto.PairingIDSize]byte
	pairingKey [crypto.PairingKeySize]byte
}

func newSimButton(t *testing.T) *simButton {
	t.Helper()

	pub, priv, err := ed25519.GenerateKey(nil)
	if err != nil {
		t.Fatalf("generate identity key: %v", err)
	}
	eph, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate ecdh key: %v", err)
	}

	b := &simButton{
		t:            t,
		identityPub:  pub,
		identityPriv: priv,
		address:      [packet.AddressSize]byte{0x56, 0x34, 0x12, 0xDA, 0xE4, 0x80},
		addressType:  1,
		eph:          eph,
		random:       [crypto.NonceSize]byte{10, 11, 12, 13, 14, 15, 16, 17},
		connID:       3,
	}
	return b
}

// fullVerifyResponse1 answers a FullVerifyRequest1.
func (b *simButton) fullVerifyResponse1(req Outgoing, flags byte, hasFlags bool) *packet.Packet {
	b.t.Helper()

	if req.Opcode != packet.OpFullVerifyRequest1 {
		b.t.Fatalf("expected FullVerifyRequest1, got 0x%02X", uint8(req.Opcode))
	}

	pub := b.eph.Public()
	message := append(append(append([]byte{}, b.address[:]...), b.addressType), pub[:]...)
	sig := ed25519.Sign(b.identityPriv, message)
	b.sigBits = sig[32] & 0x03

	payload := make([]byte, 0, 124)
	payload = append(payload, req.Payload[:packet.TmpIDSize]...)
	payload = append(payload, sig...)
	payload = append(payload, b.address[:]...)
	payload = append(payload, b.addressType)
	payload = append(payload, pub[:]...)
	payload = append(payload, b.random[:]...)
	if hasFlags {
		payload = append(payload, flags)
	}

	return &packet.Packet{
		Header:  packet.Header{ConnID: b.connID, NewlyAssigned: true},
		Opcode:  packet.OpFullVerifyResponse1,
		Payload: payload,
	}
}

// fullVerifyResponse2 answers a FullVerifyRequest2, checking the
// verifier and deriving the session secrets.
func (b *simButton) fullVerifyResponse2(req Outgoing) *packet.Packet {
	b.t.Helper()

	if req.Opcode != packet.OpFullVerifyRequest2 {
		b.t.Fatalf("expected FullVerifyRequest2, got 0x%02X", uint8(req.Opcode))
	}

	clientPub := req.Payload[:32]
	var clientRandom [crypto.NonceSize]byte
	copy(clientRandom[:], req.Payload[32:40])
	verifier := req.Payload[41:57]

	shared, err := b.eph.SharedSecret(clientPub)
	if err != nil {
		b.t.Fatalf("button shared secret: %v", err)
	}
	secret := crypto.DeriveFullVerifySecret(shared, b.sigBits, b.random, clientRandom)
	want := crypto.DeriveVerifier(secret)
	if !crypto.HMACEqual(verifier, want[:]) {
		b.t.Fatal("client verifier does not match button derivation")
	}

	b.sessionKey = crypto.DeriveSessionKey(secret)
	b.pairingID, b.pairingKey = crypto.DerivePairing(secret)

	return &packet.Packet{
		Header:  packet.Header{ConnID: b.connID},
		Opcode:  packet.OpFullVerifyResponse2,
		Payload: buildButtonInfo("Kitchen", 42, 91, "BD7-A10249"),
	}
}

// buildButtonInfo encodes a FullVerifyResponse2 payload.
func buildButtonInfo(name string, firmware uint32, battery byte, serial string) []byte {
	payload := make([]byte, 0, 64)
	for i := 0; i < 16; i++ {
		payload = append(payload, byte(i))
	}
	payload = append(payload, 0) // flags
	payload = append(payload, byte(len(name)))
	padded := make([]byte, 24)
	copy(padded, name)
	payload = append(payload, padded...)
	payload = append(payload, byte(firmware), byte(firmware>>8), byte(firmware>>16), byte(firmware>>24))
	payload = append(payload, battery)
	payload = append(payload, 0) // hid
	payload = append(payload, serial...)
	return payload
}

func runFullVerify(t *testing.T, m *Machine, b *simButton) *Result {
	t.Helper()

	req1, err := m.StartFullVerify()
	if err != nil {
		t.Fatalf("start: %v", err)
	}

	req2, done, err := m.HandleMessage(b.fullVerifyResponse1(req1, 0x02, true))
	if err != nil {
		t.Fatalf("response 1: %v", err)
	}
	if done || req2 == nil {
		t.Fatal("expected a key exchange reply and an unfinished handshake")
	}

	reply, done, err := m.HandleMessage(b.fullVerifyResponse2(*req2))
	if err != nil {
		t.Fatalf("response 2: %v", err)
	}
	if !done || reply != nil {
		t.Fatal("expected completion with no reply")
	}

	result, err := m.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	return result
}

func TestFullVerify(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	result := runFullVerify(t, m, button)

	if !result.FullVerify {
		t.Fatal("expected a full verify result")
	}
	if result.SessionKey != button.sessionKey {
		t.Fatal("session keys disagree")
	}
	if result.PairingID != button.pairingID || result.PairingKey != button.pairingKey {
		t.Fatal("pairing credentials disagree")
	}
	if result.ConnID != button.connID {
		t.Fatalf("conn id %d, want %d", result.ConnID, button.connID)
	}
	if result.Address != button.address || result.AddressType != button.addressType {
		t.Fatal("button address not captured")
	}
	if result.Info == nil || result.Info.Name != "Kitchen" || result.Info.BatteryLevel != 91 {
		t.Fatalf("unexpected button info: %+v", result.Info)
	}
	if result.Info.SerialNumber != "BD7-A10249" || result.Info.FirmwareVersion != 42 {
		t.Fatalf("unexpected button info: %+v", result.Info)
	}
}

func TestFullVerifySessionKeyAvailableAfterKeyExchange(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	if _, ok := m.SessionKey(); ok {
		t.Fatal("session key must not exist before key exchange")
	}

	if _, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0x02, true)); err != nil {
		t.Fatalf("response 1: %v", err)
	}
	key, ok := m.SessionKey()
	if !ok {
		t.Fatal("session key must exist after key exchange")
	}
	var zero [crypto.SessionKeySize]byte
	if key == zero {
		t.Fatal("session key is zero")
	}
}

func TestFullVerifyFlaglessFirmwareIsPairable(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	reply, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0, false))
	if err != nil {
		t.Fatalf("flagless response must be accepted: %v", err)
	}
	if reply == nil {
		t.Fatal("expected a key exchange reply")
	}
}

func TestFullVerifyNotPairable(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	_, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0x00, true))
	if !errors.Is(err, ErrNotPairable) {
		t.Fatalf("expected ErrNotPairable, got %v", err)
	}
	if m.State() != StateFailed {
		t.Fatalf("state %s, want failed", m.State())
	}
}

func TestFullVerifyIdentityTamper(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	resp := button.fullVerifyResponse1(req1, 0x02, true)
	resp.Payload[packet.TmpIDSize+5] ^= 0x01 // corrupt the signature

	_, _, err := m.HandleMessage(resp)
	if !errors.Is(err, ErrIdentity) {
		t.Fatalf("expected ErrIdentity, got %v", err)
	}
}

func TestFullVerifyTmpIDMismatch(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	resp := button.fullVerifyResponse1(req1, 0x02, true)
	resp.Payload[0] ^= 0xFF

	_, _, err := m.HandleMessage(resp)
	if !errors.Is(err, ErrTmpIDMismatch) {
		t.Fatalf("expected ErrTmpIDMismatch, got %v", err)
	}
}

func TestFullVerifyFailResponse1(t *testing.T) {
	button := newSimButton(t)

	cases := []struct {
		reason packet.FullVerifyFailReason
		want   error
	}{
		{packet.FullVerifyFailNotInPublicMode, ErrNotPairable},
		{packet.FullVerifyFailNotInPairingMode, ErrNotPairable},
		{packet.FullVerifyFailTooManyPairings, ErrRejected},
	}
	for _, tc := range cases {
		m := New(Config{ButtonPublicKey: button.identityPub})
		m.StartFullVerify()

		_, _, err := m.HandleMessage(&packet.Packet{
			Opcode:  packet.OpFullVerifyFailResponse1,
			Payload: []byte{byte(tc.reason)},
		})
		if !errors.Is(err, tc.want) {
			t.Errorf("reason %v: got %v, want %v", tc.reason, err, tc.want)
		}
	}
}

func TestFullVerifyVerifierRejected(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	if _, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0x02, true)); err != nil {
		t.Fatalf("response 1: %v", err)
	}

	_, _, err := m.HandleMessage(&packet.Packet{
		Opcode:  packet.OpFullVerifyFailResponse2,
		Payload: []byte{byte(packet.FullVerifyFailInvalidVerifier)},
	})
	if !errors.Is(err, ErrVerifierMismatch) {
		t.Fatalf("expected ErrVerifierMismatch, got %v", err)
	}
	if !IsCredentialFailure(err) {
		t.Fatal("verifier mismatch must count as a credential failure")
	}
}

func TestQuickVerify(t *testing.T) {
	pairingID := [crypto.PairingIDSize]byte{1, 2, 3, 4, 5}
	pairingKey := [crypto.PairingKeySize]byte{
		0x00, 0x11, 0x22, 0x33, 0x44, 0x55, 0x66, 0x77,
		0x88, 0x99, 0xAA, 0xBB, 0xCC, 0xDD, 0xEE, 0xFF,
	}

	m := New(Config{})
	req, err := m.StartQuickVerify(pairingID, pairingKey)
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if req.Opcode != packet.OpQuickVerifyRequest {
		t.Fatalf("opcode 0x%02X, want QuickVerifyRequest", uint8(req.Opcode))
	}

	decoded, err := packet.DecodeQuickVerifyRequest(req.Payload)
	if err != nil {
		t.Fatalf("decode request: %v", err)
	}
	if decoded.PairingID != pairingID {
		t.Fatal("pairing id not sent")
	}

	buttonRandom := [crypto.NonceSize]byte{9, 8, 7, 6, 5, 4, 3, 2}
	reply, done, err := m.HandleMessage(&packet.Packet{
		Header:  packet.Header{ConnID: 7, NewlyAssigned: true},
		Opcode:  packet.OpQuickVerifyResponse,
		Payload: buttonRandom[:],
	})
	if err != nil {
		t.Fatalf("response: %v", err)
	}
	if !done || reply != nil {
		t.Fatal("expected completion with no reply")
	}

	result, err := m.Result()
	if err != nil {
		t.Fatalf("result: %v", err)
	}
	want, err := crypto.DeriveQuickVerifyKey(pairingKey, decoded.ClientRandom[:], buttonRandom[:])
	if err != nil {
		t.Fatalf("derive: %v", err)
	}
	if result.SessionKey != want {
		t.Fatal("session key does not match button derivation")
	}
	if result.ConnID != 7 {
		t.Fatalf("conn id %d, want 7", result.ConnID)
	}
	if result.FullVerify {
		t.Fatal("quick verify result must not claim full verify")
	}
}

func TestQuickVerifyNoPairing(t *testing.T) {
	m := New(Config{})
	m.StartQuickVerify([crypto.PairingIDSize]byte{}, [crypto.PairingKeySize]byte{})

	_, _, err := m.HandleMessage(&packet.Packet{Opcode: packet.OpNoPairingExists})
	if !errors.Is(err, ErrNoPairing) {
		t.Fatalf("expected ErrNoPairing, got %v", err)
	}
	if !IsCredentialFailure(err) {
		t.Fatal("missing pairing must count as a credential failure")
	}
}

func TestQuickVerifyFailReasons(t *testing.T) {
	cases := []struct {
		reason packet.QuickVerifyFailReason
		want   error
	}{
		{packet.QuickVerifyFailInvalidPairingID, ErrNoPairing},
		{packet.QuickVerifyFailInvalidSignature, ErrRejected},
		{packet.QuickVerifyFailNoSpace, ErrRejected},
	}
	for _, tc := range cases {
		m := New(Config{})
		m.StartQuickVerify([crypto.PairingIDSize]byte{}, [crypto.PairingKeySize]byte{})

		_, _, err := m.HandleMessage(&packet.Packet{
			Opcode:  packet.OpQuickVerifyFail,
			Payload: []byte{byte(tc.reason)},
		})
		if !errors.Is(err, tc.want) {
			t.Errorf("reason %v: got %v, want %v", tc.reason, err, tc.want)
		}
	}
}

func TestStartTwice(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	if _, err := m.StartFullVerify(); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := m.StartFullVerify(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
	if _, err := m.StartQuickVerify([crypto.PairingIDSize]byte{}, [crypto.PairingKeySize]byte{}); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestUnexpectedOpcodeIgnored(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	reply, done, err := m.HandleMessage(&packet.Packet{Opcode: packet.OpPingResponse})
	if err != nil || done || reply != nil {
		t.Fatalf("stray packet must be ignored: reply=%v done=%v err=%v", reply, done, err)
	}
	if m.State() != StateFullVerifyHelloSent {
		t.Fatalf("state %s changed by stray packet", m.State())
	}

	// The handshake still completes afterwards.
	if _, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0x02, true)); err != nil {
		t.Fatalf("response 1 after stray packet: %v", err)
	}
}

func TestResultBeforeCompletion(t *testing.T) {
	m := New(Config{})
	if _, err := m.Result(); !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestHandleMessageWhenIdle(t *testing.T) {
	m := New(Config{})
	_, _, err := m.HandleMessage(&packet.Packet{Opcode: packet.OpPingResponse})
	if !errors.Is(err, ErrInvalidState) {
		t.Fatalf("expected ErrInvalidState, got %v", err)
	}
}

func TestFullVerifyRequest2Layout(t *testing.T) {
	button := newSimButton(t)
	m := New(Config{ButtonPublicKey: button.identityPub})

	req1, _ := m.StartFullVerify()
	req2, _, err := m.HandleMessage(button.fullVerifyResponse1(req1, 0x02, true))
	if err != nil {
		t.Fatalf("response 1: %v", err)
	}

	if len(req2.Payload) != 57 {
		t.Fatalf("request 2 payload is %d bytes, want 57", len(req2.Payload))
	}
	if req2.Payload[40] != 0 {
		t.Fatal("rfu byte must be zero")
	}
	if bytes.Equal(req2.Payload[:32], make([]byte, 32)) {
		t.Fatal("public key missing from request 2")
	}
}
