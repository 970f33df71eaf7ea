// Package pairing implements the Full Verify and Quick Verify
// handshakes as a sans-IO state machine. The caller moves bytes; the
// machine decides what they mean and what to send next.
package pairing

import (
	"crypto/ed25519"
	"fmt"
	"sync"

	"github.com/pion/logging"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/packet"
)

// State is the handshake progress.
type State int

const (
	// StateIdle is the initial state.
	StateIdle State = iota
	// StateFullVerifyHelloSent means FullVerifyRequest1 is out.
	StateFullVerifyHelloSent
	// StateFullVerifyKeyExchanged means FullVerifyRequest2 is out.
	StateFullVerifyKeyExchanged
	// StateQuickVerifySent means QuickVerifyRequest is out.
	StateQuickVerifySent
	// StateComplete is terminal success. Result is available.
	StateComplete
	// StateFailed is terminal failure.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateFullVerifyHelloSent:
		return "full-verify-hello-sent"
	case StateFullVerifyKeyExchanged:
		return "full-verify-key-exchanged"
	case StateQuickVerifySent:
		return "quick-verify-sent"
	case StateComplete:
		return "complete"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Outgoing is a handshake message for the caller to put on the wire.
// Handshake messages are unsigned; signing starts with the session.
type Outgoing struct {
	Opcode  packet.Opcode
	Payload []byte
}

// Result is the outcome of a completed handshake.
type Result struct {
	// SessionKey keys the packet signing session.
	SessionKey [crypto.SessionKeySize]byte

	// ConnID is the connection id assigned by the button.
	ConnID uint8

	// FullVerify reports whether this was a Full Verify. The fields
	// below are only set for Full Verify.
	FullVerify bool

	// PairingID and PairingKey are the long-term credentials to store.
	PairingID  [crypto.PairingIDSize]byte
	PairingKey [crypto.PairingKeySize]byte

	// Address and AddressType identify the button as proven by its
	// identity signature.
	Address     [packet.AddressSize]byte
	AddressType byte

	// Info is the button metadata from FullVerifyResponse2.
	Info *packet.ButtonInfo
}

// Config configures a Machine.
type Config struct {
	// ButtonPublicKey overrides the manufacturer identity key.
	// Nil means the production key.
	ButtonPublicKey ed25519.PublicKey

	// LoggerFactory creates the machine logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Machine drives one handshake attempt. A Machine is single use:
// after it reaches a terminal state, create a new one for the next
// attempt.
type Machine struct {
	mu sync.Mutex

	state     State
	buttonKey ed25519.PublicKey
	log       logging.LeveledLogger

	tmpID        [packet.TmpIDSize]byte
	clientRandom [crypto.NonceSize]byte
	eph          *crypto.EphemeralKeyPair
	verifier     [crypto.VerifierSize]byte

	quickRandom [packet.QuickNonceSize]byte
	pairingID   [crypto.PairingIDSize]byte
	pairingKey  [crypto.PairingKeySize]byte

	address     [packet.AddressSize]byte
	addressType byte
	sessionKey  [crypto.SessionKeySize]byte
	connID      uint8

	result *Result
}

// New creates an idle Machine.
func New(config Config) *Machine {
	m := &Machine{
		state:     StateIdle,
		buttonKey: config.ButtonPublicKey,
	}
	if m.buttonKey == nil {
		m.buttonKey = crypto.DefaultButtonPublicKey()
	}
	if config.LoggerFactory != nil {
		m.log = config.LoggerFactory.NewLogger("pairing")
	}
	return m
}

// State returns the current handshake state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// StartFullVerify begins a Full Verify handshake and returns the
// first message to send.
func (m *Machine) StartFullVerify() (Outgoing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return Outgoing{}, fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}

	tmpID, err := crypto.RandomBytes(packet.TmpIDSize)
	if err != nil {
		return Outgoing{}, err
	}
	copy(m.tmpID[:], tmpID)

	if m.clientRandom, err = crypto.RandomNonce(); err != nil {
		return Outgoing{}, err
	}
	if m.eph, err = crypto.GenerateKeyPair(); err != nil {
		return Outgoing{}, err
	}

	m.state = StateFullVerifyHelloSent
	if m.log != nil {
		m.log.Debugf("full verify started, tmp id %x", m.tmpID)
	}

	req := &packet.FullVerifyRequest1{TmpID: m.tmpID}
	return Outgoing{Opcode: packet.OpFullVerifyRequest1, Payload: req.Encode()}, nil
}

// StartQuickVerify begins a Quick Verify handshake using stored
// credentials and returns the message to send.
func (m *Machine) StartQuickVerify(pairingID [crypto.PairingIDSize]byte, pairingKey [crypto.PairingKeySize]byte) (Outgoing, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.state != StateIdle {
		return Outgoing{}, fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}

	tmpID, err := crypto.RandomBytes(packet.TmpIDSize)
	if err != nil {
		return Outgoing{}, err
	}
	copy(m.tmpID[:], tmpID)

	random, err := crypto.RandomBytes(packet.QuickNonceSize)
	if err != nil {
		return Outgoing{}, err
	}
	copy(m.quickRandom[:], random)

	m.pairingID = pairingID
	m.pairingKey = pairingKey
	m.state = StateQuickVerifySent
	if m.log != nil {
		m.log.Debugf("quick verify started, pairing id %x", pairingID)
	}

	req := &packet.QuickVerifyRequest{
		ClientRandom: m.quickRandom,
		TmpID:        m.tmpID,
		PairingID:    pairingID,
	}
	return Outgoing{Opcode: packet.OpQuickVerifyRequest, Payload: req.Encode()}, nil
}

// HandleMessage consumes one inbound packet. It may return a reply to
// send. done reports that the handshake completed and Result is
// available. A non-nil error means the handshake failed and the
// machine is terminal.
func (m *Machine) HandleMessage(p *packet.Packet) (reply *Outgoing, done bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case StateFullVerifyHelloSent:
		reply, err = m.handleFullVerifyResponse1(p)
	case StateFullVerifyKeyExchanged:
		done, err = m.handleFullVerifyResponse2(p)
	case StateQuickVerifySent:
		done, err = m.handleQuickVerifyResponse(p)
	default:
		return nil, false, fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}

	if err != nil {
		m.failLocked(err)
	}
	return reply, done, err
}

func (m *Machine) handleFullVerifyResponse1(p *packet.Packet) (*Outgoing, error) {
	switch p.Opcode {
	case packet.OpFullVerifyFailResponse1:
		reason := packet.FullVerifyFailReason(packet.DecodeFailReason(p.Payload))
		if reason == packet.FullVerifyFailNotInPublicMode || reason == packet.FullVerifyFailNotInPairingMode {
			return nil, ErrNotPairable
		}
		return nil, fmt.Errorf("%w: %s", ErrRejected, reason)
	case packet.OpFullVerifyResponse1:
	default:
		if m.log != nil {
			m.log.Warnf("ignoring opcode 0x%02X in state %s", uint8(p.Opcode), m.state)
		}
		return nil, nil
	}

	resp, err := packet.DecodeFullVerifyResponse1(p.Payload)
	if err != nil {
		return nil, err
	}
	if resp.TmpID != m.tmpID {
		return nil, ErrTmpIDMismatch
	}
	if !resp.PublicMode() {
		return nil, ErrNotPairable
	}

	sigBits, err := crypto.VerifyButtonIdentity(
		m.buttonKey, resp.Signature[:], resp.Address[:], resp.AddressType, resp.ECDHPublic[:])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIdentity, err)
	}

	shared, err := m.eph.SharedSecret(resp.ECDHPublic[:])
	if err != nil {
		return nil, err
	}
	secret := crypto.DeriveFullVerifySecret(shared, sigBits, resp.ButtonRandom, m.clientRandom)
	crypto.Zeroize(shared[:])

	m.verifier = crypto.DeriveVerifier(secret)
	m.sessionKey = crypto.DeriveSessionKey(secret)
	m.pairingID, m.pairingKey = crypto.DerivePairing(secret)
	crypto.Zeroize(secret[:])

	m.address = resp.Address
	m.addressType = resp.AddressType
	m.connID = p.Header.ConnID

	req := &packet.FullVerifyRequest2{
		ECDHPublic:   m.eph.Public(),
		ClientRandom: m.clientRandom,
		Verifier:     m.verifier,
	}

	// The private key has served its purpose.
	m.eph.Zeroize()
	m.eph = nil

	m.state = StateFullVerifyKeyExchanged
	if m.log != nil {
		m.log.Debugf("identity verified for %x, key exchange sent", m.address)
	}
	return &Outgoing{Opcode: packet.OpFullVerifyRequest2, Payload: req.Encode()}, nil
}

func (m *Machine) handleFullVerifyResponse2(p *packet.Packet) (bool, error) {
	switch p.Opcode {
	case packet.OpFullVerifyFailResponse2:
		reason := packet.FullVerifyFailReason(packet.DecodeFailReason(p.Payload))
		if reason == packet.FullVerifyFailInvalidVerifier {
			return false, ErrVerifierMismatch
		}
		return false, fmt.Errorf("%w: %s", ErrRejected, reason)
	case packet.OpFullVerifyResponse2:
	default:
		if m.log != nil {
			m.log.Warnf("ignoring opcode 0x%02X in state %s", uint8(p.Opcode), m.state)
		}
		return false, nil
	}

	info, err := packet.DecodeButtonInfo(p.Payload)
	if err != nil {
		return false, err
	}

	m.result = &Result{
		SessionKey:  m.sessionKey,
		ConnID:      m.connID,
		FullVerify:  true,
		PairingID:   m.pairingID,
		PairingKey:  m.pairingKey,
		Address:     m.address,
		AddressType: m.addressType,
		Info:        info,
	}
	m.state = StateComplete
	if m.log != nil {
		m.log.Infof("paired with %q (serial %s)", info.Name, info.SerialNumber)
	}
	return true, nil
}

func (m *Machine) handleQuickVerifyResponse(p *packet.Packet) (bool, error) {
	switch p.Opcode {
	case packet.OpNoPairingExists:
		return false, ErrNoPairing
	case packet.OpQuickVerifyFail:
		reason := packet.QuickVerifyFailReason(packet.DecodeFailReason(p.Payload))
		if reason == packet.QuickVerifyFailInvalidPairingID {
			return false, ErrNoPairing
		}
		return false, fmt.Errorf("%w: %s", ErrRejected, reason)
	case packet.OpQuickVerifyResponse:
	default:
		if m.log != nil {
			m.log.Warnf("ignoring opcode 0x%02X in state %s", uint8(p.Opcode), m.state)
		}
		return false, nil
	}

	resp, err := packet.DecodeQuickVerifyResponse(p.Payload)
	if err != nil {
		return false, err
	}

	key, err := crypto.DeriveQuickVerifyKey(m.pairingKey, m.quickRandom[:], resp.ButtonRandom[:])
	if err != nil {
		return false, err
	}

	m.sessionKey = key
	m.result = &Result{
		SessionKey: key,
		ConnID:     p.Header.ConnID,
	}
	m.state = StateComplete
	if m.log != nil {
		m.log.Debugf("quick verify complete, conn id %d", p.Header.ConnID)
	}
	return true, nil
}

// SessionKey returns the derived session key once it exists. During
// Full Verify that is right after the key exchange message goes out:
// the button signs everything from FullVerifyResponse2 onward, so the
// caller must start verifying before completion.
func (m *Machine) SessionKey() ([crypto.SessionKeySize]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch m.state {
	case StateFullVerifyKeyExchanged, StateComplete:
		return m.sessionKey, true
	default:
		return [crypto.SessionKeySize]byte{}, false
	}
}

// Result returns the handshake outcome after completion.
func (m *Machine) Result() (*Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateComplete {
		return nil, fmt.Errorf("%w: %s", ErrInvalidState, m.state)
	}
	return m.result, nil
}

// failLocked moves to the terminal failed state and wipes secrets.
func (m *Machine) failLocked(err error) {
	if m.log != nil {
		m.log.Errorf("handshake failed in state %s: %v", m.state, err)
	}
	m.state = StateFailed
	m.wipeLocked()
}

// Close wipes all key material held by the machine. The session key
// inside an already returned Result is the caller's to manage.
func (m *Machine) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.wipeLocked()
}

func (m *Machine) wipeLocked() {
	if m.eph != nil {
		m.eph.Zeroize()
		m.eph = nil
	}
	crypto.Zeroize(m.sessionKey[:])
	crypto.Zeroize(m.pairingKey[:])
	crypto.Zeroize(m.verifier[:])
}
