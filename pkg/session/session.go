// Package session owns the live session key and the strictly
// monotonic per-direction message counters. It is the only component
// allowed to increment counters or to compute and check packet
// signatures; everything above it hands over opcode and payload and
// gets wire bytes (or a verified packet) back.
package session

import (
	"sync"

	"github.com/pion/logging"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/packet"
)

// DefaultMacFailureLimit is the number of consecutive signature
// failures tolerated before the session is declared desynchronized.
// The button-side value is not observable; this is a client policy.
const DefaultMacFailureLimit = 3

// Config configures a Session.
type Config struct {
	// Key is the 16-byte Chaskey session key from the handshake.
	Key [crypto.SessionKeySize]byte

	// ConnID is the connection id assigned by the button.
	ConnID uint8

	// MacFailureLimit overrides DefaultMacFailureLimit when > 0.
	MacFailureLimit int

	// LoggerFactory creates the session logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Session is the per-connection signing context. Exactly one Session
// exists per established connection; it never survives a disconnect.
//
// All methods are safe for concurrent use. Counter reads, increments
// and tag computation happen under one lock, so concurrent sends can
// never observe or reuse each other's counter values.
type Session struct {
	mu sync.Mutex

	chaskey     *crypto.Chaskey
	key         [crypto.SessionKeySize]byte
	connID      uint8
	txCounter   uint64
	rxCounter   uint64
	established bool

	macFailures     int
	macFailureLimit int

	log logging.LeveledLogger
}

// New creates an established Session from a completed handshake.
func New(config Config) (*Session, error) {
	chaskey, err := crypto.NewChaskey(config.Key[:])
	if err != nil {
		return nil, err
	}

	limit := config.MacFailureLimit
	if limit <= 0 {
		limit = DefaultMacFailureLimit
	}

	s := &Session{
		chaskey:         chaskey,
		key:             config.Key,
		connID:          config.ConnID,
		established:     true,
		macFailureLimit: limit,
	}
	if config.LoggerFactory != nil {
		s.log = config.LoggerFactory.NewLogger("session")
	}
	return s, nil
}

// ConnID returns the connection id assigned by the button.
func (s *Session) ConnID() uint8 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.connID
}

// Established reports whether the session is usable.
func (s *Session) Established() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.established
}

// Counters returns the current transmit and receive counters.
func (s *Session) Counters() (tx, rx uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCounter, s.rxCounter
}

// SignOutbound builds the signed wire bytes for an outbound packet.
// The transmit counter value is consumed before the tag is computed,
// so a retried send never reuses a counter.
func (s *Session) SignOutbound(opcode packet.Opcode, payload []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.established {
		return nil, ErrClosed
	}
	if s.txCounter == ^uint64(0) {
		return nil, ErrCounterExhausted
	}

	counter := s.txCounter
	s.txCounter++

	wire, err := packet.Encode(packet.Header{ConnID: s.connID}, opcode, payload)
	if err != nil {
		return nil, err
	}

	// The header byte is excluded from the signed bytes.
	tag := s.chaskey.SignedMAC(wire[1:], crypto.DirectionClientToButton, counter)
	return append(wire, tag[:]...), nil
}

// VerifyInbound parses and authenticates a signed inbound packet,
// returning it with the signature verified and stripped.
//
// A failed check returns ErrMacVerification and leaves the receive
// counter untouched, so a single corrupted packet does not poison the
// stream. Reaching the consecutive-failure limit closes the session
// and returns ErrCounterDesync; persistent failures mean the two sides
// no longer agree on counters (or the channel is hostile), which only
// a fresh handshake can repair.
func (s *Session) VerifyInbound(data []byte) (*packet.Packet, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.established {
		return nil, ErrClosed
	}

	p, err := packet.DecodeSigned(data)
	if err != nil {
		return nil, err
	}

	want := s.chaskey.SignedMAC(p.SignedBytes(), crypto.DirectionButtonToClient, s.rxCounter)
	if !crypto.HMACEqual(want[:], p.Signature) {
		s.macFailures++
		if s.log != nil {
			s.log.Warnf("signature check failed (%d consecutive)", s.macFailures)
		}
		if s.macFailures >= s.macFailureLimit {
			s.closeLocked()
			return nil, ErrCounterDesync
		}
		return nil, ErrMacVerification
	}

	s.rxCounter++
	s.macFailures = 0
	p.Signature = nil
	return p, nil
}

// Close invalidates the session and zeroizes the key. Idempotent.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closeLocked()
}

func (s *Session) closeLocked() {
	if !s.established {
		return
	}
	s.established = false
	s.chaskey = nil
	crypto.Zeroize(s.key[:])
	if s.log != nil {
		s.log.Debugf("session closed (tx=%d rx=%d)", s.txCounter, s.rxCounter)
	}
}
