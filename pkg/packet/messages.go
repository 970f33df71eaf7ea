package packet

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// Field sizes shared by the handshake messages.
const (
	TmpIDSize        = 4
	NonceSize        = 8
	QuickNonceSize   = 7
	PairingIDSize    = 5
	VerifierSize     = 16
	ECDHPublicSize   = 32
	IdentitySigSize  = 64
	AddressSize      = 6
	buttonNameMax    = 24
)

// FullVerifyRequest1 opens a Full Verify handshake. The tmp id lets
// the button correlate the eventual response with this attempt.
type FullVerifyRequest1 struct {
	TmpID [TmpIDSize]byte
}

// Encode returns the request payload.
func (m *FullVerifyRequest1) Encode() []byte {
	out := make([]byte, TmpIDSize)
	copy(out, m.TmpID[:])
	return out
}

// FullVerifyResponse1 carries the button's identity proof and key
// exchange material.
type FullVerifyResponse1 struct {
	TmpID        [TmpIDSize]byte
	Signature    [IdentitySigSize]byte
	Address      [AddressSize]byte
	AddressType  byte
	ECDHPublic   [ECDHPublicSize]byte
	ButtonRandom [NonceSize]byte

	// Flags is present only on newer firmware. Bit 1 reports whether
	// the button is in public (pairable) mode.
	Flags    byte
	HasFlags bool
}

const fullVerifyResponse1MinSize = TmpIDSize + IdentitySigSize + AddressSize + 1 + ECDHPublicSize + NonceSize

// DecodeFullVerifyResponse1 parses the response payload.
func DecodeFullVerifyResponse1(payload []byte) (*FullVerifyResponse1, error) {
	if len(payload) < fullVerifyResponse1MinSize {
		return nil, fmt.Errorf("%w: full verify response 1 is %d bytes, need %d",
			ErrPayloadTooShort, len(payload), fullVerifyResponse1MinSize)
	}

	m := &FullVerifyResponse1{}
	off := 0
	off += copy(m.TmpID[:], payload[off:off+TmpIDSize])
	off += copy(m.Signature[:], payload[off:off+IdentitySigSize])
	off += copy(m.Address[:], payload[off:off+AddressSize])
	m.AddressType = payload[off]
	off++
	off += copy(m.ECDHPublic[:], payload[off:off+ECDHPublicSize])
	off += copy(m.ButtonRandom[:], payload[off:off+NonceSize])

	if len(payload) > off {
		m.Flags = payload[off]
		m.HasFlags = true
	}
	return m, nil
}

// PublicMode reports whether the button advertises itself as pairable.
// Firmware without the flags byte predates the restriction and is
// treated as pairable.
func (m *FullVerifyResponse1) PublicMode() bool {
	if !m.HasFlags {
		return true
	}
	return m.Flags>>1&0x01 != 0
}

// FullVerifyRequest2 sends the client's key exchange material and the
// key confirmation verifier.
type FullVerifyRequest2 struct {
	ECDHPublic   [ECDHPublicSize]byte
	ClientRandom [NonceSize]byte
	RFU          byte
	Verifier     [VerifierSize]byte
}

// Encode returns the request payload:
// pubkey(32) || random(8) || rfu(1) || verifier(16).
func (m *FullVerifyRequest2) Encode() []byte {
	out := make([]byte, 0, ECDHPublicSize+NonceSize+1+VerifierSize)
	out = append(out, m.ECDHPublic[:]...)
	out = append(out, m.ClientRandom[:]...)
	out = append(out, m.RFU)
	out = append(out, m.Verifier[:]...)
	return out
}

// ButtonInfo is the decoded FullVerifyResponse2: static facts about
// the freshly paired button.
type ButtonInfo struct {
	UUID            string
	Name            string
	SerialNumber    string
	FirmwareVersion uint32
	BatteryLevel    uint8
}

const buttonInfoMinSize = 16 + 1 + 1

// DecodeButtonInfo parses a FullVerifyResponse2 payload:
// uuid(16) flags(1) nameLen(1) name(24, zero padded) firmware(4)
// battery(1) hid(1) serial(terminated by NUL or non-printable).
func DecodeButtonInfo(payload []byte) (*ButtonInfo, error) {
	if len(payload) < buttonInfoMinSize {
		return nil, fmt.Errorf("%w: button info is %d bytes", ErrPayloadTooShort, len(payload))
	}

	m := &ButtonInfo{}

	raw := payload[:16]
	hexed := fmt.Sprintf("%x", raw)
	m.UUID = strings.Join([]string{
		hexed[0:8], hexed[8:12], hexed[12:16], hexed[16:20], hexed[20:32],
	}, "-")

	off := 16
	off++ // flags, unused

	nameLen := int(payload[off])
	off++
	if nameLen > buttonNameMax {
		nameLen = buttonNameMax
	}
	if off+nameLen <= len(payload) {
		m.Name = strings.TrimRight(string(payload[off:off+nameLen]), "\x00")
	}
	off += buttonNameMax // the name field is always padded to 24 bytes

	if off+4 <= len(payload) {
		m.FirmwareVersion = binary.LittleEndian.Uint32(payload[off:])
		off += 4
	}
	if off < len(payload) {
		m.BatteryLevel = payload[off]
		off++
	}
	off++ // hid byte

	if off < len(payload) {
		end := off
		for end < len(payload) && payload[end] >= 0x20 && payload[end] <= 0x7e {
			end++
		}
		m.SerialNumber = string(payload[off:end])
	}
	return m, nil
}

// QuickVerifyRequest asks the button to resume a stored pairing.
type QuickVerifyRequest struct {
	ClientRandom [QuickNonceSize]byte
	Flags        byte
	TmpID        [TmpIDSize]byte
	PairingID    [PairingIDSize]byte
}

const quickVerifyRequestSize = QuickNonceSize + 1 + TmpIDSize + PairingIDSize

// Encode returns the request payload:
// clientRandom(7) || flags(1) || tmpID(4) || pairingID(5).
func (m *QuickVerifyRequest) Encode() []byte {
	out := make([]byte, 0, quickVerifyRequestSize)
	out = append(out, m.ClientRandom[:]...)
	out = append(out, m.Flags)
	out = append(out, m.TmpID[:]...)
	out = append(out, m.PairingID[:]...)
	return out
}

// DecodeQuickVerifyRequest parses a quick verify request payload. The
// client never receives one; this exists for the simulated button used
// in tests.
func DecodeQuickVerifyRequest(payload []byte) (*QuickVerifyRequest, error) {
	if len(payload) < quickVerifyRequestSize {
		return nil, fmt.Errorf("%w: quick verify request is %d bytes", ErrPayloadTooShort, len(payload))
	}
	m := &QuickVerifyRequest{}
	off := 0
	off += copy(m.ClientRandom[:], payload[off:off+QuickNonceSize])
	m.Flags = payload[off]
	off++
	off += copy(m.TmpID[:], payload[off:off+TmpIDSize])
	copy(m.PairingID[:], payload[off:off+PairingIDSize])
	return m, nil
}

// QuickVerifyResponse carries the button's nonce for session key
// derivation.
type QuickVerifyResponse struct {
	ButtonRandom [NonceSize]byte
}

// DecodeQuickVerifyResponse parses the response payload.
func DecodeQuickVerifyResponse(payload []byte) (*QuickVerifyResponse, error) {
	if len(payload) < NonceSize {
		return nil, fmt.Errorf("%w: quick verify response is %d bytes", ErrPayloadTooShort, len(payload))
	}
	m := &QuickVerifyResponse{}
	copy(m.ButtonRandom[:], payload[:NonceSize])
	return m, nil
}

// InitButtonEvents switches the connection to events-ready mode and
// asks for queued history newer than (BootID, EventCount).
type InitButtonEvents struct {
	EventCount uint32
	BootID     uint32

	// AutoDisconnectTime in seconds, 9 bits; 511 disables.
	AutoDisconnectTime uint16
	// MaxQueuedPackets, 5 bits.
	MaxQueuedPackets uint8
	// MaxQueuedPacketsAge in seconds, 20 bits; 0xFFFFF disables.
	MaxQueuedPacketsAge uint32
	// EnableHID requests keyboard emulation mode.
	EnableHID bool
}

// DefaultInitButtonEvents returns an init request that accepts the
// full queued backlog and never auto-disconnects.
func DefaultInitButtonEvents(bootID, eventCount uint32) *InitButtonEvents {
	return &InitButtonEvents{
		EventCount:          eventCount,
		BootID:              bootID,
		AutoDisconnectTime:  511,
		MaxQueuedPackets:    31,
		MaxQueuedPacketsAge: 0xFFFFF,
	}
}

// Encode returns the request payload: eventCount(4) || bootID(4) ||
// packed bitfield(5).
func (m *InitButtonEvents) Encode() []byte {
	out := make([]byte, 13)
	binary.LittleEndian.PutUint32(out[0:], m.EventCount)
	binary.LittleEndian.PutUint32(out[4:], m.BootID)

	bits := uint64(m.AutoDisconnectTime) & 0x1FF
	bits |= uint64(m.MaxQueuedPackets&0x1F) << 9
	bits |= uint64(m.MaxQueuedPacketsAge&0xFFFFF) << 14
	if m.EnableHID {
		bits |= 1 << 34
	}
	for i := 0; i < 5; i++ {
		out[8+i] = byte(bits >> (8 * i))
	}
	return out
}

// InitButtonEventsResponse acknowledges events-ready mode.
type InitButtonEventsResponse struct {
	BootID       uint32
	EventCount   uint32
	TimestampHi  uint32
	BatteryLevel uint8
}

const initButtonEventsResponseSize = 13

// DecodeInitButtonEventsResponse parses the response payload.
func DecodeInitButtonEventsResponse(payload []byte) (*InitButtonEventsResponse, error) {
	if len(payload) < initButtonEventsResponseSize {
		return nil, fmt.Errorf("%w: init events response is %d bytes", ErrPayloadTooShort, len(payload))
	}
	return &InitButtonEventsResponse{
		BootID:       binary.LittleEndian.Uint32(payload[0:]),
		EventCount:   binary.LittleEndian.Uint32(payload[4:]),
		TimestampHi:  binary.LittleEndian.Uint32(payload[8:]),
		BatteryLevel: payload[12],
	}, nil
}

// SetName renames the button. The name is stored in the button's
// flash, truncated to its 23-byte limit.
type SetName struct {
	Name string
}

// Encode returns the request payload.
func (m *SetName) Encode() []byte {
	name := []byte(m.Name)
	if len(name) > buttonNameMax-1 {
		name = name[:buttonNameMax-1]
	}
	return name
}

// DecodeDisconnectReason parses a DisconnectedLink payload.
func DecodeDisconnectReason(payload []byte) DisconnectReason {
	if len(payload) == 0 {
		return DisconnectReason(0xFF)
	}
	return DisconnectReason(payload[0])
}

// DecodeFailReason returns the first payload byte, the shared shape of
// every failure response.
func DecodeFailReason(payload []byte) uint8 {
	if len(payload) == 0 {
		return 0
	}
	return payload[0]
}
