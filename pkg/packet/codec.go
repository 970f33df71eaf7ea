// Package packet implements the Flic 2 wire envelope: the one-byte
// header with connection id and flags, the opcode, payload
// fragmentation, and the typed encode/decode of every protocol
// message. Signature computation lives in pkg/session; this package
// only carries signatures as opaque bytes.
package packet

// Envelope layout constants. All multi-byte payload fields are
// little-endian on the wire.
const (
	// MinEnvelopeSize is header + opcode.
	MinEnvelopeSize = 2

	// SignatureSize is the truncated Chaskey tag appended once a
	// session is live.
	SignatureSize = 5

	// MaxConnID is the largest connection id representable in the
	// 5-bit header field.
	MaxConnID = 0x1F
)

// Header byte bit layout.
const (
	connIDMask       = 0x1F // bits 0-4
	newlyAssignedBit = 0x20 // bit 5
	multiBit         = 0x40 // bit 6, reserved
	fragmentBit      = 0x80 // bit 7, payload continues in next packet
)

// Header is the decoded first byte of the envelope.
type Header struct {
	// ConnID is the 5-bit connection identifier assigned by the
	// button.
	ConnID uint8

	// NewlyAssigned is set on the first packet of a freshly issued
	// connection id.
	NewlyAssigned bool

	// Multi is reserved.
	Multi bool

	// Fragment indicates the payload continues in a following packet.
	Fragment bool
}

// Encode packs the header into its wire byte.
func (h Header) Encode() (byte, error) {
	if h.ConnID > MaxConnID {
		return 0, ErrConnIDRange
	}
	b := h.ConnID & connIDMask
	if h.NewlyAssigned {
		b |= newlyAssignedBit
	}
	if h.Multi {
		b |= multiBit
	}
	if h.Fragment {
		b |= fragmentBit
	}
	return b, nil
}

// DecodeHeader unpacks a header byte.
func DecodeHeader(b byte) Header {
	return Header{
		ConnID:        b & connIDMask,
		NewlyAssigned: b&newlyAssignedBit != 0,
		Multi:         b&multiBit != 0,
		Fragment:      b&fragmentBit != 0,
	}
}

// Packet is a decoded envelope. Signature is nil when the packet was
// received without one (no session yet) or after the session layer has
// stripped and verified it.
type Packet struct {
	Header    Header
	Opcode    Opcode
	Payload   []byte
	Signature []byte
}

// Encode serializes the envelope without a signature. The session
// layer appends the signature for signed sends.
func Encode(header Header, opcode Opcode, payload []byte) ([]byte, error) {
	hb, err := header.Encode()
	if err != nil {
		return nil, err
	}
	out := make([]byte, 0, MinEnvelopeSize+len(payload))
	out = append(out, hb, byte(opcode))
	out = append(out, payload...)
	return out, nil
}

// Decode parses an unsigned envelope: header, opcode and the full
// remainder as payload.
func Decode(data []byte) (*Packet, error) {
	if len(data) < MinEnvelopeSize {
		return nil, ErrPacketTooShort
	}
	return &Packet{
		Header:  DecodeHeader(data[0]),
		Opcode:  Opcode(data[1]),
		Payload: data[MinEnvelopeSize:],
	}, nil
}

// DecodeSigned parses an envelope whose trailing 5 bytes are a
// signature. The signature is split off unverified; verification is
// the session layer's job (the header byte is excluded from the
// signed bytes, so the caller needs opcode+payload separated from it).
func DecodeSigned(data []byte) (*Packet, error) {
	if len(data) < MinEnvelopeSize+SignatureSize {
		return nil, ErrPacketTooShort
	}
	body := data[:len(data)-SignatureSize]
	return &Packet{
		Header:    DecodeHeader(body[0]),
		Opcode:    Opcode(body[1]),
		Payload:   body[MinEnvelopeSize:],
		Signature: data[len(data)-SignatureSize:],
	}, nil
}

// SignedBytes returns the portion of the packet covered by the
// signature: opcode followed by payload. The header byte is excluded;
// the button computes and checks its tags the same way.
func (p *Packet) SignedBytes() []byte {
	out := make([]byte, 0, 1+len(p.Payload))
	out = append(out, byte(p.Opcode))
	out = append(out, p.Payload...)
	return out
}
