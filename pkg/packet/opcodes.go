package packet

import "fmt"

// Opcode identifies the message carried by a packet. Request and
// response opcodes overlap numerically; direction disambiguates.
type Opcode uint8

// Client-to-button opcodes.
const (
	OpFullVerifyRequest1 Opcode = 0x00
	OpFullVerifyRequest2 Opcode = 0x02
	OpQuickVerifyRequest Opcode = 0x05
	OpPingRequest        Opcode = 0x0E
	OpSetName            Opcode = 0x13
	OpInitButtonEvents   Opcode = 0x17
	OpForceDisconnect    Opcode = 0x1A
)

// Button-to-client opcodes.
const (
	OpFullVerifyResponse1     Opcode = 0x00
	OpFullVerifyResponse2     Opcode = 0x01
	OpFullVerifyFailResponse1 Opcode = 0x01
	OpFullVerifyFailResponse2 Opcode = 0x03
	OpNoPairingExists         Opcode = 0x06
	OpQuickVerifyResponse     Opcode = 0x08
	OpQuickVerifyFail         Opcode = 0x09
	OpDisconnectedLink        Opcode = 0x09
	OpInitButtonEventsResp    Opcode = 0x0A
	OpInitButtonEventsNoBoot  Opcode = 0x0B
	OpButtonEventNotification Opcode = 0x0C
	OpPingResponse            Opcode = 0x0F
	OpSetNameResponse         Opcode = 0x14
)

// FullVerifyFailReason is the reason byte of a full verify failure
// response.
type FullVerifyFailReason uint8

const (
	FullVerifyFailUnknown          FullVerifyFailReason = 0
	FullVerifyFailInvalidVerifier  FullVerifyFailReason = 1
	FullVerifyFailNotInPublicMode  FullVerifyFailReason = 2
	FullVerifyFailTooManyPairings  FullVerifyFailReason = 3
	FullVerifyFailNotInPairingMode FullVerifyFailReason = 4
)

func (r FullVerifyFailReason) String() string {
	switch r {
	case FullVerifyFailInvalidVerifier:
		return "invalid verifier"
	case FullVerifyFailNotInPublicMode:
		return "button not in public mode"
	case FullVerifyFailTooManyPairings:
		return "too many pairings"
	case FullVerifyFailNotInPairingMode:
		return "button not in pairing mode"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(r))
	}
}

// QuickVerifyFailReason is the reason byte of a quick verify failure
// response.
type QuickVerifyFailReason uint8

const (
	QuickVerifyFailUnknown          QuickVerifyFailReason = 0
	QuickVerifyFailInvalidPairingID QuickVerifyFailReason = 1
	QuickVerifyFailInvalidSignature QuickVerifyFailReason = 2
	QuickVerifyFailNoSpace          QuickVerifyFailReason = 3
)

func (r QuickVerifyFailReason) String() string {
	switch r {
	case QuickVerifyFailInvalidPairingID:
		return "invalid pairing id"
	case QuickVerifyFailInvalidSignature:
		return "invalid signature"
	case QuickVerifyFailNoSpace:
		return "no pairing slots left"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(r))
	}
}

// DisconnectReason is the reason byte of a DisconnectedLink packet.
type DisconnectReason uint8

const (
	DisconnectPingTimeout      DisconnectReason = 0
	DisconnectInvalidSignature DisconnectReason = 1
	DisconnectNewConnection    DisconnectReason = 2
	DisconnectByUser           DisconnectReason = 3
)

func (r DisconnectReason) String() string {
	switch r {
	case DisconnectPingTimeout:
		return "ping timeout"
	case DisconnectInvalidSignature:
		return "invalid signature"
	case DisconnectNewConnection:
		return "superseded by new connection"
	case DisconnectByUser:
		return "disconnected by user"
	default:
		return fmt.Sprintf("unknown (%d)", uint8(r))
	}
}
