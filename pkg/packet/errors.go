package packet

import "errors"

// Packet layer errors.
var (
	ErrPacketTooShort   = errors.New("packet: data shorter than minimum envelope")
	ErrPayloadTooShort  = errors.New("packet: payload too short for message")
	ErrFieldSize        = errors.New("packet: field has wrong size")
	ErrConnIDRange      = errors.New("packet: connection id exceeds 5 bits")
	ErrReassembly       = errors.New("packet: fragment sequence interrupted")
	ErrUnexpectedOpcode = errors.New("packet: unexpected opcode")
)
