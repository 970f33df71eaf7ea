package transport

import (
	"encoding/hex"
	"fmt"
	"strings"
)

// AddressSize is the size of a BLE device address in bytes.
const AddressSize = 6

// AddressType distinguishes public and random BLE device addresses.
type AddressType byte

const (
	// AddressTypePublic is an IEEE-assigned public device address.
	AddressTypePublic AddressType = 0
	// AddressTypeRandom is a static random device address.
	AddressTypeRandom AddressType = 1
)

// String returns the string representation of the address type.
func (t AddressType) String() string {
	switch t {
	case AddressTypePublic:
		return "public"
	case AddressTypeRandom:
		return "random"
	default:
		return fmt.Sprintf("addresstype(%d)", byte(t))
	}
}

// Address is a BLE device address in wire order (least significant
// byte first), as it appears in protocol messages and signed identity
// data.
type Address [AddressSize]byte

// ParseAddress parses a colon-separated address string such as
// "80:E4:DA:12:34:56" into wire order.
func ParseAddress(s string) (Address, error) {
	var addr Address
	parts := strings.Split(s, ":")
	if len(parts) != AddressSize {
		return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
	}
	for i, part := range parts {
		b, err := hex.DecodeString(part)
		if err != nil || len(b) != 1 {
			return addr, fmt.Errorf("%w: %q", ErrInvalidAddress, s)
		}
		// Display order is most significant byte first.
		addr[AddressSize-1-i] = b[0]
	}
	return addr, nil
}

// String formats the address most significant byte first, the
// conventional display order.
func (a Address) String() string {
	var sb strings.Builder
	for i := AddressSize - 1; i >= 0; i-- {
		if sb.Len() > 0 {
			sb.WriteByte(':')
		}
		fmt.Fprintf(&sb, "%02X", a[i])
	}
	return sb.String()
}

// Bytes returns the address in wire order.
func (a Address) Bytes() []byte {
	out := make([]byte, AddressSize)
	copy(out, a[:])
	return out
}
