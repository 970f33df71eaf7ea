package packet

import (
	"encoding/binary"
)

// ButtonTickHz is the frequency of the button's event timestamp clock.
const ButtonTickHz = 32768

// buttonEventEntrySize is timestamp(6) + eventInfo(1).
const buttonEventEntrySize = 7

// RawButtonUpdate is one press/release state change reported by the
// button, either live or replayed from its offline queue.
type RawButtonUpdate struct {
	// IsDown is true for a press, false for a release.
	IsDown bool

	// WasQueued is true when the button recorded this update while
	// disconnected and delivered it from its queue.
	WasQueued bool

	// TimestampTicks is the button-side event time in 32768 Hz ticks
	// since boot.
	TimestampTicks uint64

	// PressCounter is the button's lifetime press count at the time
	// of the notification carrying this update.
	PressCounter uint32
}

// AgeSeconds converts the distance between this update's timestamp and
// the given reference tick (the button's "now") into seconds. Returns
// 0 for updates at or ahead of the reference.
func (u RawButtonUpdate) AgeSeconds(referenceTicks uint64) float64 {
	if u.TimestampTicks >= referenceTicks {
		return 0
	}
	return float64(referenceTicks-u.TimestampTicks) / ButtonTickHz
}

// DecodeButtonEventNotification parses a ButtonEventNotification
// payload: pressCounter(4) followed by 7-byte entries of
// timestamp(6, LE ticks) and an info byte. Info bit 4 marks a queued
// update; the low bits encode the state change.
//
// Trailing bytes shorter than a full entry are ignored, matching the
// button's zero padding.
func DecodeButtonEventNotification(payload []byte) ([]RawButtonUpdate, error) {
	if len(payload) < 4 {
		return nil, ErrPayloadTooShort
	}
	pressCounter := binary.LittleEndian.Uint32(payload[:4])

	var updates []RawButtonUpdate
	for off := 4; off+buttonEventEntrySize <= len(payload); off += buttonEventEntrySize {
		var ts uint64
		for i := 0; i < 6; i++ {
			ts |= uint64(payload[off+i]) << (8 * i)
		}
		info := payload[off+6]

		updates = append(updates, RawButtonUpdate{
			IsDown:         decodeIsDown(info),
			WasQueued:      info>>4&0x01 != 0,
			TimestampTicks: ts,
			PressCounter:   pressCounter,
		})
	}
	return updates, nil
}

// decodeIsDown extracts the press/release direction from the low
// nibble of the info byte. Encoding 1 is a press; everything else
// (plain release, or a release annotated with the button's own
// click/hold classification when bit 3 is set) is a release.
func decodeIsDown(info byte) bool {
	encoded := info & 0x0F
	if encoded>>3 != 0 {
		return false
	}
	return encoded == 1
}

// EncodeButtonEventNotification builds a notification payload from raw
// updates. The client never sends one; the simulated button in tests
// does.
func EncodeButtonEventNotification(pressCounter uint32, updates []RawButtonUpdate) []byte {
	out := make([]byte, 4, 4+len(updates)*buttonEventEntrySize)
	binary.LittleEndian.PutUint32(out, pressCounter)
	for _, u := range updates {
		var entry [buttonEventEntrySize]byte
		for i := 0; i < 6; i++ {
			entry[i] = byte(u.TimestampTicks >> (8 * i))
		}
		if u.IsDown {
			entry[6] = 1
		}
		if u.WasQueued {
			entry[6] |= 1 << 4
		}
		out = append(out, entry[:]...)
	}
	return out
}
