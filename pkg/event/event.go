// Package event turns raw press/release updates from the button into
// classified semantic events: click, single click, double click and
// hold.
package event

import (
	"fmt"
	"time"
)

// Kind is the semantic classification of a button event.
type Kind int

const (
	// Up is emitted for every release.
	Up Kind = iota

	// Down is emitted for every press.
	Down

	// Click is a press released within the hold threshold. Every
	// click is later refined into SingleClick or DoubleClick.
	Click

	// SingleClick is a click with no second click inside the
	// double-click window.
	SingleClick

	// DoubleClick is two clicks within the double-click window.
	DoubleClick

	// Hold is a press held at least the hold threshold. Holds do not
	// participate in double-click pairing.
	Hold
)

func (k Kind) String() string {
	switch k {
	case Up:
		return "up"
	case Down:
		return "down"
	case Click:
		return "click"
	case SingleClick:
		return "single_click"
	case DoubleClick:
		return "double_click"
	case Hold:
		return "hold"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

// ButtonEvent is one classified event.
type ButtonEvent struct {
	Kind Kind

	// WasQueued is true when the underlying update was recorded while
	// the button was disconnected.
	WasQueued bool

	// AgeSeconds is how old the underlying update was on delivery.
	// Zero for live events.
	AgeSeconds float64
}

func (e ButtonEvent) String() string {
	if e.WasQueued {
		return fmt.Sprintf("%s (queued, age %.2fs)", e.Kind, e.AgeSeconds)
	}
	return e.Kind.String()
}

// Classification timing defaults.
const (
	// DefaultHoldThreshold separates a click from a hold.
	DefaultHoldThreshold = 1 * time.Second

	// DefaultDoubleClickWindow is how long a click stays eligible for
	// pairing into a double click.
	DefaultDoubleClickWindow = 500 * time.Millisecond
)
