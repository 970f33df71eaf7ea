package event

import (
	"sync"
	"time"

	"github.com/pion/logging"
)

// Clock abstracts time for the dispatcher so classification windows
// can be tested deterministically.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a cancelable pending callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }
func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// SystemClock returns the wall clock.
func SystemClock() Clock { return systemClock{} }

// Update is one raw state change handed to the dispatcher, already
// decoded from the wire.
type Update struct {
	// IsDown is true for a press.
	IsDown bool

	// Queued is true for an update replayed from the button's
	// offline queue.
	Queued bool

	// Age is how old the update is, per the button's own record.
	// Zero for live updates.
	Age time.Duration
}

// Config configures a Dispatcher.
type Config struct {
	// Handler receives every classified event, in order. Required.
	Handler func(ButtonEvent)

	// HoldThreshold overrides DefaultHoldThreshold when > 0.
	HoldThreshold time.Duration

	// DoubleClickWindow overrides DefaultDoubleClickWindow when > 0.
	DoubleClickWindow time.Duration

	// Clock overrides the wall clock. Nil means SystemClock.
	Clock Clock

	// LoggerFactory creates the dispatcher logger. Nil disables
	// logging.
	LoggerFactory logging.LoggerFactory
}

// pendingClick is a click waiting out the double-click window.
type pendingClick struct {
	eventTime time.Time
	deadline  time.Time
	queued    bool
	age       float64
	timer     Timer
}

// Dispatcher classifies raw updates into semantic events.
//
// Live updates are timed with the clock. Queued updates carry their
// own age, so their true event times are reconstructed and the
// classification windows are applied on the button's timeline, not on
// arrival order at the host. After feeding a queued batch, call Flush
// to resolve a click whose double-click window already lies in the
// past.
//
// Dispatcher is safe for concurrent use, though inbound updates are
// expected to arrive serialized.
type Dispatcher struct {
	mu sync.Mutex

	handler           func(ButtonEvent)
	holdThreshold     time.Duration
	doubleClickWindow time.Duration
	clock             Clock
	log               logging.LeveledLogger

	isDown   bool
	downTime time.Time
	pending  *pendingClick
}

// NewDispatcher creates a Dispatcher.
func NewDispatcher(config Config) *Dispatcher {
	d := &Dispatcher{
		handler:           config.Handler,
		holdThreshold:     config.HoldThreshold,
		doubleClickWindow: config.DoubleClickWindow,
		clock:             config.Clock,
	}
	if d.holdThreshold <= 0 {
		d.holdThreshold = DefaultHoldThreshold
	}
	if d.doubleClickWindow <= 0 {
		d.doubleClickWindow = DefaultDoubleClickWindow
	}
	if d.clock == nil {
		d.clock = SystemClock()
	}
	if config.LoggerFactory != nil {
		d.log = config.LoggerFactory.NewLogger("events")
	}
	return d
}

// Handle consumes one raw update and emits the resulting events.
func (d *Dispatcher) Handle(u Update) {
	d.mu.Lock()
	var out []ButtonEvent
	emit := func(kind Kind) {
		out = append(out, ButtonEvent{Kind: kind, WasQueued: u.Queued, AgeSeconds: u.Age.Seconds()})
	}

	eventTime := d.clock.Now().Add(-u.Age)

	// A pending click whose window closed before this update's event
	// time resolves as a single click first, so ordering stays
	// consistent on the button's timeline.
	if d.pending != nil && eventTime.After(d.pending.deadline) {
		out = append(out, d.resolvePendingLocked())
	}

	if u.IsDown {
		emit(Down)
		d.isDown = true
		d.downTime = eventTime
	} else {
		emit(Up)
		if d.isDown {
			d.isDown = false
			held := eventTime.Sub(d.downTime)
			if held >= d.holdThreshold {
				emit(Hold)
			} else {
				emit(Click)
				out = append(out, d.registerClickLocked(eventTime, u)...)
			}
		}
	}

	if d.log != nil {
		for _, e := range out {
			d.log.Tracef("event: %s", e)
		}
	}
	handler := d.handler
	d.mu.Unlock()

	for _, e := range out {
		handler(e)
	}
}

// registerClickLocked pairs a click with a pending one or starts a new
// double-click window.
func (d *Dispatcher) registerClickLocked(eventTime time.Time, u Update) []ButtonEvent {
	if d.pending != nil {
		// Second click inside the window: the pending single click is
		// replaced by one double click.
		if d.pending.timer != nil {
			d.pending.timer.Stop()
		}
		d.pending = nil
		return []ButtonEvent{{Kind: DoubleClick, WasQueued: u.Queued, AgeSeconds: u.Age.Seconds()}}
	}

	p := &pendingClick{
		eventTime: eventTime,
		deadline:  eventTime.Add(d.doubleClickWindow),
		queued:    u.Queued,
		age:       u.Age.Seconds(),
	}
	d.pending = p

	// Arm a wall-clock timer only when the window reaches into the
	// future; a window already in the past (old queued click) is
	// resolved by the next update or by Flush.
	if delay := p.deadline.Sub(d.clock.Now()); delay > 0 {
		p.timer = d.clock.AfterFunc(delay, func() { d.expire(p) })
	}
	return nil
}

// expire is the double-click window timer callback.
func (d *Dispatcher) expire(p *pendingClick) {
	d.mu.Lock()
	if d.pending != p {
		d.mu.Unlock()
		return
	}
	e := d.resolvePendingLocked()
	handler := d.handler
	d.mu.Unlock()
	handler(e)
}

// resolvePendingLocked turns the pending click into a single click.
func (d *Dispatcher) resolvePendingLocked() ButtonEvent {
	p := d.pending
	if p.timer != nil {
		p.timer.Stop()
	}
	d.pending = nil
	return ButtonEvent{Kind: SingleClick, WasQueued: p.queued, AgeSeconds: p.age}
}

// Flush resolves a pending click whose window has already elapsed.
// Call after feeding a batch of queued updates.
func (d *Dispatcher) Flush() {
	d.mu.Lock()
	if d.pending == nil || d.clock.Now().Before(d.pending.deadline) {
		d.mu.Unlock()
		return
	}
	e := d.resolvePendingLocked()
	handler := d.handler
	d.mu.Unlock()
	handler(e)
}

// Reset drops all classification state. Called on disconnect so a
// half-open press never leaks into the next connection.
func (d *Dispatcher) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pending != nil && d.pending.timer != nil {
		d.pending.timer.Stop()
	}
	d.pending = nil
	d.isDown = false
}
