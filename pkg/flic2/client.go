// Package flic2 is the high-level client for one Flic 2 button: it
// runs the verify handshakes, keeps the signed session alive, and
// turns raw packets into classified button events.
package flic2

import (
	"context"
	"crypto/ed25519"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/bleasdale/flic2/pkg/crypto"
	"github.com/bleasdale/flic2/pkg/event"
	"github.com/bleasdale/flic2/pkg/packet"
	"github.com/bleasdale/flic2/pkg/pairing"
	"github.com/bleasdale/flic2/pkg/session"
	"github.com/bleasdale/flic2/pkg/storage"
	"github.com/bleasdale/flic2/pkg/transport"
)

// handshakeBuffer bounds packets queued for the pairing machine.
const handshakeBuffer = 8

// Config configures a Client.
type Config struct {
	// Transport is the link to the button. Required. The client owns
	// it after New and closes it on Close.
	Transport transport.Transport

	// Address is the button's device address. Used as the storage key.
	Address transport.Address

	// Store persists pairing credentials. Nil means nothing is
	// persisted and only Full Verify is possible.
	Store storage.Store

	// ButtonPublicKey overrides the manufacturer identity key.
	ButtonPublicKey ed25519.PublicKey

	// MacFailureLimit overrides the session's consecutive signature
	// failure limit.
	MacFailureLimit int

	// HoldThreshold and DoubleClickWindow tune event classification.
	HoldThreshold     time.Duration
	DoubleClickWindow time.Duration

	// Clock overrides the event clock. Nil means the wall clock.
	Clock event.Clock

	// OnEvent receives classified button events. Listen replaces it.
	OnEvent func(event.ButtonEvent)

	// OnDisconnect is called when the button ends the link at the
	// protocol level.
	OnDisconnect func(packet.DisconnectReason)

	// OnBattery is called with the battery level from handshake and
	// events-init responses.
	OnBattery func(level uint8)

	// LoggerFactory creates the client logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// Client drives one button connection. Safe for concurrent use;
// inbound handling runs on the client's own pump goroutine.
type Client struct {
	transportLink transport.Transport
	address       transport.Address
	store         storage.Store
	buttonKey     ed25519.PublicKey
	macLimit      int
	loggerFactory logging.LoggerFactory
	log           logging.LeveledLogger

	onDisconnect func(packet.DisconnectReason)
	onBattery    func(level uint8)

	dispatcher *event.Dispatcher

	mu          sync.Mutex
	onEvent     func(event.ButtonEvent)
	closed      bool
	connected   bool
	sess        *session.Session
	machine     *pairing.Machine
	handshakeCh chan *packet.Packet
	waiters     map[packet.Opcode]chan *packet.Packet
	reassembler packet.Reassembler
	creds       *storage.Credentials

	stop   chan struct{}
	pumpWG sync.WaitGroup
}

// New creates a Client over an unconnected transport.
func New(config Config) (*Client, error) {
	if config.Transport == nil {
		return nil, errors.New("flic2: config needs a transport")
	}

	c := &Client{
		transportLink: config.Transport,
		address:       config.Address,
		store:         config.Store,
		buttonKey:     config.ButtonPublicKey,
		macLimit:      config.MacFailureLimit,
		loggerFactory: config.LoggerFactory,
		onEvent:       config.OnEvent,
		onDisconnect:  config.OnDisconnect,
		onBattery:     config.OnBattery,
		waiters:       make(map[packet.Opcode]chan *packet.Packet),
		stop:          make(chan struct{}),
	}
	if config.LoggerFactory != nil {
		c.log = config.LoggerFactory.NewLogger("flic2")
	}
	c.dispatcher = event.NewDispatcher(event.Config{
		Handler:           c.emitEvent,
		HoldThreshold:     config.HoldThreshold,
		DoubleClickWindow: config.DoubleClickWindow,
		Clock:             config.Clock,
		LoggerFactory:     config.LoggerFactory,
	})
	return c, nil
}

// Connect establishes the transport link and starts inbound handling.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	if c.connected {
		c.mu.Unlock()
		return transport.ErrAlreadyConnected
	}
	c.mu.Unlock()

	if err := c.transportLink.Connect(ctx); err != nil {
		return err
	}

	c.mu.Lock()
	c.connected = true
	c.mu.Unlock()

	c.pumpWG.Add(1)
	go c.pump()
	return nil
}

// Listen replaces the event handler.
func (c *Client) Listen(handler func(event.ButtonEvent)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = handler
}

// Credentials returns the pairing credentials in use, if any.
func (c *Client) Credentials() *storage.Credentials {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.creds == nil {
		return nil
	}
	out := *c.creds
	return &out
}

// emitEvent fans a classified event out to the registered handler.
func (c *Client) emitEvent(e event.ButtonEvent) {
	c.mu.Lock()
	handler := c.onEvent
	c.mu.Unlock()
	if handler != nil {
		handler(e)
	}
}

// pump is the inbound goroutine: it reassembles link chunks into
// packets and routes them.
func (c *Client) pump() {
	defer c.pumpWG.Done()

	notifications := c.transportLink.Notifications()
loop:
	for {
		select {
		case chunk, ok := <-notifications:
			if !ok {
				break loop
			}
			c.handleChunk(chunk)
		case <-c.stop:
			break loop
		}
	}

	// Link is gone; nothing signed can be trusted to continue.
	c.mu.Lock()
	c.connected = false
	c.invalidateSessionLocked()
	c.mu.Unlock()
	c.persistCounters()
	c.dispatcher.Reset()
}

func (c *Client) handleChunk(chunk []byte) {
	p, err := packet.Decode(chunk)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("dropping undecodable chunk: %v", err)
		}
		return
	}

	c.mu.Lock()
	complete, err := c.reassembler.Feed(p)
	c.mu.Unlock()
	if err != nil {
		if c.log != nil {
			c.log.Warnf("fragment sequence interrupted: %v", err)
		}
		return
	}
	if complete == nil {
		return
	}
	c.route(complete)
}

// route verifies a complete packet against the live session and hands
// it to the handshake machine or the opcode handlers.
func (c *Client) route(p *packet.Packet) {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()

	if sess != nil && sess.Established() {
		wire, err := packet.Encode(p.Header, p.Opcode, p.Payload)
		if err != nil {
			return
		}
		verified, err := sess.VerifyInbound(wire)
		if err != nil {
			if c.log != nil {
				c.log.Warnf("inbound packet rejected: %v", err)
			}
			if errors.Is(err, session.ErrCounterDesync) {
				c.mu.Lock()
				c.invalidateSessionLocked()
				c.mu.Unlock()
			}
			return
		}
		p = verified
	}

	c.mu.Lock()
	if c.handshakeCh != nil {
		// Non-blocking send under the lock so the channel cannot be
		// closed out from under us.
		select {
		case c.handshakeCh <- p:
		default:
			if c.log != nil {
				c.log.Warnf("handshake queue full, dropping opcode 0x%02X", uint8(p.Opcode))
			}
		}
		c.mu.Unlock()
		return
	}
	c.mu.Unlock()

	switch p.Opcode {
	case packet.OpButtonEventNotification:
		c.handleButtonEvents(p.Payload)
	case packet.OpDisconnectedLink:
		c.handleDisconnect(p.Payload)
	default:
		c.deliverToWaiter(p)
	}
}

func (c *Client) deliverToWaiter(p *packet.Packet) {
	c.mu.Lock()
	ch, ok := c.waiters[p.Opcode]
	if ok {
		delete(c.waiters, p.Opcode)
	}
	c.mu.Unlock()

	if ok {
		ch <- p
		return
	}
	if c.log != nil {
		c.log.Debugf("unhandled opcode 0x%02X (%d bytes)", uint8(p.Opcode), len(p.Payload))
	}
}

// handleButtonEvents feeds one notification's updates through the
// dispatcher. Queued updates get their age from the button's own tick
// clock, measured against the newest update in the batch.
func (c *Client) handleButtonEvents(payload []byte) {
	updates, err := packet.DecodeButtonEventNotification(payload)
	if err != nil {
		if c.log != nil {
			c.log.Warnf("bad event notification: %v", err)
		}
		return
	}
	if len(updates) == 0 {
		return
	}

	var reference uint64
	for _, u := range updates {
		if u.TimestampTicks > reference {
			reference = u.TimestampTicks
		}
	}

	queued := false
	for _, u := range updates {
		age := time.Duration(0)
		if u.WasQueued {
			queued = true
			age = time.Duration(u.AgeSeconds(reference) * float64(time.Second))
		}
		c.dispatcher.Handle(event.Update{
			IsDown: u.IsDown,
			Queued: u.WasQueued,
			Age:    age,
		})
	}
	if queued {
		c.dispatcher.Flush()
	}

	c.mu.Lock()
	if c.creds != nil && len(updates) > 0 {
		c.creds.LastEventCount = updates[len(updates)-1].PressCounter
	}
	c.mu.Unlock()
}

func (c *Client) handleDisconnect(payload []byte) {
	reason := packet.DecodeDisconnectReason(payload)
	if c.log != nil {
		c.log.Infof("button disconnected: %s", reason)
	}

	c.mu.Lock()
	c.invalidateSessionLocked()
	c.mu.Unlock()
	c.persistCounters()

	if c.onDisconnect != nil {
		c.onDisconnect(reason)
	}
}

// invalidateSessionLocked closes the session and fails any pending
// waiters and handshake.
func (c *Client) invalidateSessionLocked() {
	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}
	if c.handshakeCh != nil {
		close(c.handshakeCh)
		c.handshakeCh = nil
	}
	for op, ch := range c.waiters {
		close(ch)
		delete(c.waiters, op)
	}
}

// persistCounters writes updated event counters back to the store.
func (c *Client) persistCounters() {
	c.mu.Lock()
	store := c.store
	var creds *storage.Credentials
	if c.creds != nil {
		cc := *c.creds
		creds = &cc
	}
	c.mu.Unlock()

	if store == nil || creds == nil || !creds.Valid() {
		return
	}
	if err := store.Save(creds); err != nil && c.log != nil {
		c.log.Warnf("persisting credentials failed: %v", err)
	}
}

// beginHandshake installs the pairing machine and its packet queue.
func (c *Client) beginHandshake() (*pairing.Machine, chan *packet.Packet, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil, nil, ErrClosed
	}
	if !c.connected {
		return nil, nil, ErrNotConnected
	}
	if c.machine != nil {
		return nil, nil, ErrHandshakeActive
	}
	if c.sess != nil {
		c.sess.Close()
		c.sess = nil
	}

	m := pairing.New(pairing.Config{
		ButtonPublicKey: c.buttonKey,
		LoggerFactory:   c.loggerFactory,
	})
	ch := make(chan *packet.Packet, handshakeBuffer)
	c.machine = m
	c.handshakeCh = ch
	return m, ch, nil
}

// endHandshake removes the pairing machine and wipes it.
func (c *Client) endHandshake(m *pairing.Machine) {
	m.Close()
	c.mu.Lock()
	if c.machine == m {
		c.machine = nil
		if c.handshakeCh != nil {
			close(c.handshakeCh)
			c.handshakeCh = nil
		}
	}
	c.mu.Unlock()
}

// FullVerify pairs with the button from scratch. On success the
// session is live, the credentials are persisted (when a store is
// configured) and returned.
func (c *Client) FullVerify(ctx context.Context) (*storage.Credentials, error) {
	m, ch, err := c.beginHandshake()
	if err != nil {
		return nil, err
	}
	defer c.endHandshake(m)

	out, err := m.StartFullVerify()
	if err != nil {
		return nil, err
	}
	if err := c.sendUnsigned(ctx, 0, out); err != nil {
		return nil, err
	}

	result, err := c.runHandshake(ctx, m, ch)
	if err != nil {
		return nil, err
	}

	creds := &storage.Credentials{
		Address:    c.address,
		PairingID:  result.PairingID,
		PairingKey: result.PairingKey,
	}
	if result.Info != nil {
		creds.ButtonUUID = result.Info.UUID
		creds.Name = result.Info.Name
		creds.SerialNumber = result.Info.SerialNumber
		creds.FirmwareVersion = result.Info.FirmwareVersion
	}

	// Persisting must succeed before the pairing is reported done;
	// losing the pairing key would strand the button.
	if c.store != nil {
		if err := c.store.Save(creds); err != nil {
			return nil, fmt.Errorf("flic2: persisting credentials: %w", err)
		}
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()

	if c.onBattery != nil && result.Info != nil {
		c.onBattery(result.Info.BatteryLevel)
	}

	out2 := *creds
	return &out2, nil
}

// QuickVerify resumes a stored pairing. Credentials come from the
// store unless already loaded.
func (c *Client) QuickVerify(ctx context.Context) error {
	creds := c.Credentials()
	if creds == nil {
		if c.store == nil {
			return ErrNoCredentials
		}
		loaded, err := c.store.Load(c.address)
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNoCredentials
		}
		if err != nil {
			return err
		}
		creds = loaded
	}

	m, ch, err := c.beginHandshake()
	if err != nil {
		return err
	}
	defer c.endHandshake(m)

	out, err := m.StartQuickVerify(creds.PairingID, creds.PairingKey)
	if err != nil {
		return err
	}
	if err := c.sendUnsigned(ctx, 0, out); err != nil {
		return err
	}

	if _, err := c.runHandshake(ctx, m, ch); err != nil {
		return err
	}

	c.mu.Lock()
	c.creds = creds
	c.mu.Unlock()
	return nil
}

// runHandshake feeds handshake packets through the machine until it
// completes, sending replies and starting the session as soon as the
// session key exists.
func (c *Client) runHandshake(ctx context.Context, m *pairing.Machine, ch chan *packet.Packet) (*pairing.Result, error) {
	for {
		var p *packet.Packet
		select {
		case got, ok := <-ch:
			if !ok {
				return nil, ErrDisconnected
			}
			p = got
		case <-ctx.Done():
			return nil, ctx.Err()
		}

		reply, done, err := m.HandleMessage(p)
		if err != nil {
			return nil, err
		}
		if reply != nil {
			// The button signs everything after it sees this reply,
			// so the session must exist before the reply goes out.
			if key, ok := m.SessionKey(); ok {
				if err := c.startSession(key, p.Header.ConnID); err != nil {
					return nil, err
				}
			}
			if err := c.sendUnsigned(ctx, p.Header.ConnID, *reply); err != nil {
				return nil, err
			}
		}
		if done {
			result, err := m.Result()
			if err != nil {
				return nil, err
			}
			c.mu.Lock()
			established := c.sess != nil
			c.mu.Unlock()
			if !established {
				if err := c.startSession(result.SessionKey, result.ConnID); err != nil {
					return nil, err
				}
			}
			return result, nil
		}
	}
}

func (c *Client) startSession(key [crypto.SessionKeySize]byte, connID uint8) error {
	sess, err := session.New(session.Config{
		Key:             key,
		ConnID:          connID,
		MacFailureLimit: c.macLimit,
		LoggerFactory:   c.loggerFactory,
	})
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.sess != nil {
		c.sess.Close()
	}
	c.sess = sess
	c.mu.Unlock()
	return nil
}

// sendUnsigned fragments and sends a handshake message.
func (c *Client) sendUnsigned(ctx context.Context, connID uint8, out pairing.Outgoing) error {
	chunks, err := packet.Fragment(packet.Header{ConnID: connID}, out.Opcode, out.Payload, c.transportLink.WriteSize())
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := c.transportLink.Send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// sendSigned signs, fragments and sends a session packet.
func (c *Client) sendSigned(ctx context.Context, opcode packet.Opcode, payload []byte) error {
	c.mu.Lock()
	sess := c.sess
	c.mu.Unlock()
	if sess == nil {
		return ErrNoSession
	}

	wire, err := sess.SignOutbound(opcode, payload)
	if err != nil {
		return err
	}
	chunks, err := packet.Fragment(packet.DecodeHeader(wire[0]), packet.Opcode(wire[1]), wire[2:], c.transportLink.WriteSize())
	if err != nil {
		return err
	}
	for _, chunk := range chunks {
		if err := c.transportLink.Send(ctx, chunk); err != nil {
			return err
		}
	}
	return nil
}

// request sends a signed packet and waits for one of the given
// response opcodes.
func (c *Client) request(ctx context.Context, opcode packet.Opcode, payload []byte, respOps ...packet.Opcode) (*packet.Packet, error) {
	ch := make(chan *packet.Packet, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil, ErrClosed
	}
	for _, op := range respOps {
		if _, busy := c.waiters[op]; busy {
			c.mu.Unlock()
			return nil, fmt.Errorf("flic2: request for opcode 0x%02X already pending", uint8(op))
		}
	}
	for _, op := range respOps {
		c.waiters[op] = ch
	}
	c.mu.Unlock()

	cleanup := func() {
		c.mu.Lock()
		for _, op := range respOps {
			if c.waiters[op] == ch {
				delete(c.waiters, op)
			}
		}
		c.mu.Unlock()
	}

	if err := c.sendSigned(ctx, opcode, payload); err != nil {
		cleanup()
		return nil, err
	}

	select {
	case p, ok := <-ch:
		cleanup()
		if !ok {
			return nil, ErrDisconnected
		}
		return p, nil
	case <-ctx.Done():
		cleanup()
		return nil, ctx.Err()
	}
}

// InitEvents switches the connection into events-ready mode. Queued
// events recorded since the stored (bootID, eventCount) watermark
// replay as notifications after this returns; there is no separate
// pull API for history, it arrives on the event handler with
// WasQueued set.
func (c *Client) InitEvents(ctx context.Context) error {
	c.mu.Lock()
	var bootID, eventCount uint32
	if c.creds != nil {
		bootID = c.creds.LastBootID
		eventCount = c.creds.LastEventCount
	}
	c.mu.Unlock()

	msg := packet.DefaultInitButtonEvents(bootID, eventCount)
	resp, err := c.request(ctx, packet.OpInitButtonEvents, msg.Encode(),
		packet.OpInitButtonEventsResp, packet.OpInitButtonEventsNoBoot)
	if err != nil {
		return err
	}

	decoded, err := packet.DecodeInitButtonEventsResponse(resp.Payload)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if c.creds != nil {
		c.creds.LastBootID = decoded.BootID
		c.creds.LastEventCount = decoded.EventCount
	}
	c.mu.Unlock()
	c.persistCounters()

	if c.onBattery != nil {
		c.onBattery(decoded.BatteryLevel)
	}
	return nil
}

// Ping checks the signed channel end to end.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.request(ctx, packet.OpPingRequest, nil, packet.OpPingResponse)
	return err
}

// SetName renames the button.
func (c *Client) SetName(ctx context.Context, name string) error {
	msg := &packet.SetName{Name: name}
	if _, err := c.request(ctx, packet.OpSetName, msg.Encode(), packet.OpSetNameResponse); err != nil {
		return err
	}

	c.mu.Lock()
	if c.creds != nil {
		c.creds.Name = name
	}
	c.mu.Unlock()
	c.persistCounters()
	return nil
}

// Close tears everything down: transport, session, pending waiters.
func (c *Client) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()

	close(c.stop)
	err := c.transportLink.Close()
	c.pumpWG.Wait()

	c.mu.Lock()
	c.invalidateSessionLocked()
	c.mu.Unlock()
	c.dispatcher.Reset()
	return err
}
