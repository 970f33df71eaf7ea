package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"
	"tinygo.org/x/bluetooth"
)

// GATT UUIDs of the Flic 2 button service.
const (
	ServiceUUIDString = "00420000-8f59-4420-870d-84f3b617e493"
	WriteUUIDString   = "00420001-8f59-4420-870d-84f3b617e493"
	NotifyUUIDString  = "00420002-8f59-4420-870d-84f3b617e493"
)

var (
	serviceUUID = mustParseUUID(ServiceUUIDString)
	writeUUID   = mustParseUUID(WriteUUIDString)
	notifyUUID  = mustParseUUID(NotifyUUIDString)
)

func mustParseUUID(s string) bluetooth.UUID {
	u, err := bluetooth.ParseUUID(s)
	if err != nil {
		panic(fmt.Sprintf("transport: bad uuid %q: %v", s, err))
	}
	return u
}

// bleBufferSize is how many notifications the BLE link buffers before
// dropping. The radio callback must never block.
const bleBufferSize = 64

// BLEConfig configures a BLE link to one button.
type BLEConfig struct {
	// Address is the button's device address. Required.
	Address Address

	// AddressIsRandom marks the address as a static random address.
	AddressIsRandom bool

	// Adapter overrides the HCI adapter. Nil means the default adapter.
	Adapter *bluetooth.Adapter

	// LoggerFactory creates the link logger. Nil disables logging.
	LoggerFactory logging.LoggerFactory
}

// BLE is a Transport over a BLE GATT connection. Outbound packets go
// to the write characteristic as write-without-response; inbound
// packets arrive as notifications on the notify characteristic.
type BLE struct {
	adapter *bluetooth.Adapter
	address Address
	random  bool
	log     logging.LeveledLogger

	mu            sync.Mutex
	connected     bool
	closed        bool
	device        bluetooth.Device
	writeChar     bluetooth.DeviceCharacteristic
	writeSize     int
	notifications chan []byte
}

// NewBLE creates an unconnected BLE link.
func NewBLE(config BLEConfig) *BLE {
	b := &BLE{
		adapter:       config.Adapter,
		address:       config.Address,
		random:        config.AddressIsRandom,
		writeSize:     DefaultWriteSize,
		notifications: make(chan []byte, bleBufferSize),
	}
	if b.adapter == nil {
		b.adapter = bluetooth.DefaultAdapter
	}
	if config.LoggerFactory != nil {
		b.log = config.LoggerFactory.NewLogger("ble")
	}
	return b
}

// Connect establishes the GATT connection, discovers the button
// service and enables notifications.
func (b *BLE) Connect(ctx context.Context) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if b.connected {
		b.mu.Unlock()
		return ErrAlreadyConnected
	}
	b.mu.Unlock()

	if err := b.adapter.Enable(); err != nil {
		return fmt.Errorf("enable adapter: %w", err)
	}

	var mac bluetooth.MAC
	copy(mac[:], b.address[:])
	addr := bluetooth.Address{MACAddress: bluetooth.MACAddress{MAC: mac}}
	addr.SetRandom(b.random)

	params := bluetooth.ConnectionParams{}
	if deadline, ok := ctx.Deadline(); ok {
		params.ConnectionTimeout = bluetooth.NewDuration(time.Until(deadline))
	}

	device, err := b.adapter.Connect(addr, params)
	if err != nil {
		return fmt.Errorf("connect %s: %w", b.address, err)
	}

	writeChar, notifyChar, err := b.discover(device)
	if err != nil {
		device.Disconnect()
		return err
	}

	if err := notifyChar.EnableNotifications(b.onNotify); err != nil {
		device.Disconnect()
		return fmt.Errorf("enable notifications: %w", err)
	}

	writeSize := DefaultWriteSize
	if mtu, err := writeChar.GetMTU(); err == nil && int(mtu) > 3 {
		writeSize = int(mtu) - 3
	}

	b.mu.Lock()
	b.connected = true
	b.device = device
	b.writeChar = writeChar
	b.writeSize = writeSize
	b.mu.Unlock()

	if b.log != nil {
		b.log.Infof("connected to %s, write size %d", b.address, writeSize)
	}
	return nil
}

// discover finds the button service and its two characteristics.
func (b *BLE) discover(device bluetooth.Device) (writeChar, notifyChar bluetooth.DeviceCharacteristic, err error) {
	services, err := device.DiscoverServices([]bluetooth.UUID{serviceUUID})
	if err != nil || len(services) == 0 {
		return writeChar, notifyChar, ErrServiceNotFound
	}

	chars, err := services[0].DiscoverCharacteristics([]bluetooth.UUID{writeUUID, notifyUUID})
	if err != nil || len(chars) < 2 {
		return writeChar, notifyChar, ErrCharacteristicNotFound
	}
	for _, c := range chars {
		switch c.UUID() {
		case writeUUID:
			writeChar = c
		case notifyUUID:
			notifyChar = c
		}
	}
	return writeChar, notifyChar, nil
}

// onNotify runs on the radio callback goroutine and must not block.
// The mutex orders it against Close so the channel is never written
// after it is closed.
func (b *BLE) onNotify(buf []byte) {
	chunk := make([]byte, len(buf))
	copy(chunk, buf)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	select {
	case b.notifications <- chunk:
	default:
		if b.log != nil {
			b.log.Warnf("notification buffer full, dropping %d bytes", len(buf))
		}
	}
}

// Send writes one chunk as a write-without-response.
func (b *BLE) Send(ctx context.Context, data []byte) error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return ErrClosed
	}
	if !b.connected {
		b.mu.Unlock()
		return ErrNotConnected
	}
	writeChar := b.writeChar
	writeSize := b.writeSize
	b.mu.Unlock()

	if len(data) > writeSize {
		return ErrWriteTooLarge
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if _, err := writeChar.WriteWithoutResponse(data); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	return nil
}

// Notifications returns the inbound chunk channel.
func (b *BLE) Notifications() <-chan []byte {
	return b.notifications
}

// WriteSize returns the usable write payload for the connection.
func (b *BLE) WriteSize() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.writeSize
}

// Close disconnects and closes the notification channel.
func (b *BLE) Close() error {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return nil
	}
	b.closed = true
	wasConnected := b.connected
	b.connected = false
	device := b.device
	close(b.notifications)
	b.mu.Unlock()

	if wasConnected {
		return device.Disconnect()
	}
	return nil
}

var _ Transport = (*BLE)(nil)
