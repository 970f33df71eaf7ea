package transport

import (
	"context"
	"sync"
)

// pipeBufferSize is how many chunks a pipe endpoint buffers before
// Send blocks.
const pipeBufferSize = 64

// PipeConfig configures a pipe pair.
type PipeConfig struct {
	// WriteSize is the largest chunk either end accepts.
	// Default: DefaultWriteSize.
	WriteSize int
}

// Pipe is one end of an in-memory transport pair. It implements
// Transport with the same chunk semantics as the BLE link, so
// fragmentation logic can be exercised without radio hardware.
type Pipe struct {
	writeSize int
	out       chan<- []byte
	in        chan []byte

	mu        sync.Mutex
	connected bool
	closed    bool
	done      chan struct{} // shared by both ends
	closeDone func()        // closes done once, shared by both ends
	closeOut  func()        // closes the peer's inbound channel once
}

// NewPipe creates a connected pair of pipe endpoints with default
// configuration.
func NewPipe() (*Pipe, *Pipe) {
	return NewPipeWithConfig(PipeConfig{})
}

// NewPipeWithConfig creates a connected pair of pipe endpoints.
func NewPipeWithConfig(config PipeConfig) (*Pipe, *Pipe) {
	writeSize := config.WriteSize
	if writeSize <= 0 {
		writeSize = DefaultWriteSize
	}

	aToB := make(chan []byte, pipeBufferSize)
	bToA := make(chan []byte, pipeBufferSize)
	done := make(chan struct{})

	var closeAtoB, closeBtoA, doneOnce sync.Once
	closeDone := func() { doneOnce.Do(func() { close(done) }) }
	a := &Pipe{
		writeSize: writeSize,
		out:       aToB,
		in:        bToA,
		done:      done,
		closeDone: closeDone,
		closeOut:  func() { closeAtoB.Do(func() { close(aToB) }) },
	}
	b := &Pipe{
		writeSize: writeSize,
		out:       bToA,
		in:        aToB,
		done:      done,
		closeDone: closeDone,
		closeOut:  func() { closeBtoA.Do(func() { close(bToA) }) },
	}
	return a, b
}

// Connect marks the endpoint connected. A pipe carries no handshake.
func (p *Pipe) Connect(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	if p.connected {
		return ErrAlreadyConnected
	}
	p.connected = true
	return nil
}

// Send delivers one chunk to the peer.
func (p *Pipe) Send(ctx context.Context, data []byte) error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return ErrClosed
	}
	if !p.connected {
		p.mu.Unlock()
		return ErrNotConnected
	}
	p.mu.Unlock()

	if len(data) > p.writeSize {
		return ErrWriteTooLarge
	}

	chunk := make([]byte, len(data))
	copy(chunk, data)

	select {
	case p.out <- chunk:
		return nil
	case <-p.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notifications returns the inbound chunk channel. The channel is
// closed when the peer closes its end.
func (p *Pipe) Notifications() <-chan []byte {
	return p.in
}

// WriteSize returns the largest chunk Send accepts.
func (p *Pipe) WriteSize() int {
	return p.writeSize
}

// Close tears down both directions of the pair.
func (p *Pipe) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil
	}
	p.closed = true
	p.connected = false
	p.mu.Unlock()

	p.closeDone()
	p.closeOut()
	return nil
}

var _ Transport = (*Pipe)(nil)
