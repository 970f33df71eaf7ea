package packet

// Reassembler accumulates fragmented payloads. Packets with the
// fragment flag set contribute their payload to the buffer; the first
// packet without the flag terminates the sequence and yields the
// combined packet. A sequence must stay on one connection id and one
// opcode; anything else interrupts it.
//
// Reassembler is not safe for concurrent use; the owning connection
// serializes inbound handling.
type Reassembler struct {
	active bool
	connID uint8
	opcode Opcode
	buf    []byte
}

// Feed consumes one decoded packet.
//
// Returns (complete, nil) when a packet is ready for processing: either
// p itself for an unfragmented packet, or the reassembled packet at
// the end of a fragment run. Returns (nil, nil) while accumulating.
//
// An interrupted sequence (connection id or opcode change mid-run)
// discards the partial buffer and returns ErrReassembly; the
// interrupting packet itself is dropped with it, and the reassembler
// is ready for the packet after that.
func (r *Reassembler) Feed(p *Packet) (*Packet, error) {
	if r.active && (p.Header.ConnID != r.connID || p.Opcode != r.opcode) {
		r.reset()
		return nil, ErrReassembly
	}

	if p.Header.Fragment {
		if !r.active {
			r.active = true
			r.connID = p.Header.ConnID
			r.opcode = p.Opcode
			r.buf = r.buf[:0]
		}
		r.buf = append(r.buf, p.Payload...)
		return nil, nil
	}

	if !r.active {
		return p, nil
	}

	// Terminating packet of a fragment run.
	payload := append(append([]byte{}, r.buf...), p.Payload...)
	complete := &Packet{
		Header:    p.Header,
		Opcode:    p.Opcode,
		Payload:   payload,
		Signature: p.Signature,
	}
	r.reset()
	return complete, nil
}

// Pending reports whether a fragment run is in progress.
func (r *Reassembler) Pending() bool {
	return r.active
}

func (r *Reassembler) reset() {
	r.active = false
	r.buf = r.buf[:0]
}
