package packet

// Fragment encodes an envelope as one or more link chunks no larger
// than maxChunk. Every chunk carries the header byte and opcode; all
// but the last set the fragment flag. The body passed in is everything
// after the opcode, signature included when there is one.
func Fragment(header Header, opcode Opcode, body []byte, maxChunk int) ([][]byte, error) {
	if maxChunk < MinEnvelopeSize+1 {
		return nil, ErrFieldSize
	}

	room := maxChunk - MinEnvelopeSize
	if len(body) <= room {
		wire, err := Encode(header, opcode, body)
		if err != nil {
			return nil, err
		}
		return [][]byte{wire}, nil
	}

	var chunks [][]byte
	for off := 0; off < len(body); off += room {
		end := off + room
		h := header
		if end < len(body) {
			h.Fragment = true
		} else {
			end = len(body)
			h.Fragment = false
		}
		wire, err := Encode(h, opcode, body[off:end])
		if err != nil {
			return nil, err
		}
		chunks = append(chunks, wire)
	}
	return chunks, nil
}
