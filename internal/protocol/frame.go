package protocol

import "fmt"

// Frame is one outer envelope on the wire.
//
//	+------+-------------+------------------+
//	| type | body length |       body       |
//	+------+-------------+------------------+
//	  1 B    3 B (BE)       length bytes
type Frame struct {
	Type PacketType
	Body []byte
}

// EncodeFrame writes the 4-byte header followed by body.
// The type byte is written as given; validity is the caller's concern.
func EncodeFrame(t PacketType, body []byte) ([]byte, error) {
	length := len(body)
	if length > MaxBodySize {
		return nil, fmt.Errorf("encode %s frame of %d bytes: %w", t, length, ErrBodyTooLarge)
	}

	buf := make([]byte, HeaderSize+length)
	buf[0] = byte(t)
	buf[1] = byte(length >> 16)
	buf[2] = byte(length >> 8)
	buf[3] = byte(length)
	copy(buf[HeaderSize:], body)
	return buf, nil
}

// DecodeFrames splits data into as many complete frames as it holds.
// Whatever follows the last complete frame (a short header or a body that has
// not fully arrived) is returned as remainder and must be prepended to the
// next read. Frame bodies are copies; they do not alias data.
func DecodeFrames(data []byte) (frames []Frame, remainder []byte) {
	offset := 0
	for len(data)-offset >= HeaderSize {
		length := int(data[offset+1])<<16 | int(data[offset+2])<<8 | int(data[offset+3])
		end := offset + HeaderSize + length
		if end > len(data) {
			break
		}

		body := make([]byte, length)
		copy(body, data[offset+HeaderSize:end])
		frames = append(frames, Frame{Type: PacketType(data[offset]), Body: body})
		offset = end
	}

	if offset < len(data) {
		remainder = data[offset:]
	}
	return frames, remainder
}

// Deframer turns a stream of arbitrarily split reads into frames.
// It is not safe for concurrent use.
type Deframer struct {
	pending []byte
}

// Feed appends chunk to the buffered tail and returns every frame that is now
// complete, in arrival order.
func (d *Deframer) Feed(chunk []byte) []Frame {
	var data []byte
	if len(d.pending) == 0 {
		data = chunk
	} else {
		data = make([]byte, 0, len(d.pending)+len(chunk))
		data = append(data, d.pending...)
		data = append(data, chunk...)
	}

	frames, rest := DecodeFrames(data)

	// Keep our own copy so the caller may reuse chunk.
	d.pending = append(d.pending[:0:0], rest...)
	return frames
}

// Buffered returns the number of bytes held back waiting for more data.
func (d *Deframer) Buffered() int {
	return len(d.pending)
}

// Reset drops any partial frame, e.g. when the connection is replaced.
func (d *Deframer) Reset() {
	d.pending = nil
}
