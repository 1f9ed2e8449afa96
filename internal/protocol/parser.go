package protocol

import (
	"encoding/binary"
	"fmt"
)

// messageReader walks the bytes of an inner message. Every read checks the
// remaining length first and reports ErrTruncated instead of panicking.
type messageReader struct {
	data   []byte
	offset int
}

func newMessageReader(data []byte) *messageReader {
	return &messageReader{data: data}
}

func (r *messageReader) remaining() int {
	return len(r.data) - r.offset
}

func (r *messageReader) readByte(field string) (byte, error) {
	if r.remaining() < 1 {
		return 0, fmt.Errorf("read %s at offset %d: %w", field, r.offset, ErrTruncated)
	}
	v := r.data[r.offset]
	r.offset++
	return v, nil
}

func (r *messageReader) readUint16(field string) (uint16, error) {
	if r.remaining() < 2 {
		return 0, fmt.Errorf("read %s at offset %d: %w", field, r.offset, ErrTruncated)
	}
	v := binary.BigEndian.Uint16(r.data[r.offset:])
	r.offset += 2
	return v, nil
}

func (r *messageReader) readUvarint(field string) (uint64, error) {
	v, n, err := DecodeUvarint(r.data[r.offset:])
	if err != nil {
		return 0, fmt.Errorf("read %s at offset %d: %w", field, r.offset, err)
	}
	r.offset += n
	return v, nil
}

// readShortString reads a string with a 1-byte length prefix.
// Format: [length:1][string bytes...]
func (r *messageReader) readShortString(field string) (string, error) {
	length, err := r.readByte(field + " length")
	if err != nil {
		return "", err
	}
	if length == 0 {
		return "", nil
	}
	if r.remaining() < int(length) {
		return "", fmt.Errorf("read %s: want %d bytes, have %d: %w", field, length, r.remaining(), ErrTruncated)
	}
	s := DecodeString(r.data[r.offset : r.offset+int(length)])
	r.offset += int(length)
	return s, nil
}

// rest returns a copy of the unread bytes.
func (r *messageReader) rest() []byte {
	out := make([]byte, r.remaining())
	copy(out, r.data[r.offset:])
	return out
}
