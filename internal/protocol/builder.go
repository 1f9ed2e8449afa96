package protocol

import (
	"bytes"
	"encoding/binary"
	"fmt"
)

// MessageBuilder assembles the inner message of a data frame.
// Writes never fail; length checks happen in the Write* helpers that can
// overflow and are reported through the returned error.
type MessageBuilder struct {
	buf bytes.Buffer
}

// NewMessageBuilder creates a builder with room for size bytes.
func NewMessageBuilder(size int) *MessageBuilder {
	b := &MessageBuilder{}
	b.buf.Grow(size)
	return b
}

// WriteUint8 writes a single byte.
func (b *MessageBuilder) WriteUint8(v byte) *MessageBuilder {
	b.buf.WriteByte(v)
	return b
}

// WriteUint16 writes a uint16 in big-endian order.
func (b *MessageBuilder) WriteUint16(v uint16) *MessageBuilder {
	var tmp [2]byte
	binary.BigEndian.PutUint16(tmp[:], v)
	b.buf.Write(tmp[:])
	return b
}

// WriteUvarint writes v as a base-128 varint.
func (b *MessageBuilder) WriteUvarint(v uint64) *MessageBuilder {
	var tmp [MaxVarintLen]byte
	b.buf.Write(AppendUvarint(tmp[:0], v))
	return b
}

// WriteShortString writes a 1-byte length prefix followed by the UTF-8 bytes of s.
// Format: [length:1][string bytes...]
func (b *MessageBuilder) WriteShortString(s string) error {
	data := EncodeString(s)
	if len(data) > MaxRouteLength {
		return fmt.Errorf("route %.32q... is %d bytes: %w", s, len(data), ErrRouteTooLong)
	}
	b.buf.WriteByte(byte(len(data)))
	b.buf.Write(data)
	return nil
}

// WriteBytes writes raw bytes.
func (b *MessageBuilder) WriteBytes(data []byte) *MessageBuilder {
	b.buf.Write(data)
	return b
}

// Build returns the constructed message bytes.
func (b *MessageBuilder) Build() []byte {
	return b.buf.Bytes()
}
