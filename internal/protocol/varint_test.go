package protocol

import (
	"bytes"
	"errors"
	"testing"
)

func TestUvarint(t *testing.T) {
	tests := []struct {
		value uint64
		want  []byte
	}{
		{0, []byte{0x00}},
		{1, []byte{0x01}},
		{127, []byte{0x7F}},
		{128, []byte{0x80, 0x01}},
		{300, []byte{0xAC, 0x02}},
		{16383, []byte{0xFF, 0x7F}},
		{16384, []byte{0x80, 0x80, 0x01}},
		{1 << 35, []byte{0x80, 0x80, 0x80, 0x80, 0x80, 0x01}},
	}

	for _, tt := range tests {
		got := AppendUvarint(nil, tt.value)
		if !bytes.Equal(got, tt.want) {
			t.Errorf("AppendUvarint(%d) = %x, want %x", tt.value, got, tt.want)
		}
		if n := UvarintLen(tt.value); n != len(tt.want) {
			t.Errorf("UvarintLen(%d) = %d, want %d", tt.value, n, len(tt.want))
		}
		v, n, err := DecodeUvarint(append(got, 0xEE))
		if err != nil {
			t.Fatalf("DecodeUvarint(%x) error = %v", got, err)
		}
		if v != tt.value || n != len(tt.want) {
			t.Errorf("DecodeUvarint(%x) = %d, %d; want %d, %d", got, v, n, tt.value, len(tt.want))
		}
	}
}

func TestUvarintMax(t *testing.T) {
	enc := AppendUvarint(nil, ^uint64(0))
	if len(enc) != MaxVarintLen {
		t.Fatalf("max uint64 encoded in %d bytes, want %d", len(enc), MaxVarintLen)
	}
	v, _, err := DecodeUvarint(enc)
	if err != nil || v != ^uint64(0) {
		t.Fatalf("DecodeUvarint(max) = %d, %v", v, err)
	}
}

func TestDecodeUvarintErrors(t *testing.T) {
	overflow := bytes.Repeat([]byte{0xFF}, 11)
	if _, _, err := DecodeUvarint(overflow); !errors.Is(err, ErrVarintOverflow) {
		t.Errorf("11-byte varint error = %v, want ErrVarintOverflow", err)
	}
	if _, _, err := DecodeUvarint([]byte{0x80, 0x80}); !errors.Is(err, ErrTruncated) {
		t.Errorf("unterminated varint error = %v, want ErrTruncated", err)
	}
	if _, _, err := DecodeUvarint(nil); !errors.Is(err, ErrTruncated) {
		t.Errorf("empty varint error = %v, want ErrTruncated", err)
	}
}

func TestStringReplacesInvalidUTF8(t *testing.T) {
	if got := DecodeString([]byte{'a', 0xFF, 'b'}); got != "a�b" {
		t.Errorf("DecodeString() = %q", got)
	}
	if got := EncodeString("héllo"); !bytes.Equal(got, []byte("héllo")) {
		t.Errorf("EncodeString() = %x", got)
	}
}
