package protocol

// MaxVarintLen is the maximum number of bytes a uint64 occupies as a varint.
const MaxVarintLen = 10

// AppendUvarint appends v as a base-128 varint: low 7-bit group first, bit 7
// set on every byte except the last.
func AppendUvarint(buf []byte, v uint64) []byte {
	for v >= 0x80 {
		buf = append(buf, byte(v)|0x80)
		v >>= 7
	}
	return append(buf, byte(v))
}

// DecodeUvarint decodes a varint from the start of buf.
// Returns the value and the number of bytes consumed.
func DecodeUvarint(buf []byte) (uint64, int, error) {
	var v uint64
	var shift uint

	for i, b := range buf {
		if i == MaxVarintLen-1 && b > 1 {
			return 0, 0, ErrVarintOverflow
		}
		v |= uint64(b&0x7F) << shift
		if b < 0x80 {
			return v, i + 1, nil
		}
		shift += 7
	}
	return 0, 0, ErrTruncated
}

// UvarintLen returns the number of bytes needed to encode v.
func UvarintLen(v uint64) int {
	n := 1
	for v >= 0x80 {
		n++
		v >>= 7
	}
	return n
}
