package protocol

import (
	"strings"
	"unicode/utf8"
)

// EncodeString returns the UTF-8 bytes of s. Invalid sequences are replaced
// with U+FFFD so the server always receives well-formed text.
func EncodeString(s string) []byte {
	if !utf8.ValidString(s) {
		s = strings.ToValidUTF8(s, "�")
	}
	return []byte(s)
}

// DecodeString converts UTF-8 bytes back to a string, replacing invalid
// sequences with U+FFFD.
func DecodeString(b []byte) string {
	if !utf8.Valid(b) {
		return strings.ToValidUTF8(string(b), "�")
	}
	return string(b)
}
