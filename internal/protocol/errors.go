package protocol

import "errors"

// Encoding errors. They abort a single send attempt and are returned to the caller.
var (
	ErrInvalidMessageType = errors.New("protocol: invalid message type")
	ErrRouteTooLong       = errors.New("protocol: route exceeds 255 bytes")
	ErrRouteOverflow      = errors.New("protocol: route code exceeds 65535")
	ErrBodyTooLarge       = errors.New("protocol: frame body exceeds 16777215 bytes")
)

// Decoding errors. A frame that fails to decode is dropped; the session keeps running.
var (
	ErrTruncated      = errors.New("protocol: truncated message")
	ErrVarintOverflow = errors.New("protocol: varint overflows 64 bits")
)
