// Package protocol implements the Pomelo/StartX wire format used between a
// starx client and its server: the outer length-prefixed frame, the inner
// data message with route compression, the route dictionary and the JSON
// handshake payloads. All multi-byte integers are big-endian.
package protocol

import "fmt"

// PacketType is the first byte of every frame.
type PacketType byte

// Frame types.
const (
	PacketHandshake    PacketType = 1 // Client hello / server handshake response
	PacketHandshakeAck PacketType = 2 // Client confirms handshake
	PacketHeartbeat    PacketType = 3 // Keepalive, both directions
	PacketData         PacketType = 4 // Carries an encoded Message
	PacketKick         PacketType = 5 // Server forces the client off
)

var packetTypeNames = map[PacketType]string{
	PacketHandshake:    "handshake",
	PacketHandshakeAck: "handshake_ack",
	PacketHeartbeat:    "heartbeat",
	PacketData:         "data",
	PacketKick:         "kick",
}

// String returns the lowercase name of the packet type.
func (t PacketType) String() string {
	if name, ok := packetTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("unknown(%d)", byte(t))
}

// Valid reports whether t is one of the five defined frame types.
func (t PacketType) Valid() bool {
	_, ok := packetTypeNames[t]
	return ok
}

// HeaderSize is the size of the frame header: 1 type byte + 3 length bytes.
const HeaderSize = 4

// MaxBodySize is the largest body a 24-bit length prefix can describe.
const MaxBodySize = 1<<24 - 1

// Message layout constants.
const (
	msgFlagBytes      = 1
	msgRouteCodeBytes = 2
	msgRouteLenBytes  = 1

	// MaxRouteCode is the largest route code that fits the 2-byte compressed form.
	MaxRouteCode = 0xFFFF

	// MaxRouteLength is the longest uncompressed route in bytes.
	MaxRouteLength = 255

	msgCompressRouteMask = 0x1
	msgTypeMask          = 0x7
)
