package protocol

import "fmt"

// MessageType is the kind of an inner data message.
type MessageType byte

const (
	MessageRequest  MessageType = 0 // Client → server, expects a response
	MessageNotify   MessageType = 1 // Client → server, fire and forget
	MessageResponse MessageType = 2 // Server → client, answers a request by id
	MessagePush     MessageType = 3 // Server → client, unsolicited, by route
)

// String returns the string representation of the message type.
func (t MessageType) String() string {
	switch t {
	case MessageRequest:
		return "request"
	case MessageNotify:
		return "notify"
	case MessageResponse:
		return "response"
	case MessagePush:
		return "push"
	default:
		return fmt.Sprintf("unknown(%d)", byte(t))
	}
}

// Valid reports whether t is one of the four defined message types.
func (t MessageType) Valid() bool {
	return t <= MessagePush
}

// HasID reports whether messages of this type carry a request id.
func (t MessageType) HasID() bool {
	return t == MessageRequest || t == MessageResponse
}

// HasRoute reports whether messages of this type carry a route.
func (t MessageType) HasRoute() bool {
	return t == MessageRequest || t == MessageNotify || t == MessagePush
}

// Message is the payload of a data frame.
//
// Wire format:
//
//	[flag:1][id:varint, request/response only][route, request/notify/push only][body...]
//
// flag = type<<1 | compressRoute. A compressed route is a 2-byte big-endian
// code, otherwise it is a 1-byte length followed by the UTF-8 route.
type Message struct {
	ID            uint64
	Type          MessageType
	CompressRoute bool
	Route         string // set when CompressRoute is false
	RouteCode     int    // set when CompressRoute is true
	Body          []byte
}

// EncodeMessage serializes m. It fails with ErrInvalidMessageType,
// ErrRouteOverflow or ErrRouteTooLong; nothing is written on failure.
func EncodeMessage(m *Message) ([]byte, error) {
	if !m.Type.Valid() {
		return nil, fmt.Errorf("encode message type %d: %w", byte(m.Type), ErrInvalidMessageType)
	}

	size := msgFlagBytes + len(m.Body)
	if m.Type.HasID() {
		size += UvarintLen(m.ID)
	}
	if m.Type.HasRoute() {
		if m.CompressRoute {
			size += msgRouteCodeBytes
		} else {
			size += msgRouteLenBytes + len(m.Route)
		}
	}

	b := NewMessageBuilder(size)

	flag := byte(m.Type) << 1
	if m.CompressRoute {
		flag |= msgCompressRouteMask
	}
	b.WriteUint8(flag)

	if m.Type.HasID() {
		b.WriteUvarint(m.ID)
	}

	if m.Type.HasRoute() {
		if m.CompressRoute {
			if m.RouteCode < 0 || m.RouteCode > MaxRouteCode {
				return nil, fmt.Errorf("encode route code %d: %w", m.RouteCode, ErrRouteOverflow)
			}
			b.WriteUint16(uint16(m.RouteCode))
		} else if err := b.WriteShortString(m.Route); err != nil {
			return nil, err
		}
	}

	b.WriteBytes(m.Body)
	return b.Build(), nil
}

// DecodeMessage parses the body of a data frame. A message never spans
// frames, so running out of bytes before the body is a protocol violation
// reported as ErrTruncated.
func DecodeMessage(data []byte) (*Message, error) {
	r := newMessageReader(data)

	flag, err := r.readByte("flag")
	if err != nil {
		return nil, err
	}

	m := &Message{
		Type:          MessageType((flag >> 1) & msgTypeMask),
		CompressRoute: flag&msgCompressRouteMask != 0,
	}
	if !m.Type.Valid() {
		return nil, fmt.Errorf("decode message flag 0x%02x: %w", flag, ErrInvalidMessageType)
	}

	if m.Type.HasID() {
		if m.ID, err = r.readUvarint("id"); err != nil {
			return nil, err
		}
	}

	if m.Type.HasRoute() {
		if m.CompressRoute {
			code, err := r.readUint16("route code")
			if err != nil {
				return nil, err
			}
			m.RouteCode = int(code)
		} else if m.Route, err = r.readShortString("route"); err != nil {
			return nil, err
		}
	}

	m.Body = r.rest()
	return m, nil
}
