package connector

import (
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/protocol"
	"github.com/starx-project/starx/internal/transport"
)

// Defaults applied by New.
const (
	DefaultClientType           = "go-websocket"
	DefaultClientVersion        = "0.0.1"
	DefaultMaxReconnectAttempts = 10
	DefaultReconnectionDelay    = 5 * time.Second
	DefaultMaxReconnectDelay    = 60 * time.Second
)

// Encoder turns an outgoing request (id > 0) or notify (id == 0) into the
// body of a data frame. The dictionary may be nil.
type Encoder func(id uint64, route string, body []byte, dict *protocol.RouteDictionary) ([]byte, error)

// Decoder parses the body of an incoming data frame.
type Decoder func(data []byte) (*protocol.Message, error)

// Codec serializes request and notify payloads.
type Codec interface {
	Marshal(v any) ([]byte, error)
}

// JSONCodec is the default payload codec.
type JSONCodec struct{}

func (JSONCodec) Marshal(v any) ([]byte, error) { return json.Marshal(v) }

type options struct {
	user              any
	handshakeCallback func(user json.RawMessage)
	encoder           Encoder
	decoder           Decoder
	codec             Codec

	reconnect            bool
	maxReconnectAttempts int
	reconnectionDelay    time.Duration
	maxReconnectDelay    time.Duration
	requestTimeout       time.Duration

	clientType    string
	clientVersion string

	dialer transport.Dialer
	clock  Clock
	logger zerolog.Logger
}

func defaultOptions() options {
	return options{
		encoder:              DefaultEncoder,
		decoder:              protocol.DecodeMessage,
		codec:                JSONCodec{},
		maxReconnectAttempts: DefaultMaxReconnectAttempts,
		reconnectionDelay:    DefaultReconnectionDelay,
		maxReconnectDelay:    DefaultMaxReconnectDelay,
		clientType:           DefaultClientType,
		clientVersion:        DefaultClientVersion,
		dialer:               transport.NewDialer(transport.DefaultConfig()),
		clock:                systemClock{},
		logger:               log.With().Str("component", "session").Logger(),
	}
}

// Option configures a Session.
type Option func(*options)

// WithUser sets the user data sent in the handshake.
func WithUser(user any) Option {
	return func(o *options) { o.user = user }
}

// WithHandshakeCallback is invoked with the server's user data after a
// successful handshake.
func WithHandshakeCallback(fn func(user json.RawMessage)) Option {
	return func(o *options) { o.handshakeCallback = fn }
}

func WithEncoder(enc Encoder) Option {
	return func(o *options) {
		if enc != nil {
			o.encoder = enc
		}
	}
}

func WithDecoder(dec Decoder) Option {
	return func(o *options) {
		if dec != nil {
			o.decoder = dec
		}
	}
}

// WithCodec replaces the JSON payload codec.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}

// WithReconnect enables automatic reconnection after an unsolicited close.
func WithReconnect(enabled bool) Option {
	return func(o *options) { o.reconnect = enabled }
}

func WithMaxReconnectAttempts(n int) Option {
	return func(o *options) {
		if n >= 0 {
			o.maxReconnectAttempts = n
		}
	}
}

// WithReconnectionDelay sets the first backoff delay. Each further attempt
// doubles it up to the maximum delay.
func WithReconnectionDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.reconnectionDelay = d
		}
	}
}

func WithMaxReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		if d > 0 {
			o.maxReconnectDelay = d
		}
	}
}

// WithRequestTimeout fails requests that have not been answered within d.
// Zero (the default) waits forever.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) {
		if d >= 0 {
			o.requestTimeout = d
		}
	}
}

// WithClientInfo sets the type and version announced in the handshake.
func WithClientInfo(clientType, version string) Option {
	return func(o *options) {
		o.clientType = clientType
		o.clientVersion = version
	}
}

func WithDialer(d transport.Dialer) Option {
	return func(o *options) {
		if d != nil {
			o.dialer = d
		}
	}
}

func WithClock(c Clock) Option {
	return func(o *options) {
		if c != nil {
			o.clock = c
		}
	}
}

func WithLogger(l zerolog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// DefaultEncoder builds a Request (id > 0) or Notify message, compressing
// the route when the dictionary knows it.
func DefaultEncoder(id uint64, route string, body []byte, dict *protocol.RouteDictionary) ([]byte, error) {
	m := &protocol.Message{
		ID:    id,
		Type:  protocol.MessageNotify,
		Route: route,
		Body:  body,
	}
	if id != 0 {
		m.Type = protocol.MessageRequest
	}
	if code, ok := dict.Code(route); ok {
		m.CompressRoute = true
		m.RouteCode = int(code)
		m.Route = ""
	}
	return protocol.EncodeMessage(m)
}
