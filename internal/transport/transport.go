// Package transport provides the byte-stream connections a starx session runs
// over. The session only needs ordered binary chunks in both directions; a
// chunk may hold part of a frame or several frames.
package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"time"
)

// ErrClosed is returned by WriteMessage after Close.
var ErrClosed = errors.New("transport: connection closed")

// ErrUnsupportedScheme is returned by Dial for URLs it cannot handle.
var ErrUnsupportedScheme = errors.New("transport: unsupported url scheme")

// Conn is an established connection.
type Conn interface {
	// ReadMessage blocks for the next chunk of bytes from the peer.
	ReadMessage() ([]byte, error)
	// WriteMessage sends one encoded frame.
	WriteMessage(data []byte) error
	// Close tears the connection down. It is safe to call more than once.
	Close() error
}

// Dialer opens connections.
type Dialer interface {
	Dial(ctx context.Context, rawURL string) (Conn, error)
}

// Config controls dialing and I/O deadlines.
type Config struct {
	HandshakeTimeout time.Duration
	WriteTimeout     time.Duration
	ReadBufferSize   int
	TLS              *tls.Config
}

// DefaultConfig returns the settings used when no Config is given.
func DefaultConfig() Config {
	return Config{
		HandshakeTimeout: 10 * time.Second,
		WriteTimeout:     10 * time.Second,
		ReadBufferSize:   64 * 1024,
	}
}

// SchemeDialer picks an implementation from the URL scheme:
// ws and wss use WebSocket binary messages, tcp uses a raw socket.
type SchemeDialer struct {
	ws  *WebSocketDialer
	tcp *TCPDialer
}

// NewDialer returns a Dialer that handles ws://, wss:// and tcp:// URLs.
func NewDialer(cfg Config) *SchemeDialer {
	return &SchemeDialer{
		ws:  NewWebSocketDialer(cfg),
		tcp: NewTCPDialer(cfg),
	}
}

// Dial connects to rawURL.
func (d *SchemeDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}

	switch u.Scheme {
	case "ws", "wss":
		return d.ws.Dial(ctx, rawURL)
	case "tcp":
		return d.tcp.Dial(ctx, rawURL)
	default:
		return nil, fmt.Errorf("dial %q: %w", rawURL, ErrUnsupportedScheme)
	}
}
