package transport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/url"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// TCPDialer dials tcp://host:port URLs. The frame stream is written to the
// socket as is, so reads return whatever the kernel hands back.
type TCPDialer struct {
	dialer       net.Dialer
	writeTimeout time.Duration
	readSize     int
}

// NewTCPDialer creates a dialer from cfg.
func NewTCPDialer(cfg Config) *TCPDialer {
	size := cfg.ReadBufferSize
	if size <= 0 {
		size = 64 * 1024
	}
	return &TCPDialer{
		dialer:       net.Dialer{Timeout: cfg.HandshakeTimeout, KeepAlive: 30 * time.Second},
		writeTimeout: cfg.WriteTimeout,
		readSize:     size,
	}
}

// Dial connects to the host:port of rawURL.
func (d *TCPDialer) Dial(ctx context.Context, rawURL string) (Conn, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("parse url %q: %w", rawURL, err)
	}
	conn, err := d.dialer.DialContext(ctx, "tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("tcp dial %s: %w", u.Host, err)
	}
	return NewTCPConn(conn, d.readSize, d.writeTimeout), nil
}

// TCPConn wraps a net.Conn as a Conn.
type TCPConn struct {
	mu           sync.Mutex
	conn         net.Conn
	buf          []byte
	writeTimeout time.Duration
	logger       zerolog.Logger

	connectedAt time.Time
	closed      bool
}

// NewTCPConn wraps an established connection.
func NewTCPConn(conn net.Conn, readSize int, writeTimeout time.Duration) *TCPConn {
	return &TCPConn{
		conn:         conn,
		buf:          make([]byte, readSize),
		writeTimeout: writeTimeout,
		connectedAt:  time.Now(),
		logger:       log.With().Str("component", "tcp").Str("remote", conn.RemoteAddr().String()).Logger(),
	}
}

// ReadMessage returns the next chunk read from the socket. Only one
// goroutine may read at a time.
func (c *TCPConn) ReadMessage() ([]byte, error) {
	n, err := c.conn.Read(c.buf)
	if n > 0 {
		out := make([]byte, n)
		copy(out, c.buf[:n])
		return out, nil
	}
	if err == nil {
		err = io.ErrNoProgress
	}
	return nil, err
}

// WriteMessage writes data fully or fails.
func (c *TCPConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClosed
	}
	if c.writeTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout))
	}
	if _, err := c.conn.Write(data); err != nil {
		return fmt.Errorf("tcp write: %w", err)
	}
	return nil
}

// Close closes the socket.
func (c *TCPConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return nil
	}
	c.closed = true
	c.logger.Debug().Dur("uptime", time.Since(c.connectedAt)).Msg("connection closed")
	return c.conn.Close()
}

func isEOF(err error) bool {
	return errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed)
}
