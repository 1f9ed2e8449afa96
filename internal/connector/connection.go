package connector

import (
	"context"
	"fmt"

	"github.com/starx-project/starx/internal/protocol"
	"github.com/starx-project/starx/internal/transport"
)

// dial starts a connection attempt in the background. The result comes back
// to the loop tagged with the generation it was started for.
func (s *Session) dial() {
	s.gen++
	gen := s.gen
	url := s.url

	ctx, cancel := context.WithCancel(s.ctx)
	s.dialCancel = cancel
	s.setState(StateConnecting)

	s.logger.Info().Str("url", url).Int("attempt", s.attempts).Msg("connecting")

	go func() {
		conn, err := s.opts.dialer.Dial(ctx, url)
		if !s.post(func() { s.onDialed(gen, conn, err) }) && conn != nil {
			conn.Close()
		}
	}()
}

func (s *Session) onDialed(gen uint64, conn transport.Conn, err error) {
	if gen != s.gen {
		if conn != nil {
			conn.Close()
		}
		return
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}

	if err != nil {
		s.logger.Warn().Err(err).Str("url", s.url).Msg("dial failed")
		s.emit(Event{Name: EventIOError, Err: err})
		s.connectionLost()
		return
	}

	s.conn = conn
	s.deframer.Reset()
	s.stats.connects.Add(1)

	if s.attempts > 0 {
		s.stats.reconnects.Add(1)
		s.emit(Event{Name: EventReconnect})
	}

	if err := s.sendHandshake(); err != nil {
		s.logger.Error().Err(err).Msg("failed to send handshake")
		s.emit(Event{Name: EventError, Err: err})
		s.connectionLost()
		return
	}
	s.setState(StateAwaitingHandshakeAck)

	go s.readLoop(gen, conn)
}

// readLoop forwards every chunk read from conn to the loop until the
// connection fails.
func (s *Session) readLoop(gen uint64, conn transport.Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			s.post(func() { s.onReadError(gen, err) })
			return
		}
		if !s.post(func() { s.onData(gen, data) }) {
			return
		}
	}
}

func (s *Session) onReadError(gen uint64, err error) {
	if gen != s.gen {
		return
	}
	if transport.IsNormalClose(err) {
		s.logger.Info().Msg("server closed connection")
	} else {
		s.logger.Warn().Err(err).Msg("connection read error")
		s.emit(Event{Name: EventIOError, Err: err})
	}
	s.connectionLost()
}

func (s *Session) onData(gen uint64, data []byte) {
	if gen != s.gen {
		return
	}
	s.stats.bytesIn.Add(uint64(len(data)))

	if s.heartbeatTimeout > 0 {
		s.nextHeartbeat = s.clock.Now().Add(s.heartbeatTimeout)
	}

	for _, f := range s.deframer.Feed(data) {
		s.stats.framesIn.Add(1)
		s.processFrame(f)
		// A kick or a handshake failure may have replaced the connection.
		if gen != s.gen {
			return
		}
	}
}

// send writes one frame on the current connection.
func (s *Session) send(t protocol.PacketType, body []byte) error {
	if s.conn == nil {
		return ErrNotConnected
	}
	frame, err := protocol.EncodeFrame(t, body)
	if err != nil {
		return err
	}
	if err := s.conn.WriteMessage(frame); err != nil {
		return fmt.Errorf("write %s frame: %w", t, err)
	}
	s.stats.framesOut.Add(1)
	s.stats.bytesOut.Add(uint64(len(frame)))
	return nil
}

// teardown drops the connection and every connection-scoped timer. Pending
// requests are kept; only their own timeouts resolve them.
func (s *Session) teardown() {
	active := s.conn != nil || s.state == StateConnecting || s.state == StateAwaitingHandshakeAck

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			s.logger.Debug().Err(err).Msg("error closing connection")
		}
		s.conn = nil
	}
	if s.dialCancel != nil {
		s.dialCancel()
		s.dialCancel = nil
	}
	s.gen++

	s.disarm(&s.heartbeatTimer)
	s.disarm(&s.watchdogTimer)
	s.disarm(&s.reconnectTimer)
	s.deframer.Reset()
	s.setState(StateDisconnected)

	if active {
		s.logger.Info().Str("url", s.url).Msg("disconnected")
		s.emit(Event{Name: EventClose})
		s.emit(Event{Name: EventDisconnect})
	}
}

// connectionLost handles a close the caller did not ask for.
func (s *Session) connectionLost() {
	s.teardown()
	s.scheduleReconnect()
}
