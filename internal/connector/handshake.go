package connector

import (
	"time"

	"github.com/starx-project/starx/internal/protocol"
)

func (s *Session) sendHandshake() error {
	req, err := protocol.NewHandshakeRequest(s.opts.clientType, s.opts.clientVersion, s.opts.user)
	if err != nil {
		return err
	}
	body, err := req.Encode()
	if err != nil {
		return err
	}
	return s.send(protocol.PacketHandshake, body)
}

// onHandshake handles the server's answer to our hello. Failures are
// reported through the error event and leave the connection open but
// unusable; the handshake is not retried.
func (s *Session) onHandshake(body []byte) {
	if s.state != StateAwaitingHandshakeAck {
		s.logger.Warn().Str("state", s.state.String()).Msg("unexpected handshake frame ignored")
		return
	}

	resp, err := protocol.DecodeHandshakeResponse(body)
	if err != nil {
		s.logger.Error().Err(err).Msg("malformed handshake response")
		s.emit(Event{Name: EventError, Err: err})
		return
	}

	if resp.Code != protocol.HandshakeOK {
		herr := &HandshakeError{Code: resp.Code}
		s.logger.Error().Int("code", resp.Code).Msg("handshake rejected")
		s.emit(Event{Name: EventError, Err: herr})
		return
	}

	s.heartbeatInterval = time.Duration(resp.Sys.Heartbeat) * time.Second
	s.heartbeatTimeout = 2 * s.heartbeatInterval
	s.heartbeatSnap.Store(int64(s.heartbeatInterval))

	dict := resp.Dictionary()
	if dropped := dict.Dropped(); len(dropped) > 0 {
		s.logger.Warn().Strs("routes", dropped).Msg("route codes out of range, sent uncompressed")
	}
	s.setDictionary(dict)

	if s.opts.handshakeCallback != nil {
		s.opts.handshakeCallback(resp.User)
	}

	if err := s.send(protocol.PacketHandshakeAck, nil); err != nil {
		s.logger.Error().Err(err).Msg("failed to send handshake ack")
		s.emit(Event{Name: EventError, Err: err})
		s.connectionLost()
		return
	}

	s.setState(StateConnected)
	s.resetBackoff()
	s.logger.Info().
		Str("url", s.url).
		Dur("heartbeat", s.heartbeatInterval).
		Int("routes", dict.Len()).
		Msg("handshake complete")

	if s.onReady != nil {
		s.onReady()
	}
}
