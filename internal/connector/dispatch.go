package connector

import (
	"strconv"

	"github.com/starx-project/starx/internal/protocol"
)

// emptyBody is delivered for pushes whose compressed route is unknown.
var emptyBody = []byte("{}")

func (s *Session) processFrame(f protocol.Frame) {
	switch f.Type {
	case protocol.PacketHandshake:
		s.onHandshake(f.Body)
	case protocol.PacketHeartbeat:
		s.onHeartbeat()
	case protocol.PacketData:
		s.onDataFrame(f.Body)
	case protocol.PacketKick:
		s.onKick(f.Body)
	case protocol.PacketHandshakeAck:
		s.logger.Warn().Str("state", s.state.String()).Msg("unexpected handshake ack ignored")
	default:
		s.logger.Warn().Str("type", f.Type.String()).Int("size", len(f.Body)).Msg("unknown frame type dropped")
	}
}

func (s *Session) onDataFrame(body []byte) {
	msg, err := s.opts.decoder(body)
	if err != nil {
		s.stats.decodeErrors.Add(1)
		s.logger.Warn().Err(err).Int("size", len(body)).Msg("dropping undecodable message")
		return
	}

	switch msg.Type {
	case protocol.MessageResponse:
		s.onResponse(msg)
	case protocol.MessagePush:
		s.onPush(msg)
	default:
		s.logger.Warn().Str("type", msg.Type.String()).Msg("unexpected message type from server")
	}
}

func (s *Session) onResponse(msg *protocol.Message) {
	p, ok := s.pending[msg.ID]
	if !ok {
		s.logger.Debug().Uint64("id", msg.ID).Msg("response for unknown request dropped")
		return
	}
	s.removePending(p)
	s.stats.responses.Add(1)

	s.logger.Trace().Uint64("id", msg.ID).Str("route", p.route).Msg("response")
	s.respond(p.handler, msg.Body, nil)
}

func (s *Session) onPush(msg *protocol.Message) {
	route := msg.Route
	body := msg.Body

	if msg.CompressRoute {
		r, ok := s.dict.Route(uint16(msg.RouteCode))
		if ok {
			route = r
		} else {
			route = strconv.Itoa(msg.RouteCode)
			body = emptyBody
			s.logger.Warn().Int("code", msg.RouteCode).Msg("push with unknown route code")
		}
	}

	s.stats.pushes.Add(1)
	s.emit(Event{Name: route, Body: body, Push: true})
}

// onKick reports the server's reason and drops the connection for good.
func (s *Session) onKick(body []byte) {
	raw, err := protocol.DecodeKick(body)
	if err != nil {
		s.logger.Warn().Err(err).Msg("malformed kick payload")
		raw = body
	}
	s.logger.Warn().Str("reason", string(raw)).Msg("kicked by server")

	s.emit(Event{Name: EventKick, Body: raw})
	s.manualClose = true
	s.teardown()
}
