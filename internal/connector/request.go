package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starx-project/starx/internal/protocol"
)

// ResponseHandler receives the raw body of a response, or an error when the
// request could not be sent or timed out.
type ResponseHandler func(body []byte, err error)

type pendingRequest struct {
	id      uint64
	route   string
	handler ResponseHandler
	sentAt  time.Time
	timeout timerSlot
}

// Request sends a request and calls handler with the response. payload is
// serialized with the session codec; a []byte payload is sent verbatim and
// nil is sent as an empty JSON object. Validation and encoding errors are
// returned directly; everything after that is reported to handler.
func (s *Session) Request(route string, payload any, handler ResponseHandler) error {
	body, err := s.preparePayload(route, payload)
	if err != nil {
		return err
	}
	if handler == nil {
		handler = func([]byte, error) {}
	}
	if !s.post(func() { s.sendRequest(route, body, handler) }) {
		return ErrClosed
	}
	return nil
}

// RequestContext sends a request and waits for its response. If ctx ends
// first the request is forgotten and a late response is dropped. It must
// not be called from a handler running on the loop.
func (s *Session) RequestContext(ctx context.Context, route string, payload any) ([]byte, error) {
	body, err := s.preparePayload(route, payload)
	if err != nil {
		return nil, err
	}

	type result struct {
		body []byte
		err  error
	}
	done := make(chan result, 1)
	idCh := make(chan uint64, 1)

	ok := s.post(func() {
		idCh <- s.sendRequest(route, body, func(b []byte, err error) {
			done <- result{b, err}
		})
	})
	if !ok {
		return nil, ErrClosed
	}

	select {
	case r := <-done:
		return r.body, r.err
	case <-s.stopped:
		return nil, ErrClosed
	case <-ctx.Done():
		select {
		case id := <-idCh:
			s.post(func() { s.abandon(id) })
		case <-s.stopped:
		}
		return nil, ctx.Err()
	}
}

// Notify sends a fire-and-forget message.
func (s *Session) Notify(route string, payload any) error {
	body, err := s.preparePayload(route, payload)
	if err != nil {
		return err
	}
	if !s.post(func() { s.sendNotify(route, body) }) {
		return ErrClosed
	}
	return nil
}

func (s *Session) preparePayload(route string, payload any) ([]byte, error) {
	if route == "" {
		return nil, ErrEmptyRoute
	}
	if len(protocol.EncodeString(route)) > protocol.MaxRouteLength {
		return nil, fmt.Errorf("route %.32q...: %w", route, ErrRouteTooLong)
	}

	switch p := payload.(type) {
	case nil:
		return []byte("{}"), nil
	case []byte:
		return p, nil
	case json.RawMessage:
		return p, nil
	}

	body, err := s.opts.codec.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload for %s: %w", route, err)
	}
	return body, nil
}

func (s *Session) nextID() uint64 {
	s.lastID++
	if s.lastID == 0 {
		s.lastID = 1
	}
	return s.lastID
}

// sendRequest runs on the loop. It returns the allocated id, or 0 when the
// request failed before it was registered.
func (s *Session) sendRequest(route string, body []byte, handler ResponseHandler) uint64 {
	if s.state != StateConnected {
		s.respond(handler, nil, ErrNotConnected)
		return 0
	}

	id := s.nextID()
	data, err := s.opts.encoder(id, route, body, s.dict)
	if err != nil {
		s.respond(handler, nil, fmt.Errorf("encode request %s: %w", route, err))
		return 0
	}

	p := &pendingRequest{id: id, route: route, handler: handler, sentAt: s.clock.Now()}
	s.pending[id] = p
	s.pendingSnap.Store(int64(len(s.pending)))

	if err := s.send(protocol.PacketData, data); err != nil {
		s.removePending(p)
		s.respond(handler, nil, err)
		return 0
	}
	s.stats.requests.Add(1)

	if d := s.opts.requestTimeout; d > 0 {
		s.arm(&p.timeout, d, func() { s.expire(p) })
	}

	s.logger.Trace().Uint64("id", id).Str("route", route).Msg("request sent")
	return id
}

func (s *Session) sendNotify(route string, body []byte) {
	if s.state != StateConnected {
		s.logger.Warn().Str("route", route).Msg("notify dropped, not connected")
		return
	}
	data, err := s.opts.encoder(0, route, body, s.dict)
	if err != nil {
		s.logger.Error().Err(err).Str("route", route).Msg("failed to encode notify")
		return
	}
	if err := s.send(protocol.PacketData, data); err != nil {
		s.logger.Warn().Err(err).Str("route", route).Msg("failed to send notify")
		return
	}
	s.stats.notifies.Add(1)
}

func (s *Session) removePending(p *pendingRequest) {
	s.disarm(&p.timeout)
	delete(s.pending, p.id)
	s.pendingSnap.Store(int64(len(s.pending)))
}

func (s *Session) expire(p *pendingRequest) {
	if s.pending[p.id] != p {
		return
	}
	s.removePending(p)
	s.stats.timeouts.Add(1)
	s.logger.Warn().Uint64("id", p.id).Str("route", p.route).Dur("elapsed", s.clock.Now().Sub(p.sentAt)).Msg("request timed out")
	s.respond(p.handler, nil, fmt.Errorf("%s: %w", p.route, ErrRequestTimeout))
}

func (s *Session) abandon(id uint64) {
	if p, ok := s.pending[id]; ok {
		s.removePending(p)
		s.logger.Debug().Uint64("id", id).Str("route", p.route).Msg("request abandoned")
	}
}

// respond runs a response handler, keeping the loop alive if it panics.
func (s *Session) respond(h ResponseHandler, body []byte, err error) {
	s.invoke(func(Event) { h(body, err) }, Event{Name: "response"})
}
