package connector

import (
	"fmt"
	"runtime/debug"
)

// Lifecycle event names. Push routes share the same namespace.
const (
	EventReconnect        = "reconnect"
	EventDisconnect       = "disconnect"
	EventClose            = "close"
	EventIOError          = "io-error"
	EventHeartbeatTimeout = "heartbeat timeout"
	EventKick             = "onKick"
	EventError            = "error"
)

// Event is delivered to handlers registered with On. Body holds a push
// payload or the kick reason; Err is set for error events. Push is true
// only for pushes received from the server.
type Event struct {
	Name string
	Body []byte
	Err  error
	Push bool
}

// PushHandler receives events. Handlers run on the session loop and must
// not block.
type PushHandler func(ev Event)

// On registers handler for a push route or lifecycle event.
func (s *Session) On(name string, handler PushHandler) {
	if handler == nil {
		return
	}
	s.post(func() {
		s.handlers[name] = append(s.handlers[name], handler)
	})
}

// Off removes every handler registered for name.
func (s *Session) Off(name string) {
	s.post(func() {
		delete(s.handlers, name)
	})
}

// OnAny registers handler for every event, whatever its name.
func (s *Session) OnAny(handler PushHandler) {
	if handler == nil {
		return
	}
	s.post(func() {
		s.observers = append(s.observers, handler)
	})
}

// Emit delivers an event to local handlers as if the session raised it.
func (s *Session) Emit(name string, body []byte) {
	s.post(func() {
		s.emit(Event{Name: name, Body: body})
	})
}

func (s *Session) emit(ev Event) {
	handlers := s.handlers[ev.Name]
	if len(handlers) == 0 && len(s.observers) == 0 {
		s.logger.Debug().Str("event", ev.Name).Msg("no handler for event")
		return
	}
	for _, h := range handlers {
		s.invoke(h, ev)
	}
	for _, h := range s.observers {
		s.invoke(h, ev)
	}
}

// invoke runs a user callback, keeping the loop alive if it panics.
func (s *Session) invoke(h PushHandler, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().
				Str("event", ev.Name).
				Str("panic", fmt.Sprintf("%v", r)).
				Str("stack", string(debug.Stack())).
				Msg("event handler panicked")
		}
	}()
	h(ev)
}
