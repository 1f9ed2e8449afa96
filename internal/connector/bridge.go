package connector

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/starx-project/starx/internal/events"
)

const bridgeSource = "session"

// Bridge republishes session activity on the daemon event bus and forwards
// relay notifies from the bus back to the server. The REST API, console and
// MQTT relay go through it instead of touching the Session directly so that
// every request and notify is journaled.
type Bridge struct {
	session *Session
	bus     *events.EventBus
	logger  zerolog.Logger

	requestTimeout time.Duration
}

// NewBridge wires session to bus. requestTimeout bounds Request calls whose
// context has no deadline; zero leaves them unbounded.
func NewBridge(session *Session, bus *events.EventBus, requestTimeout time.Duration) *Bridge {
	b := &Bridge{
		session:        session,
		bus:            bus,
		logger:         log.With().Str("component", "bridge").Logger(),
		requestTimeout: requestTimeout,
	}
	session.OnAny(b.onSessionEvent)
	bus.Subscribe(events.EventRelayNotify, "session-bridge", b.onRelayNotify)
	return b
}

// Session returns the bridged session.
func (b *Bridge) Session() *Session {
	return b.session
}

// Connect dials url. Every successful handshake publishes a connected event
// followed by the negotiated route table.
func (b *Bridge) Connect(url string) error {
	return b.session.Connect(url, b.onReady)
}

// Reconnect drops the current connection and dials url again, or the last
// URL when url is empty. Operations run in order on the session loop, so
// the new dial starts from a clean state.
func (b *Bridge) Reconnect(url string) error {
	if url == "" {
		url = b.session.URL()
	}
	b.session.Disconnect()
	return b.Connect(url)
}

// Disconnect closes the connection and cancels reconnection.
func (b *Bridge) Disconnect() {
	b.session.Disconnect()
}

func (b *Bridge) onReady() {
	b.publish(events.EventSessionConnected, events.LifecyclePayload{
		State: StateConnected.String(),
		URL:   b.session.URL(),
	})
	b.publish(events.EventRouteUpdated, b.session.Routes())
}

// Request sends a request and waits for the answer. The outcome is
// published as a request_done event either way.
func (b *Bridge) Request(ctx context.Context, route string, payload json.RawMessage) (json.RawMessage, error) {
	if _, ok := ctx.Deadline(); !ok && b.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, b.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	resp, err := b.session.RequestContext(ctx, route, orNil(payload))

	done := events.RequestPayload{
		Route:    route,
		Request:  asJSON(payload),
		Duration: time.Since(start),
	}
	if err != nil {
		done.Error = err.Error()
	} else {
		done.Response = asJSON(resp)
	}
	b.publish(events.EventRequestDone, done)

	if err != nil {
		return nil, err
	}
	return asJSON(resp), nil
}

// Notify sends a notify and publishes notify_sent once it is queued.
func (b *Bridge) Notify(route string, payload json.RawMessage) error {
	if err := b.session.Notify(route, orNil(payload)); err != nil {
		return err
	}
	b.publish(events.EventNotifySent, events.RequestPayload{
		Route:   route,
		Request: asJSON(payload),
	})
	return nil
}

func (b *Bridge) onRelayNotify(_ context.Context, ev events.Event) error {
	p, ok := ev.Payload.(events.RelayNotifyPayload)
	if !ok {
		return fmt.Errorf("relay notify: unexpected payload %T", ev.Payload)
	}
	if err := b.Notify(p.Route, p.Body); err != nil {
		return fmt.Errorf("relay notify %s: %w", p.Route, err)
	}
	return nil
}

// onSessionEvent runs on the session loop. Bus emission is asynchronous so
// it never blocks the loop.
func (b *Bridge) onSessionEvent(ev Event) {
	switch ev.Name {
	case EventClose:
		// disconnect follows immediately and carries the same information
	case EventDisconnect:
		b.publish(events.EventSessionDisconnected, b.lifecycle(nil))
	case EventReconnect:
		b.publish(events.EventSessionReconnecting, b.lifecycle(nil))
	case EventIOError, EventError:
		b.publish(events.EventSessionError, b.lifecycle(ev.Err))
	case EventHeartbeatTimeout:
		b.publish(events.EventHeartbeatTimeout, b.lifecycle(nil))
	case EventKick:
		p := b.lifecycle(nil)
		p.Reason = asJSON(ev.Body)
		b.publish(events.EventKicked, p)
	default:
		if !ev.Push {
			b.logger.Debug().Str("event", ev.Name).Msg("local session event not published")
			return
		}
		b.publish(events.EventPush, events.PushPayload{
			Route: ev.Name,
			Body:  asJSON(ev.Body),
		})
	}
}

func (b *Bridge) lifecycle(err error) events.LifecyclePayload {
	p := events.LifecyclePayload{
		State: b.session.State().String(),
		URL:   b.session.URL(),
	}
	if err != nil {
		p.Error = err.Error()
	}
	return p
}

func (b *Bridge) publish(t events.EventType, payload interface{}) {
	b.bus.Emit(context.Background(), events.Event{
		Type:    t,
		Source:  bridgeSource,
		Payload: payload,
	})
}

// asJSON returns body as raw JSON, quoting it as a string when it is not
// valid JSON so that downstream encoders never fail on it.
func asJSON(body []byte) json.RawMessage {
	if len(body) == 0 {
		return json.RawMessage("{}")
	}
	if json.Valid(body) {
		return json.RawMessage(body)
	}
	quoted, _ := json.Marshal(string(body))
	return quoted
}

// orNil turns an empty payload into nil so the session sends "{}".
func orNil(payload json.RawMessage) any {
	if len(payload) == 0 {
		return nil
	}
	return payload
}
