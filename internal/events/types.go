// Package events defines the daemon's internal publish/subscribe bus and the
// events the session bridge, MQTT relay, journal and metrics exchange.
package events

import (
	"encoding/json"
	"time"
)

// EventType represents the type of event emitted through the EventBus.
type EventType string

const (
	// Session lifecycle
	EventSessionConnected    EventType = "session_connected"
	EventSessionReconnecting EventType = "session_reconnecting"
	EventSessionDisconnected EventType = "session_disconnected"
	EventSessionError        EventType = "session_error"
	EventHeartbeatTimeout    EventType = "heartbeat_timeout"
	EventKicked              EventType = "kicked"

	// Traffic
	EventPush         EventType = "push"
	EventRequestDone  EventType = "request_done"
	EventNotifySent   EventType = "notify_sent"
	EventRelayNotify  EventType = "relay_notify"
	EventRouteUpdated EventType = "route_updated"

	// System
	EventConfigChanged EventType = "config_changed"
	EventShutdown      EventType = "shutdown"
)

// Event represents a single event in the system.
type Event struct {
	Type    EventType
	Source  string
	Time    time.Time
	Payload interface{}
}

// PushPayload carries a server push.
type PushPayload struct {
	Route string          `json:"route"`
	Body  json.RawMessage `json:"body"`
}

// LifecyclePayload accompanies session lifecycle events.
type LifecyclePayload struct {
	State  string          `json:"state"`
	URL    string          `json:"url,omitempty"`
	Error  string          `json:"error,omitempty"`
	Reason json.RawMessage `json:"reason,omitempty"`
}

// RequestPayload describes a finished request or a sent notify.
type RequestPayload struct {
	Route    string          `json:"route"`
	Request  json.RawMessage `json:"request,omitempty"`
	Response json.RawMessage `json:"response,omitempty"`
	Error    string          `json:"error,omitempty"`
	Duration time.Duration   `json:"duration_ns,omitempty"`
}

// RelayNotifyPayload asks the session to forward a notify that arrived
// from outside the daemon (MQTT).
type RelayNotifyPayload struct {
	Route string          `json:"route"`
	Body  json.RawMessage `json:"body"`
}

// ConfigChangedPayload names a session setting edited at runtime.
type ConfigChangedPayload struct {
	Key   string          `json:"key"`
	Value json.RawMessage `json:"value"`
}
