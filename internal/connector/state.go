package connector

// State is the connection state of a Session.
type State int32

const (
	StateDisconnected State = iota
	StateConnecting
	StateAwaitingHandshakeAck
	StateConnected
	StateReconnecting
)

var stateNames = [...]string{
	StateDisconnected:         "disconnected",
	StateConnecting:           "connecting",
	StateAwaitingHandshakeAck: "awaiting_handshake_ack",
	StateConnected:            "connected",
	StateReconnecting:         "reconnecting",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "unknown"
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}
