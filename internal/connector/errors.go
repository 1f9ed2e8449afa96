package connector

import (
	"errors"
	"fmt"

	"github.com/starx-project/starx/internal/protocol"
)

var (
	// ErrNotConnected is passed to a response handler when the request could
	// not be written because the session has no established connection.
	ErrNotConnected = errors.New("connector: not connected")

	// ErrClosed is returned by every operation after Close.
	ErrClosed = errors.New("connector: session closed")

	ErrEmptyURL   = errors.New("connector: empty url")
	ErrEmptyRoute = errors.New("connector: empty route")

	// ErrRouteTooLong is the protocol error, re-exported for callers that
	// only import this package.
	ErrRouteTooLong = protocol.ErrRouteTooLong

	ErrHandshakeVersion = errors.New("connector: handshake rejected, client version not supported")
	ErrHeartbeatTimeout = errors.New("connector: server heartbeat timeout")
	ErrRequestTimeout   = errors.New("connector: request timed out")
)

// HandshakeError reports a handshake response with a code other than 200.
type HandshakeError struct {
	Code int
}

func (e *HandshakeError) Error() string {
	if e.Code == protocol.HandshakeVersionMismatch {
		return ErrHandshakeVersion.Error()
	}
	return fmt.Sprintf("connector: handshake failed with code %d", e.Code)
}

// Is lets errors.Is(err, ErrHandshakeVersion) match a 501 response.
func (e *HandshakeError) Is(target error) bool {
	return target == ErrHandshakeVersion && e.Code == protocol.HandshakeVersionMismatch
}
