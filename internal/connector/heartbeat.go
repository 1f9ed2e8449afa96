package connector

import (
	"time"

	"github.com/starx-project/starx/internal/protocol"
)

// heartbeatGapThreshold is the slack below which the watchdog gives up
// instead of re-arming for the remaining gap.
const heartbeatGapThreshold = 100 * time.Millisecond

// onHeartbeat answers a server heartbeat after one interval. While an answer
// is already scheduled further heartbeats are absorbed.
func (s *Session) onHeartbeat() {
	s.stats.heartbeatsIn.Add(1)
	if s.heartbeatInterval == 0 {
		return
	}
	if s.heartbeatTimer.armed() {
		return
	}
	s.disarm(&s.watchdogTimer)
	s.arm(&s.heartbeatTimer, s.heartbeatInterval, s.sendHeartbeat)
}

func (s *Session) sendHeartbeat() {
	if err := s.send(protocol.PacketHeartbeat, nil); err != nil {
		s.logger.Warn().Err(err).Msg("failed to send heartbeat")
		return
	}
	s.stats.heartbeatsOut.Add(1)
	s.nextHeartbeat = s.clock.Now().Add(s.heartbeatTimeout)
	s.arm(&s.watchdogTimer, s.heartbeatTimeout, s.checkHeartbeat)
}

// checkHeartbeat fires when the server may have gone quiet. Any inbound data
// pushes the deadline forward, so the watchdog re-arms for the remainder.
func (s *Session) checkHeartbeat() {
	gap := s.nextHeartbeat.Sub(s.clock.Now())
	if gap > heartbeatGapThreshold {
		s.arm(&s.watchdogTimer, gap, s.checkHeartbeat)
		return
	}

	s.logger.Error().Str("url", s.url).Msg("server heartbeat timeout")
	s.emit(Event{Name: EventHeartbeatTimeout, Err: ErrHeartbeatTimeout})
	s.connectionLost()
}
