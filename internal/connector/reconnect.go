package connector

func (s *Session) resetBackoff() {
	s.attempts = 0
	s.delay = s.opts.reconnectionDelay
}

// scheduleReconnect arms the next attempt with exponential backoff, or gives
// up when reconnection is disabled, the close was requested or the attempt
// budget is spent.
func (s *Session) scheduleReconnect() {
	if !s.opts.reconnect || s.manualClose {
		return
	}
	if s.attempts >= s.opts.maxReconnectAttempts {
		s.logger.Warn().Int("attempts", s.attempts).Msg("giving up on reconnect")
		return
	}

	s.attempts++
	delay := min(s.delay, s.opts.maxReconnectDelay)
	s.delay = delay * 2
	if s.delay > s.opts.maxReconnectDelay {
		s.delay = s.opts.maxReconnectDelay
	}

	s.logger.Info().Int("attempt", s.attempts).Dur("delay", delay).Msg("reconnect scheduled")
	s.setState(StateReconnecting)
	s.arm(&s.reconnectTimer, delay, func() {
		if s.state != StateReconnecting {
			return
		}
		s.dial()
	})
}
