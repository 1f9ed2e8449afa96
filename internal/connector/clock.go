package connector

import "time"

// Clock is the time source for heartbeats, reconnect backoff and request
// timeouts. Timer callbacks must only post work to the session loop.
type Clock interface {
	Now() time.Time
	AfterFunc(d time.Duration, f func()) Timer
}

// Timer is a pending AfterFunc callback.
type Timer interface {
	Stop() bool
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

func (systemClock) AfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// timerSlot holds one named timer owned by the loop. A callback that was
// already queued when the slot was disarmed or re-armed is ignored by
// comparing sequence numbers.
type timerSlot struct {
	timer Timer
	seq   uint64
}

func (t *timerSlot) armed() bool {
	return t.seq != 0
}

// arm schedules fn on the loop after d, replacing whatever the slot held.
func (s *Session) arm(slot *timerSlot, d time.Duration, fn func()) {
	s.disarm(slot)

	s.timerSeq++
	seq := s.timerSeq
	slot.seq = seq
	slot.timer = s.clock.AfterFunc(d, func() {
		s.post(func() {
			if slot.seq != seq {
				return
			}
			slot.seq = 0
			slot.timer = nil
			fn()
		})
	})
}

func (s *Session) disarm(slot *timerSlot) {
	if slot.timer != nil {
		slot.timer.Stop()
		slot.timer = nil
	}
	slot.seq = 0
}
