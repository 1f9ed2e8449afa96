package connector

import "sync/atomic"

// Stats is a point-in-time copy of the session counters.
type Stats struct {
	State           State  `json:"state"`
	Connects        uint64 `json:"connects"`
	Reconnects      uint64 `json:"reconnects"`
	FramesIn        uint64 `json:"frames_in"`
	FramesOut       uint64 `json:"frames_out"`
	BytesIn         uint64 `json:"bytes_in"`
	BytesOut        uint64 `json:"bytes_out"`
	Requests        uint64 `json:"requests"`
	Responses       uint64 `json:"responses"`
	Notifies        uint64 `json:"notifies"`
	Pushes          uint64 `json:"pushes"`
	HeartbeatsIn    uint64 `json:"heartbeats_in"`
	HeartbeatsOut   uint64 `json:"heartbeats_out"`
	DecodeErrors    uint64 `json:"decode_errors"`
	RequestTimeouts uint64 `json:"request_timeouts"`
	Pending         int    `json:"pending"`
	Queued          int    `json:"queued"`
}

type counters struct {
	connects, reconnects          atomic.Uint64
	framesIn, framesOut           atomic.Uint64
	bytesIn, bytesOut             atomic.Uint64
	requests, responses, notifies atomic.Uint64
	pushes                        atomic.Uint64
	heartbeatsIn, heartbeatsOut   atomic.Uint64
	decodeErrors, timeouts        atomic.Uint64
}

// Stats returns the current counters. Safe to call from any goroutine.
func (s *Session) Stats() Stats {
	return Stats{
		State:           s.State(),
		Connects:        s.stats.connects.Load(),
		Reconnects:      s.stats.reconnects.Load(),
		FramesIn:        s.stats.framesIn.Load(),
		FramesOut:       s.stats.framesOut.Load(),
		BytesIn:         s.stats.bytesIn.Load(),
		BytesOut:        s.stats.bytesOut.Load(),
		Requests:        s.stats.requests.Load(),
		Responses:       s.stats.responses.Load(),
		Notifies:        s.stats.notifies.Load(),
		Pushes:          s.stats.pushes.Load(),
		HeartbeatsIn:    s.stats.heartbeatsIn.Load(),
		HeartbeatsOut:   s.stats.heartbeatsOut.Load(),
		DecodeErrors:    s.stats.decodeErrors.Load(),
		RequestTimeouts: s.stats.timeouts.Load(),
		Pending:         s.PendingCount(),
		Queued:          s.mb.len(),
	}
}
