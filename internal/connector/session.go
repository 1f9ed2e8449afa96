// Package connector implements the client side of a starx session: the
// handshake, heartbeats, request/response correlation, push dispatch and
// reconnection with exponential backoff.
//
// All session state is owned by a single loop goroutine. Transport readers,
// timers and public API calls post closures to an unbounded mailbox that the
// loop executes in order, so handlers running on the loop may call back into
// the session without deadlocking.
package connector

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/starx-project/starx/internal/protocol"
	"github.com/starx-project/starx/internal/transport"
)

// Session is a client connection to a starx server.
type Session struct {
	opts   options
	clock  Clock
	logger zerolog.Logger

	mb      *mailbox
	stopped chan struct{}
	quit    bool

	ctx    context.Context
	cancel context.CancelFunc

	closeOnce sync.Once

	// Loop-owned state. Never touched outside closures run by loop().
	state      State
	url        string
	onReady    func()
	conn       transport.Conn
	gen        uint64
	dialCancel context.CancelFunc
	deframer   protocol.Deframer

	dict *protocol.RouteDictionary

	heartbeatInterval time.Duration
	heartbeatTimeout  time.Duration
	nextHeartbeat     time.Time
	heartbeatTimer    timerSlot
	watchdogTimer     timerSlot

	reconnectTimer timerSlot
	attempts       int
	delay          time.Duration
	manualClose    bool

	timerSeq uint64
	lastID   uint64
	pending  map[uint64]*pendingRequest

	handlers  map[string][]PushHandler
	observers []PushHandler

	// Snapshots for readers on other goroutines.
	stateSnap     atomic.Int32
	urlSnap       atomic.Value
	dictSnap      atomic.Pointer[protocol.RouteDictionary]
	pendingSnap   atomic.Int64
	heartbeatSnap atomic.Int64
	stats         counters
}

// New creates a session and starts its loop. Call Connect to dial.
func New(opts ...Option) *Session {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		opts:     o,
		clock:    o.clock,
		logger:   o.logger,
		mb:       newMailbox(),
		stopped:  make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
		delay:    o.reconnectionDelay,
		pending:  make(map[uint64]*pendingRequest),
		handlers: make(map[string][]PushHandler),
	}
	s.urlSnap.Store("")

	go s.loop()
	return s
}

func (s *Session) loop() {
	defer close(s.stopped)

	for {
		select {
		case <-s.mb.signal:
		case <-s.ctx.Done():
			s.mb.close()
			return
		}

		for {
			fn, ok := s.mb.pop()
			if !ok {
				break
			}
			fn()
			if s.quit {
				s.mb.close()
				return
			}
		}
	}
}

// post queues fn for the loop. It returns false after Close.
func (s *Session) post(fn func()) bool {
	return s.mb.post(fn)
}

// Connect dials url and performs the handshake in the background. onReady,
// if not nil, runs on the loop after every successful handshake. Calling
// Connect while a connection exists or is being established does nothing.
func (s *Session) Connect(url string, onReady func()) error {
	if url == "" {
		return ErrEmptyURL
	}
	ok := s.post(func() {
		if s.state != StateDisconnected {
			s.logger.Debug().Str("state", s.state.String()).Msg("connect ignored, session already active")
			return
		}
		s.url = url
		s.urlSnap.Store(url)
		s.onReady = onReady
		s.manualClose = false
		s.resetBackoff()
		s.dial()
	})
	if !ok {
		return ErrClosed
	}
	return nil
}

// Disconnect closes the connection and cancels any pending reconnect.
// The session stays usable; Connect may be called again.
func (s *Session) Disconnect() {
	s.post(func() {
		s.manualClose = true
		s.teardown()
	})
}

// Close disconnects and stops the loop. It must not be called from a
// handler running on the loop.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		ok := s.post(func() {
			s.manualClose = true
			s.teardown()
			s.quit = true
		})
		if ok {
			<-s.stopped
		}
		s.cancel()
	})
	return nil
}

// Done is closed when the loop has stopped.
func (s *Session) Done() <-chan struct{} {
	return s.stopped
}

// State returns the current connection state.
func (s *Session) State() State {
	return State(s.stateSnap.Load())
}

// URL returns the address given to the last Connect.
func (s *Session) URL() string {
	return s.urlSnap.Load().(string)
}

// Routes returns a copy of the route dictionary from the last handshake.
func (s *Session) Routes() map[string]uint16 {
	return s.dictSnap.Load().Routes()
}

// PendingCount returns the number of requests awaiting a response.
func (s *Session) PendingCount() int {
	return int(s.pendingSnap.Load())
}

// HeartbeatInterval returns the interval negotiated by the last handshake,
// zero when heartbeats are disabled.
func (s *Session) HeartbeatInterval() time.Duration {
	return time.Duration(s.heartbeatSnap.Load())
}

// HeartbeatTimeout is twice the heartbeat interval.
func (s *Session) HeartbeatTimeout() time.Duration {
	return 2 * s.HeartbeatInterval()
}

func (s *Session) setState(st State) {
	if s.state == st {
		return
	}
	s.logger.Debug().Str("from", s.state.String()).Str("to", st.String()).Msg("state change")
	s.state = st
	s.stateSnap.Store(int32(st))
}

func (s *Session) setDictionary(d *protocol.RouteDictionary) {
	s.dict = d
	s.dictSnap.Store(d)
}
