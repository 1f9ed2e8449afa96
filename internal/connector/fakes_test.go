package connector

import (
	"context"
	"io"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/starx-project/starx/internal/protocol"
	"github.com/starx-project/starx/internal/transport"
)

const waitTimeout = 2 * time.Second

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(waitTimeout)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

// fakeClock fires timers only when advanced.
type fakeClock struct {
	mu        sync.Mutex
	now       time.Time
	timers    []*fakeTimer
	scheduled []time.Duration
}

type fakeTimer struct {
	clock *fakeClock
	at    time.Time
	f     func()
	done  bool
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &fakeTimer{clock: c, at: c.now.Add(d), f: f}
	c.timers = append(c.timers, t)
	c.scheduled = append(c.scheduled, d)
	return t
}

func (t *fakeTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	was := !t.done
	t.done = true
	return was
}

// Advance moves time forward and runs every timer that came due.
func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	var due []*fakeTimer
	for _, t := range c.timers {
		if !t.done && !t.at.After(c.now) {
			t.done = true
			due = append(due, t)
		}
	}
	c.mu.Unlock()

	sort.SliceStable(due, func(i, j int) bool { return due[i].at.Before(due[j].at) })
	for _, t := range due {
		t.f()
	}
}

func (c *fakeClock) Scheduled() []time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]time.Duration(nil), c.scheduled...)
}

// fakeConn is an in-memory transport.Conn. Tests feed inbound chunks with
// deliver and inspect every frame the session wrote.
type fakeConn struct {
	in       chan []byte
	received chan int
	done     chan struct{}
	once     sync.Once

	mu     sync.Mutex
	calls  int
	writes [][]byte
	closed bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		in:       make(chan []byte),
		received: make(chan int),
		done:     make(chan struct{}),
	}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	c.mu.Lock()
	c.calls++
	n := c.calls
	c.mu.Unlock()

	select {
	case data := <-c.in:
		c.received <- n
		return data, nil
	case <-c.done:
		return nil, io.EOF
	}
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return transport.ErrClosed
	}
	c.writes = append(c.writes, append([]byte(nil), data...))
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()
	c.once.Do(func() { close(c.done) })
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) readCalls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

// frames decodes everything written so far. Each write is one frame.
func (c *fakeConn) frames() []protocol.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []protocol.Frame
	for _, w := range c.writes {
		f, _ := protocol.DecodeFrames(w)
		out = append(out, f...)
	}
	return out
}

type fakeDialer struct {
	mu    sync.Mutex
	fail  error
	dials int
	conns []*fakeConn
}

func (d *fakeDialer) Dial(ctx context.Context, url string) (transport.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if d.fail != nil {
		return nil, d.fail
	}
	c := newFakeConn()
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	if i < len(d.conns) {
		return d.conns[i]
	}
	return nil
}

type recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *recorder) record(ev Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
}

func (r *recorder) names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, ev := range r.events {
		out[i] = ev.Name
	}
	return out
}

func (r *recorder) find(name string) (Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, ev := range r.events {
		if ev.Name == name {
			return ev, true
		}
	}
	return Event{}, false
}

type harness struct {
	t      *testing.T
	s      *Session
	clock  *fakeClock
	dialer *fakeDialer
	events *recorder
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	h := &harness{
		t:      t,
		clock:  newFakeClock(),
		dialer: &fakeDialer{},
		events: &recorder{},
	}
	base := []Option{WithDialer(h.dialer), WithClock(h.clock), WithLogger(zerolog.Nop())}
	h.s = New(append(base, opts...)...)
	h.s.OnAny(h.events.record)
	t.Cleanup(func() { h.s.Close() })
	return h
}

// flush waits until everything posted so far has run on the loop.
func (h *harness) flush() {
	h.t.Helper()
	done := make(chan struct{})
	if !h.s.post(func() { close(done) }) {
		return
	}
	select {
	case <-done:
	case <-time.After(waitTimeout):
		h.t.Fatal("session loop did not drain")
	}
}

// dial connects and waits for the client hello on the i-th connection.
func (h *harness) dial(i int, onReady func()) *fakeConn {
	h.t.Helper()
	if i == 0 {
		if err := h.s.Connect("ws://starx.test/", onReady); err != nil {
			h.t.Fatalf("Connect() error = %v", err)
		}
	}
	var c *fakeConn
	waitFor(h.t, "dial", func() bool {
		c = h.dialer.conn(i)
		return c != nil
	})
	waitFor(h.t, "handshake frame", func() bool { return len(c.frames()) >= 1 })
	return c
}

// deliver hands a chunk to the session's reader and waits until the loop
// has processed it.
func (h *harness) deliver(c *fakeConn, data []byte) {
	h.t.Helper()
	select {
	case c.in <- data:
	case <-time.After(waitTimeout):
		h.t.Fatal("reader is not waiting for data")
	}
	n := <-c.received
	waitFor(h.t, "reader to post chunk", func() bool { return c.readCalls() > n || c.isClosed() })
	h.flush()
}

func (h *harness) deliverFrame(c *fakeConn, t protocol.PacketType, body []byte) {
	h.t.Helper()
	f, err := protocol.EncodeFrame(t, body)
	if err != nil {
		h.t.Fatalf("EncodeFrame() error = %v", err)
	}
	h.deliver(c, f)
}

func (h *harness) deliverMessage(c *fakeConn, m *protocol.Message) {
	h.t.Helper()
	body, err := protocol.EncodeMessage(m)
	if err != nil {
		h.t.Fatalf("EncodeMessage() error = %v", err)
	}
	h.deliverFrame(c, protocol.PacketData, body)
}

// connected dials and completes a handshake with the given response.
func (h *harness) connected(response string) *fakeConn {
	h.t.Helper()
	c := h.dial(0, nil)
	h.deliverFrame(c, protocol.PacketHandshake, []byte(response))
	if st := h.s.State(); st != StateConnected {
		h.t.Fatalf("State() = %s after handshake, want connected", st)
	}
	return c
}
