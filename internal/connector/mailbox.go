package connector

import (
	"sync"

	"github.com/eapache/queue"
)

// mailbox is the unbounded FIFO feeding the session loop. Posting never
// blocks, so code already running on the loop can post more work.
type mailbox struct {
	mu     sync.Mutex
	q      *queue.Queue
	signal chan struct{}
	closed bool
}

func newMailbox() *mailbox {
	return &mailbox{
		q:      queue.New(),
		signal: make(chan struct{}, 1),
	}
}

// post enqueues fn. It returns false once the mailbox is closed.
func (m *mailbox) post(fn func()) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.q.Add(fn)
	m.mu.Unlock()

	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

// pop removes the oldest item.
func (m *mailbox) pop() (func(), bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.q.Length() == 0 {
		return nil, false
	}
	return m.q.Remove().(func()), true
}

func (m *mailbox) len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.q.Length()
}

// close rejects further posts and drops anything still queued.
func (m *mailbox) close() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.closed = true
	for m.q.Length() > 0 {
		m.q.Remove()
	}
}
