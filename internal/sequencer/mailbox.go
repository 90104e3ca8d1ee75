package sequencer

import (
	"sync"

	"github.com/pavelanni/speakdrill/internal/turnflow"
)

// mailbox is an unbounded, ordered event queue. Posting never blocks, so
// adapters may post from inside a callback running on the loop goroutine.
type mailbox struct {
	mu     sync.Mutex
	queue  []turnflow.Event
	closed bool
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

// post enqueues ev. Events posted after close are dropped.
func (m *mailbox) post(ev turnflow.Event) bool {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return false
	}
	m.queue = append(m.queue, ev)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
	return true
}

func (m *mailbox) drain() []turnflow.Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	q := m.queue
	m.queue = nil
	return q
}

func (m *mailbox) close() {
	m.mu.Lock()
	m.closed = true
	m.queue = nil
	m.mu.Unlock()
}
