package transport

import "sync"

// Mailbox posts events to a sink from its own goroutine, in order. The
// queue is unbounded so posting never blocks the caller.
type Mailbox struct {
	sink EventSink

	mu    sync.Mutex
	queue []Event

	wake     chan struct{}
	done     chan struct{}
	stopOnce sync.Once
}

func NewMailbox(sink EventSink) *Mailbox {
	m := &Mailbox{
		sink: sink,
		wake: make(chan struct{}, 1),
		done: make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *Mailbox) Push(e Event) {
	m.mu.Lock()
	m.queue = append(m.queue, e)
	m.mu.Unlock()

	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *Mailbox) pop() (Event, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.queue) == 0 {
		return Event{}, false
	}
	e := m.queue[0]
	m.queue = m.queue[1:]
	return e, true
}

func (m *Mailbox) run() {
	for {
		select {
		case <-m.done:
			return
		case <-m.wake:
			for {
				e, ok := m.pop()
				if !ok {
					break
				}
				m.sink.PostTransportEvent(e)
			}
		}
	}
}

// Stop ends delivery. Events still queued are dropped.
func (m *Mailbox) Stop() {
	m.stopOnce.Do(func() {
		close(m.done)
	})
}
