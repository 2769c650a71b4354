package pairing

import "sync"

// EventType identifies what an orchestrator Event reports.
type EventType int

const (
	EventMdnsCheckStarted EventType = iota + 1
	EventMdnsReady
	EventQrCodeReady
	EventServiceDiscovered
	EventServiceUpdated
	EventServiceLost
	EventSessionState
	EventFailed
	EventStopped
)

func (t EventType) String() string {
	switch t {
	case EventMdnsCheckStarted:
		return "mdns_check_started"
	case EventMdnsReady:
		return "mdns_ready"
	case EventQrCodeReady:
		return "qrcode_ready"
	case EventServiceDiscovered:
		return "service_discovered"
	case EventServiceUpdated:
		return "service_updated"
	case EventServiceLost:
		return "service_lost"
	case EventSessionState:
		return "session_state"
	case EventFailed:
		return "failed"
	case EventStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// Event is emitted by the orchestrator in the order its state changed.
type Event struct {
	Type          EventType
	DaemonVersion string
	Secret        *QrCodeSecret
	Service       *MdnsService
	Session       *SessionInfo
	Err           error
}

// mailbox is an unbounded inbox; post never blocks.
type mailbox struct {
	mu     sync.Mutex
	items  []any
	signal chan struct{}
}

func newMailbox() *mailbox {
	return &mailbox{signal: make(chan struct{}, 1)}
}

func (m *mailbox) post(msg any) {
	m.mu.Lock()
	m.items = append(m.items, msg)
	m.mu.Unlock()
	select {
	case m.signal <- struct{}{}:
	default:
	}
}

func (m *mailbox) drain() []any {
	m.mu.Lock()
	defer m.mu.Unlock()
	items := m.items
	m.items = nil
	return items
}

// eventQueue forwards events to out without ever blocking the producer. The
// pump goroutine exits once the queue is closed and drained, or once discard
// is called.
type eventQueue struct {
	mu     sync.Mutex
	items  []Event
	closed bool
	signal chan struct{}
	out    chan Event

	gone     chan struct{}
	goneOnce sync.Once
}

func newEventQueue() *eventQueue {
	q := &eventQueue{
		signal: make(chan struct{}, 1),
		out:    make(chan Event),
		gone:   make(chan struct{}),
	}
	go q.pump()
	return q
}

func (q *eventQueue) push(ev Event) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.items = append(q.items, ev)
	q.mu.Unlock()
	q.wake()
}

func (q *eventQueue) close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wake()
}

// discard drops queued and future events and closes out.
func (q *eventQueue) discard() {
	q.goneOnce.Do(func() {
		q.mu.Lock()
		q.closed = true
		q.items = nil
		q.mu.Unlock()
		close(q.gone)
	})
}

func (q *eventQueue) wake() {
	select {
	case q.signal <- struct{}{}:
	default:
	}
}

func (q *eventQueue) pump() {
	defer close(q.out)
	for {
		select {
		case <-q.gone:
			return
		default:
		}
		q.mu.Lock()
		if len(q.items) == 0 {
			closed := q.closed
			q.mu.Unlock()
			if closed {
				return
			}
			select {
			case <-q.signal:
			case <-q.gone:
				return
			}
			continue
		}
		ev := q.items[0]
		q.items = q.items[1:]
		q.mu.Unlock()
		select {
		case q.out <- ev:
		case <-q.gone:
			return
		}
	}
}
