package taskqueue

import (
	"context"
	"sync"
)

// InMemoryQueue is a bounded FIFO Queue kept in process memory. Enqueue
// blocks while the queue is full. It is safe for concurrent use.
type InMemoryQueue struct {
	mu    sync.Mutex
	items []Message

	slots chan struct{} // one token per queued message
	ready chan struct{} // wakes a blocked Dequeue
}

// NewInMemoryQueue creates a queue holding up to capacity messages. A
// non-positive capacity selects 1024.
func NewInMemoryQueue(capacity int) *InMemoryQueue {
	if capacity <= 0 {
		capacity = 1024
	}
	return &InMemoryQueue{
		slots: make(chan struct{}, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Ensure InMemoryQueue implements Queue.
var _ Queue = (*InMemoryQueue)(nil)

func (q *InMemoryQueue) Enqueue(ctx context.Context, m Message) error {
	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}

	q.mu.Lock()
	q.items = append(q.items, m)
	q.mu.Unlock()
	q.signal()
	return nil
}

func (q *InMemoryQueue) Dequeue(ctx context.Context) (*Message, error) {
	for {
		if m, ok := q.pop(); ok {
			return &m, nil
		}
		select {
		case <-q.ready:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (q *InMemoryQueue) pop() (Message, bool) {
	q.mu.Lock()
	if len(q.items) == 0 {
		q.mu.Unlock()
		return Message{}, false
	}
	m := q.items[0]
	q.items[0] = Message{}
	q.items = q.items[1:]
	more := len(q.items) > 0
	q.mu.Unlock()

	<-q.slots
	if more {
		q.signal()
	}
	return m, true
}

func (q *InMemoryQueue) signal() {
	select {
	case q.ready <- struct{}{}:
	default:
	}
}

// Snapshot returns a copy of the queued messages in delivery order.
func (q *InMemoryQueue) Snapshot() []Message {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]Message(nil), q.items...)
}

func (q *InMemoryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
