package audit

import "sync"

// retryQueue is a bounded FIFO of events waiting to be re-appended. Unlike a
// ring buffer it never overwrites: a full queue rejects the new event and the
// caller is responsible for reporting the loss.
type retryQueue struct {
	mu       sync.Mutex
	events   []Event
	head     int // next read position
	count    int
	capacity int
}

func newRetryQueue(capacity int) *retryQueue {
	if capacity <= 0 {
		capacity = 10000
	}
	return &retryQueue{events: make([]Event, capacity), capacity: capacity}
}

// TryEnqueue returns false when the queue is full.
func (q *retryQueue) TryEnqueue(e Event) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count >= q.capacity {
		return false
	}
	q.events[(q.head+q.count)%q.capacity] = e
	q.count++
	return true
}

// Peek returns the oldest event without removing it.
func (q *retryQueue) Peek() (Event, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return Event{}, false
	}
	return q.events[q.head], true
}

// Pop removes the oldest event.
func (q *retryQueue) Pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.count == 0 {
		return
	}
	q.events[q.head] = Event{}
	q.head = (q.head + 1) % q.capacity
	q.count--
}

func (q *retryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.count
}
