// Package queue provides the bounded hand-off between pipeline stages.
//
// Producers never block: an item that does not fit is rejected and the
// caller decides how to report it. Items are delivered in enqueue order.
package queue

import (
	"context"
	"sync"

	"github.com/okian/swish/pkg/metrics"
)

// DefaultCapacity is used when no capacity is configured.
const DefaultCapacity = 1024

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue[T any] interface {
	// Enqueue adds an item. It returns false if the queue is full or closed.
	Enqueue(ctx context.Context, item T) bool

	// Dequeue returns the receive side of the queue. The channel is closed
	// after Close once every buffered item has been received.
	Dequeue() <-chan T

	// Received is called by the consumer after taking an item off Dequeue.
	Received()

	Len() int
	Cap() int

	// Close stops accepting items. Buffered items remain readable.
	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue[T any] struct {
	name  string
	items chan T

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a new in-memory queue with configuration options.
func NewInMemoryQueue[T any](opts ...Option) *InMemoryQueue[T] {
	s := settings{name: "default", capacity: DefaultCapacity}
	for _, opt := range opts {
		opt(&s)
	}

	q := &InMemoryQueue[T]{
		name:  s.name,
		items: make(chan T, s.capacity),
	}
	metrics.UpdateQueueCapacity(q.name, s.capacity)
	metrics.UpdateQueueSize(q.name, 0)
	return q
}

// Enqueue adds an item to the queue without blocking.
func (q *InMemoryQueue[T]) Enqueue(ctx context.Context, item T) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError(q.name, "closed")
		return false
	}
	if ctx.Err() != nil {
		metrics.RecordQueueEnqueueError(q.name, "context_cancelled")
		return false
	}

	select {
	case q.items <- item:
		metrics.RecordQueueEnqueue(q.name)
		metrics.UpdateQueueSize(q.name, len(q.items))
		return true
	default:
		metrics.RecordQueueEnqueueError(q.name, "queue_full")
		return false
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue[T]) Dequeue() <-chan T {
	return q.items
}

// Received records that the consumer took one item off the queue.
func (q *InMemoryQueue[T]) Received() {
	metrics.RecordQueueDequeue(q.name)
	metrics.UpdateQueueSize(q.name, len(q.items))
}

// Len returns the current number of buffered items.
func (q *InMemoryQueue[T]) Len() int {
	return len(q.items)
}

// Cap returns the queue capacity.
func (q *InMemoryQueue[T]) Cap() int {
	return cap(q.items)
}

// Close stops the queue from accepting items.
func (q *InMemoryQueue[T]) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.items)
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue[T]) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
