// Package queue holds account-purge notifications between the HTTP handler
// that receives them and the workers that apply them.
package queue

import (
	"context"
	"sync"

	"github.com/anthill-platform/anthill-leaderboard/internal/domain/model"
	"github.com/anthill-platform/anthill-leaderboard/pkg/metrics"
)

const defaultCapacity = 10000

// Queue provides non-blocking enqueue and channel-based dequeue semantics.
type Queue interface {
	// Enqueue adds e without blocking. It fails with ErrFull or ErrClosed.
	Enqueue(ctx context.Context, e model.PurgeEvent) error

	// Dequeue returns the channel workers read from. It is closed by Close
	// once the remaining events have been drained.
	Dequeue() <-chan model.PurgeEvent

	Len() int
	Close() error
}

// InMemoryQueue implements Queue using a buffered channel.
type InMemoryQueue struct {
	events   chan model.PurgeEvent
	capacity int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a bounded queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{capacity: defaultCapacity}
	for _, opt := range opts {
		opt(q)
	}
	q.events = make(chan model.PurgeEvent, q.capacity)

	metrics.UpdatePurgeQueueCapacity(q.capacity)
	metrics.UpdatePurgeQueueSize(0)
	return q
}

// Enqueue adds an event to the queue.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e model.PurgeEvent) error {
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordPurgeEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordPurgeEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.events <- e:
		metrics.UpdatePurgeQueueSize(len(q.events))
		return nil
	default:
		metrics.RecordPurgeEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns the receive side of the queue.
func (q *InMemoryQueue) Dequeue() <-chan model.PurgeEvent {
	return q.events
}

// Len returns the current number of queued events.
func (q *InMemoryQueue) Len() int {
	size := len(q.events)
	metrics.UpdatePurgeQueueSize(size)
	return size
}

// Close stops accepting events. Already queued events stay readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	close(q.events)
	q.closed = true
	return nil
}

// IsClosed reports whether Close was called.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
