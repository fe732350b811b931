// Package queue buffers tracking events between the HTTP surface and the
// workers. Events are sharded by user so one user's events are consumed in
// order by a single worker.
package queue

import (
	"context"
	"hash/fnv"
	"runtime"
	"sync"

	"github.com/okian/tierlearn/internal/domain/model"
	"github.com/okian/tierlearn/pkg/metrics"
)

// Default queue configuration constants.
const (
	defaultQueueCapacity = 10000
)

// Event is the payload flowing through the queue.
type Event = model.TrackEvent

// Queue provides non-blocking enqueue and per-shard channel dequeue.
type Queue interface {
	// Enqueue adds an event to its user's shard. It returns ErrFull when the
	// shard is full and ErrClosed after Close.
	Enqueue(ctx context.Context, e Event) error

	// Dequeue returns the channel of one shard. It is closed by Close.
	Dequeue(shard int) <-chan Event

	// Shards returns the number of shards.
	Shards() int

	// Len returns the number of queued events across all shards.
	Len() int

	// Cap returns the total capacity across all shards.
	Cap() int

	Close() error
	IsClosed() bool
}

// InMemoryQueue implements Queue with one buffered channel per shard.
type InMemoryQueue struct {
	shards   []chan Event
	capacity int
	count    int

	mu     sync.RWMutex
	closed bool
}

// NewInMemoryQueue creates a sharded in-memory queue.
func NewInMemoryQueue(opts ...Option) *InMemoryQueue {
	q := &InMemoryQueue{
		capacity: defaultQueueCapacity,
		count:    runtime.NumCPU() * 2,
	}
	for _, opt := range opts {
		opt(q)
	}

	perShard := (q.capacity + q.count - 1) / q.count
	q.shards = make([]chan Event, q.count)
	for i := range q.shards {
		q.shards[i] = make(chan Event, perShard)
	}

	metrics.UpdateQueueCapacity(q.Cap())
	metrics.UpdateQueueSize(0)
	return q
}

// ShardFor returns the shard index of a user among n shards.
func ShardFor(userID string, n int) int {
	h := fnv.New32a()
	_, _ = h.Write([]byte(userID))
	return int(h.Sum32() % uint32(n))
}

// Enqueue adds e to the shard of e.UserID without blocking.
func (q *InMemoryQueue) Enqueue(ctx context.Context, e Event) error { //nolint:gocritic // hugeParam: events are passed by value through channels
	q.mu.RLock()
	defer q.mu.RUnlock()

	if q.closed {
		metrics.RecordQueueEnqueueError("closed")
		return ErrClosed
	}
	if err := ctx.Err(); err != nil {
		metrics.RecordQueueEnqueueError("context_cancelled")
		return err
	}

	select {
	case q.shards[ShardFor(e.UserID, len(q.shards))] <- e:
		metrics.UpdateQueueSize(q.lenLocked())
		return nil
	default:
		metrics.RecordQueueEnqueueError("queue_full")
		return ErrFull
	}
}

// Dequeue returns the channel of shard i.
func (q *InMemoryQueue) Dequeue(shard int) <-chan Event {
	return q.shards[shard]
}

// Shards returns the number of shards.
func (q *InMemoryQueue) Shards() int {
	return len(q.shards)
}

func (q *InMemoryQueue) lenLocked() int {
	n := 0
	for _, ch := range q.shards {
		n += len(ch)
	}
	return n
}

// Len returns the number of queued events.
func (q *InMemoryQueue) Len() int {
	size := q.lenLocked()
	metrics.UpdateQueueSize(size)
	return size
}

// Cap returns the total capacity.
func (q *InMemoryQueue) Cap() int {
	return cap(q.shards[0]) * len(q.shards)
}

// Close stops accepting events and closes every shard channel. Events already
// queued remain readable.
func (q *InMemoryQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return nil
	}
	for _, ch := range q.shards {
		close(ch)
	}
	q.closed = true
	return nil
}

// IsClosed returns true if the queue has been closed.
func (q *InMemoryQueue) IsClosed() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return q.closed
}
