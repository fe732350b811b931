package queue

// Option applies a configuration option to the InMemoryQueue.
type Option func(*InMemoryQueue)

// WithCapacity sets the total capacity, split evenly across shards.
func WithCapacity(capacity int) Option {
	return func(q *InMemoryQueue) {
		if capacity > 0 {
			q.capacity = capacity
		}
	}
}

// WithShards sets the number of shards. One worker consumes each shard.
func WithShards(n int) Option {
	return func(q *InMemoryQueue) {
		if n > 0 {
			q.count = n
		}
	}
}
