// Package worker applies queued tracking events to the analytics service.
package worker

import (
	"context"
	"fmt"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/okian/tierlearn/internal/domain/model"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

// Default worker configuration constants.
const (
	metricsUpdateInterval = 5 * time.Second
	poolShutdownTimeout   = 30 * time.Second
)

// Event is what workers read off the queue.
type Event = model.TrackEvent

// Tracker applies one tracking event.
type Tracker interface {
	Track(ctx context.Context, ev model.TrackEvent) error
}

// Queue is the sharded source workers consume.
type Queue interface {
	Dequeue(shard int) <-chan Event
	Shards() int
	Len() int
	Close() error
}

// Worker drains one queue shard.
type Worker interface {
	// Run processes events until the shard is closed and drained or ctx is
	// canceled.
	Run(ctx context.Context)
}

// InMemoryWorker applies the events of one shard in order.
type InMemoryWorker struct {
	events  <-chan Event
	tracker Tracker
	name    string

	processed *atomic.Int64
	failed    *atomic.Int64

	done   chan struct{}
	logger logger.Logger
}

// NewInMemoryWorker creates a worker reading from events.
func NewInMemoryWorker(events <-chan Event, tracker Tracker, opts ...Option) *InMemoryWorker {
	w := &InMemoryWorker{
		events:    events,
		tracker:   tracker,
		name:      "worker",
		processed: &atomic.Int64{},
		failed:    &atomic.Int64{},
		done:      make(chan struct{}),
		logger:    logger.Get().Named("worker"),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.name != "worker" {
		w.logger = w.logger.Named(w.name)
	}
	return w
}

// Run starts the worker loop.
func (w *InMemoryWorker) Run(ctx context.Context) {
	defer close(w.done)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-w.events:
			if !ok {
				return
			}
			if err := w.processEvent(ctx, ev); err != nil {
				w.failed.Add(1)
				w.logger.Warn(ctx, "tracking event dropped",
					logger.String("event_id", ev.EventID),
					logger.String("user", ev.UserID),
					logger.String("kind", string(ev.Kind)),
					logger.String("item_id", ev.ItemID),
					logger.Error(err))
				continue
			}
			w.processed.Add(1)
		}
	}
}

// Done is closed when Run returns.
func (w *InMemoryWorker) Done() <-chan struct{} {
	return w.done
}

func (w *InMemoryWorker) processEvent(ctx context.Context, ev Event) error { //nolint:gocritic // hugeParam: events are passed by value through channels
	start := time.Now()
	defer func() {
		metrics.RecordWorkerProcessingLatency(float64(time.Since(start).Milliseconds()))
	}()

	if err := w.tracker.Track(ctx, ev); err != nil {
		return fmt.Errorf("track event %s: %w", ev.EventID, err)
	}
	return nil
}

// Pool runs one worker per queue shard.
type Pool struct {
	workers []*InMemoryWorker
	queue   Queue

	processed atomic.Int64
	failed    atomic.Int64

	shutdown chan struct{}
	logger   logger.Logger
}

// NewPool creates a pool with one worker per shard of q.
func NewPool(q Queue, tracker Tracker) *Pool {
	p := &Pool{
		workers:  make([]*InMemoryWorker, q.Shards()),
		queue:    q,
		shutdown: make(chan struct{}),
		logger:   logger.Get().Named("worker-pool"),
	}
	for i := range p.workers {
		p.workers[i] = NewInMemoryWorker(q.Dequeue(i), tracker,
			WithName("worker-"+strconv.Itoa(i)),
			withCounters(&p.processed, &p.failed))
	}
	metrics.UpdateWorkerCount(len(p.workers))
	return p
}

// Start starts all workers in the pool.
func (p *Pool) Start(ctx context.Context) {
	for _, w := range p.workers {
		go w.Run(ctx)
	}
	go p.startMetricsUpdater(ctx)
}

func (p *Pool) startMetricsUpdater(ctx context.Context) {
	ticker := time.NewTicker(metricsUpdateInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-p.shutdown:
			return
		case <-ticker.C:
			metrics.UpdateQueueSize(p.queue.Len())
		}
	}
}

// Size returns the number of workers.
func (p *Pool) Size() int {
	return len(p.workers)
}

// Processed returns how many events were applied.
func (p *Pool) Processed() int64 {
	return p.processed.Load()
}

// Failed returns how many events were dropped after a tracking error.
func (p *Pool) Failed() int64 {
	return p.failed.Load()
}

// Shutdown closes the queue and waits for the workers to drain it.
func (p *Pool) Shutdown(ctx context.Context) error {
	if err := p.queue.Close(); err != nil {
		p.logger.Error(ctx, "error closing queue", logger.Error(err))
	}
	close(p.shutdown)

	shutdownCtx, cancel := context.WithTimeout(ctx, poolShutdownTimeout)
	defer cancel()

	for i, w := range p.workers {
		select {
		case <-w.done:
		case <-shutdownCtx.Done():
			p.logger.Warn(ctx, "worker shutdown timed out", logger.Int("worker_id", i))
			return fmt.Errorf("worker pool shutdown: %w", shutdownCtx.Err())
		}
	}
	return nil
}
