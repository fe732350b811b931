// Package service wires the analytics components together and implements the
// dependencies required by the HTTP API.
package service

import (
	"context"
	"fmt"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	eventqueue "github.com/okian/tierlearn/internal/adapters/mq/queue"
	workerpool "github.com/okian/tierlearn/internal/adapters/mq/worker"
	"github.com/okian/tierlearn/internal/adapters/repository"
	"github.com/okian/tierlearn/internal/app/feed"
	"github.com/okian/tierlearn/internal/app/tracking"
	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/internal/domain/dedupe"
	"github.com/okian/tierlearn/internal/domain/model"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

const (
	defaultQueueSize   = 10_000
	defaultDedupeSize  = 100_000
	defaultTier        = 1
	defaultMinTotal    = 50
	stopTimeout        = 10 * time.Second
	outcomeDuplicate   = "duplicate"
	outcomeRejected    = "rejected"
	unknownContentType = "unknown"
)

// Service implements the API dependencies for the analytics system.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      docstore.Store
	ownStore   bool
	content    *repository.ContentRepository
	records    *repository.RecordStore
	tracker    *tracking.Service
	deduper    dedupe.Deduper
	eventQueue *eventqueue.InMemoryQueue
	workerPool *workerpool.Pool

	// Configuration
	workerCount        int
	queueSize          int
	dedupeSize         int
	defaultTier        int
	maxTier            int
	minContentTotal    int
	migrateCourseTiers bool

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithStore sets the document store. The caller keeps ownership and closes it
// after Stop. Without a store the service runs on a fresh in-memory one.
func WithStore(store docstore.Store) Option {
	return func(s *Service) {
		s.store = store
	}
}

// WithWorkerCount sets the number of tracking workers, one per queue shard.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the maximum size of the event queue.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithDedupeSize sets the size of the deduplication cache.
func WithDedupeSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.dedupeSize = size
		}
	}
}

// WithDefaultTier sets the tier of records created lazily by tracking.
func WithDefaultTier(tier int) Option {
	return func(s *Service) {
		if tier >= 1 {
			s.defaultTier = tier
		}
	}
}

// WithMaxTier sets the highest tier accepted by reads, initialization and feeds.
func WithMaxTier(tier int) Option {
	return func(s *Service) {
		if tier >= 1 {
			s.maxTier = tier
		}
	}
}

// WithMinContentTotal sets the total seeded into records that count no content.
func WithMinContentTotal(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.minContentTotal = n
		}
	}
}

// WithCourseTierMigration enables the legacy course tier rewrite on Start.
func WithCourseTierMigration(enabled bool) Option {
	return func(s *Service) {
		s.migrateCourseTiers = enabled
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a new Service with default configuration.
func New(opts ...Option) *Service {
	s := &Service{
		workerCount:     runtime.NumCPU() * 2,
		queueSize:       defaultQueueSize,
		dedupeSize:      defaultDedupeSize,
		defaultTier:     defaultTier,
		maxTier:         content.DefaultMaxTier,
		minContentTotal: defaultMinTotal,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start initializes and starts the service components.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	if s.logger == nil {
		s.logger = logger.Named("service")
	}

	s.logger.Info(ctx, "starting analytics service...")

	if s.store == nil {
		s.store = docstore.NewMemoryStore()
		s.ownStore = true
		s.logger.Info(ctx, "using in-memory document store")
	}
	s.content = repository.NewContentRepository(s.store)
	s.records = repository.NewRecordStore(s.store, s.content)
	s.tracker = tracking.New(s.records, s.content,
		tracking.WithDefaultTier(s.defaultTier),
		tracking.WithMaxTier(s.maxTier),
		tracking.WithMinContentTotal(s.minContentTotal),
	)

	if s.migrateCourseTiers {
		n, err := s.content.MigrateCourseTiers(ctx)
		if err != nil {
			return fmt.Errorf("migrate course tiers: %w", err)
		}
		s.logger.Info(ctx, "course tiers migrated", logger.Int("courses", n))
	}

	s.deduper = dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.dedupeSize))
	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithShards(s.workerCount),
	)
	s.workerPool = workerpool.NewPool(s.eventQueue, s.tracker)
	s.workerPool.Start(context.WithoutCancel(ctx))

	s.started = true
	s.logger.Info(ctx, "analytics service started",
		logger.Int("workers", s.workerPool.Size()),
		logger.Int("queueSize", s.queueSize),
		logger.Int("dedupeSize", s.dedupeSize),
	)
	return nil
}

// Stop drains the tracking queue and shuts the service down.
func (s *Service) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.started {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
	defer cancel()

	s.logger.Info(ctx, "stopping analytics service...")

	if err := s.workerPool.Shutdown(ctx); err != nil {
		s.logger.Warn(ctx, "worker pool did not drain", logger.Error(err))
	}
	if s.ownStore {
		if err := s.store.Close(); err != nil {
			s.logger.Error(ctx, "error closing store", logger.Error(err))
		}
		s.store = nil
		s.ownStore = false
	}

	s.started = false
	s.logger.Info(ctx, "analytics service stopped")
}

func (s *Service) trackerService() (*tracking.Service, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.tracker, nil
}

// Submit validates a tracking event and queues it for its user's worker. It
// returns the event id, generating one when the event has none. A replayed
// event id returns ErrDuplicate. A full queue returns queue.ErrFull and the id
// is forgotten so the client can retry.
func (s *Service) Submit(ctx context.Context, ev model.TrackEvent) (string, error) { //nolint:gocritic // hugeParam: events are passed by value
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return "", ErrNotStarted
	}

	ct, ok := ev.Kind.ContentType()
	if !ok {
		metrics.RecordTrackingEvent(unknownContentType, outcomeRejected)
		return "", fmt.Errorf("%w: %q", tracking.ErrUnknownEvent, ev.Kind)
	}
	ev.UserID = analytics.CanonicalUserID(ev.UserID)
	ev.ItemID = strings.TrimSpace(ev.ItemID)
	if ev.UserID == "" {
		metrics.RecordTrackingEvent(ct.String(), outcomeRejected)
		return "", tracking.ErrInvalidUser
	}
	if ev.ItemID == "" {
		metrics.RecordTrackingEvent(ct.String(), outcomeRejected)
		return "", tracking.ErrInvalidItem
	}
	if ev.EventID == "" {
		ev.EventID = uuid.NewString()
	}
	if ev.TS.IsZero() {
		ev.TS = s.records.Now()
	}

	if s.deduper.SeenAndRecord(ctx, ev.EventID) {
		metrics.RecordTrackingEvent(ct.String(), outcomeDuplicate)
		s.logger.Debug(ctx, "duplicate event detected, skipping",
			logger.String("eventID", ev.EventID),
			logger.String("user", ev.UserID),
		)
		return ev.EventID, ErrDuplicate
	}

	if err := s.eventQueue.Enqueue(ctx, ev); err != nil {
		s.deduper.Unrecord(ctx, ev.EventID)
		return ev.EventID, err
	}
	metrics.UpdateQueueSize(s.eventQueue.Len())
	return ev.EventID, nil
}

// Track applies an event synchronously, bypassing the queue and the
// deduplication cache.
func (s *Service) Track(ctx context.Context, ev model.TrackEvent) error { //nolint:gocritic // hugeParam: events are passed by value
	t, err := s.trackerService()
	if err != nil {
		return err
	}
	return t.Track(ctx, ev)
}

// Analytics returns the cumulative record of address when tier is zero and
// the tier-exact view otherwise.
func (s *Service) Analytics(ctx context.Context, address string, tier int) (*analytics.Record, error) {
	t, err := s.trackerService()
	if err != nil {
		return nil, err
	}
	if tier == 0 {
		return t.UserAnalytics(ctx, address)
	}
	view, err := t.TierView(address, tier)
	if err != nil {
		return nil, err
	}
	return view.Analytics(ctx)
}

// Initialize creates or resets the record of address at tier.
func (s *Service) Initialize(ctx context.Context, address string, tier int) (*analytics.Record, error) {
	t, err := s.trackerService()
	if err != nil {
		return nil, err
	}
	return t.InitializeUserAnalytics(ctx, address, tier)
}

// Refresh recomputes the content counts of address. A nonzero tier is stored
// as the record's tier first. With exact set the tier-exact view is returned.
func (s *Service) Refresh(ctx context.Context, address string, tier int, exact bool) (*analytics.Record, error) {
	t, err := s.trackerService()
	if err != nil {
		return nil, err
	}
	if !exact {
		return t.RefreshContentCounts(ctx, address, tier)
	}
	view, err := t.TierView(address, tier)
	if err != nil {
		return nil, err
	}
	return view.Refresh(ctx)
}

// Feed loads and returns the content feed of tier. Each call uses its own
// short-lived loader.
func (s *Service) Feed(ctx context.Context, tier int) (feed.State, error) {
	s.mu.RLock()
	if !s.started {
		s.mu.RUnlock()
		return feed.State{}, ErrNotStarted
	}
	src := s.content
	s.mu.RUnlock()

	loader, err := feed.New(src, tier, feed.WithMaxTier(s.maxTier))
	if err != nil {
		return feed.State{}, err
	}
	return loader.Refresh(ctx), nil
}

// Lessons returns the ordered lessons of a course.
func (s *Service) Lessons(ctx context.Context, courseID string) ([]content.Lesson, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.started {
		return nil, ErrNotStarted
	}
	return s.content.FetchLessons(ctx, courseID), nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]any {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := map[string]any{
		"started":     s.started,
		"workerCount": s.workerCount,
		"queueSize":   s.queueSize,
		"dedupeSize":  s.dedupeSize,
		"maxTier":     s.maxTier,
	}

	if s.started {
		queueLen := s.eventQueue.Len()
		stats["queueLength"] = queueLen
		stats["processed"] = s.workerPool.Processed()
		stats["failed"] = s.workerPool.Failed()
		stats["dedupeEntries"] = s.deduper.Size()
		if g, ok := s.store.(*docstore.Guarded); ok {
			stats["storeBreaker"] = g.State().String()
		}

		metrics.UpdateQueueSize(queueLen)
		metrics.UpdateQueueCapacity(s.eventQueue.Cap())
	}

	return stats
}
