package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
)

const defaultRecordsCollection = "userAnalytics"

// Counter reports how many items of a type are available for a tier.
type Counter interface {
	CountByTier(ctx context.Context, t content.Type, tier int, cmp content.Comparator) int
}

// RecordStore keeps one analytics record per canonical wallet address.
type RecordStore struct {
	store      docstore.Store
	counter    Counter
	collection string
	now        func() time.Time
	log        logger.Logger
}

// NewRecordStore creates a record store. counter supplies the available
// counts snapshotted by Initialize.
func NewRecordStore(store docstore.Store, counter Counter, opts ...RecordOption) *RecordStore {
	s := &RecordStore{
		store:      store,
		counter:    counter,
		collection: defaultRecordsCollection,
		now:        time.Now,
		log:        logger.Named("records"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the store clock.
func (s *RecordStore) Now() time.Time {
	return s.now().UTC()
}

// Get returns the record for userID or ErrRecordNotFound.
func (s *RecordStore) Get(ctx context.Context, userID string) (*analytics.Record, error) {
	snap, err := s.store.Get(ctx, s.collection, analytics.CanonicalUserID(userID))
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, ErrRecordNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get analytics record: %w", err)
	}
	return decodeRecord(snap.Data)
}

// CountAvailable counts the content available up to tier for every type.
func (s *RecordStore) CountAvailable(ctx context.Context, tier int) map[content.Type]int {
	out := make(map[content.Type]int, len(content.All))
	for _, t := range content.All {
		out[t] = s.counter.CountByTier(ctx, t, tier, content.UpTo)
	}
	return out
}

// Initialize writes a fresh record for userID at tier with every engagement
// counter at zero, overwriting any existing record. When no content is
// available the total is seeded with minTotal so the completion rate stays
// defined; pass 0 to disable seeding.
func (s *RecordStore) Initialize(ctx context.Context, userID string, tier, minTotal int) (*analytics.Record, error) {
	if tier < 1 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	rec := analytics.NewRecord(userID, tier, s.Now())
	for t, n := range s.CountAvailable(ctx, tier) {
		rec.Stats(t).Total = n
		rec.TotalContentAvailable += n
	}
	if rec.TotalContentAvailable == 0 {
		rec.TotalContentAvailable = minTotal
	}
	rec.RecomputeRate()

	doc, err := docstore.EncodeDocument(rec)
	if err != nil {
		return nil, err
	}
	if err := s.store.Set(ctx, s.collection, rec.UserID, doc); err != nil {
		return nil, fmt.Errorf("initialize analytics record: %w", err)
	}
	s.log.Debug(ctx, "initialized analytics record",
		logger.String("user", rec.UserID),
		logger.Int("tier", tier),
		logger.Int("total_available", rec.TotalContentAvailable))
	return rec, nil
}

// ApplyUpdate applies ops to the record atomically and stamps lastUpdated.
func (s *RecordStore) ApplyUpdate(ctx context.Context, userID string, ops ...docstore.FieldOp) error {
	return s.Transact(ctx, userID, func(*analytics.Record) ([]docstore.FieldOp, error) {
		return ops, nil
	})
}

// Transact plans ops from the record as it is inside the write and applies
// them atomically, stamping lastUpdated.
func (s *RecordStore) Transact(ctx context.Context, userID string, plan func(*analytics.Record) ([]docstore.FieldOp, error)) error {
	err := s.store.Transact(ctx, s.collection, analytics.CanonicalUserID(userID), func(cur docstore.Document) ([]docstore.FieldOp, error) {
		rec, err := decodeRecord(cur)
		if err != nil {
			return nil, err
		}
		ops, err := plan(rec)
		if err != nil {
			return nil, err
		}
		return append(ops, docstore.Set(docstore.Path(analytics.FieldLastUpdated), s.Now())), nil
	})
	if errors.Is(err, docstore.ErrNotFound) {
		return ErrRecordNotFound
	}
	if err != nil {
		return fmt.Errorf("update analytics record: %w", err)
	}
	return nil
}

// DeriveCompletionRate recomputes overallCompletionRate from the counters as
// they stand after the preceding ops of the same update.
func DeriveCompletionRate() docstore.FieldOp {
	return docstore.Derive(docstore.Path(analytics.FieldCompletionRate), func(doc docstore.Document) any {
		rec, err := decodeRecord(doc)
		if err != nil {
			return 0.0
		}
		return analytics.CompletionRate(rec.CompletedSum(), rec.TotalContentAvailable)
	})
}

func decodeRecord(doc docstore.Document) (*analytics.Record, error) {
	var rec analytics.Record
	if err := docstore.DecodeDocument(doc, &rec); err != nil {
		return nil, fmt.Errorf("decode analytics record: %w", err)
	}
	for _, t := range content.All {
		if s := rec.Stats(t); s.Interactions == nil {
			s.Interactions = map[string]analytics.Interaction{}
		}
	}
	if rec.Shares == nil {
		rec.Shares = map[string]analytics.Share{}
	}
	return &rec, nil
}
