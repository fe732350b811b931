// Package tracking maintains per-user learning analytics: the cumulative
// record updated by every tracked interaction and tier-exact views derived
// from it.
package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/adapters/repository"
	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/internal/domain/model"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

// Thresholds for the completion gates.
const (
	videoCompletePercent  = 90.0
	courseCompletePercent = 100.0
)

// Records is the analytics record storage the service writes through.
type Records interface {
	Get(ctx context.Context, userID string) (*analytics.Record, error)
	Initialize(ctx context.Context, userID string, tier, minTotal int) (*analytics.Record, error)
	Transact(ctx context.Context, userID string, plan func(*analytics.Record) ([]docstore.FieldOp, error)) error
	CountAvailable(ctx context.Context, tier int) map[content.Type]int
	Now() time.Time
}

// Catalogue resolves content items and counts.
type Catalogue interface {
	CountByTier(ctx context.Context, t content.Type, tier int, cmp content.Comparator) int
	GetItem(ctx context.Context, t content.Type, id string) (content.Item, error)
	GetItems(ctx context.Context, t content.Type, ids []string) (map[string]content.Item, error)
}

// Service is the base analytics service. It is stateless apart from its
// collaborators, so one instance serves every user.
type Service struct {
	records         Records
	catalogue       Catalogue
	defaultTier     int
	maxTier         int
	minContentTotal int
	log             logger.Logger
}

// New creates a tracking service.
func New(records Records, catalogue Catalogue, opts ...Option) *Service {
	s := &Service{
		records:         records,
		catalogue:       catalogue,
		defaultTier:     defaultTier,
		maxTier:         content.DefaultMaxTier,
		minContentTotal: defaultMinContentTotal,
		log:             logger.Named("tracking"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) checkTier(tier int) error {
	if !content.ValidTier(tier, s.maxTier) {
		return fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	return nil
}

func canonicalUser(address string) (string, error) {
	user := analytics.CanonicalUserID(address)
	if user == "" {
		return "", ErrInvalidUser
	}
	return user, nil
}

func statsPath(t content.Type, field string) docstore.FieldPath {
	return docstore.Path(t.String(), field)
}

func itemPath(t content.Type, id, field string) docstore.FieldPath {
	return docstore.Path(t.String(), analytics.FieldInteractions, id, field)
}

// UserAnalytics returns the cumulative record for address, or ErrNoData.
func (s *Service) UserAnalytics(ctx context.Context, address string) (*analytics.Record, error) {
	user, err := canonicalUser(address)
	if err != nil {
		return nil, err
	}
	rec, err := s.records.Get(ctx, user)
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, ErrNoData
	}
	return rec, err
}

// InitializeUserAnalytics writes a fresh record for address at tier,
// replacing any existing one.
func (s *Service) InitializeUserAnalytics(ctx context.Context, address string, tier int) (*analytics.Record, error) {
	user, err := canonicalUser(address)
	if err != nil {
		return nil, err
	}
	if err := s.checkTier(tier); err != nil {
		return nil, err
	}
	rec, err := s.records.Initialize(ctx, user, tier, s.minContentTotal)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "initialized user analytics",
		logger.String("user", user),
		logger.Int("tier", tier),
		logger.Int("total_available", rec.TotalContentAvailable))
	return rec, nil
}

// RefreshContentCounts re-counts the content available up to tier and
// rewrites the stored totals and completion rate. A tier of zero uses the
// record's stored tier; any other tier also becomes the stored tier.
func (s *Service) RefreshContentCounts(ctx context.Context, address string, tier int) (*analytics.Record, error) {
	user, err := canonicalUser(address)
	if err != nil {
		return nil, err
	}
	if tier != 0 {
		if err := s.checkTier(tier); err != nil {
			return nil, err
		}
	} else {
		rec, err := s.UserAnalytics(ctx, user)
		if err != nil {
			return nil, err
		}
		tier = rec.TierLevel
	}

	counts := s.records.CountAvailable(ctx, tier)
	err = s.records.Transact(ctx, user, func(*analytics.Record) ([]docstore.FieldOp, error) {
		ops := make([]docstore.FieldOp, 0, len(counts)+3)
		total := 0
		for _, t := range content.All {
			ops = append(ops, docstore.Set(statsPath(t, analytics.FieldTotal), counts[t]))
			total += counts[t]
		}
		return append(ops,
			docstore.Set(docstore.Path(analytics.FieldTotalAvailable), total),
			docstore.Set(docstore.Path(analytics.FieldTierLevel), tier),
			repository.DeriveCompletionRate(),
		), nil
	})
	if errors.Is(err, repository.ErrRecordNotFound) {
		return nil, ErrNoData
	}
	if err != nil {
		return nil, err
	}
	return s.UserAnalytics(ctx, user)
}

// ensureRecord creates the record at the default tier when it is missing.
func (s *Service) ensureRecord(ctx context.Context, user string) error {
	_, err := s.records.Get(ctx, user)
	if !errors.Is(err, repository.ErrRecordNotFound) {
		return err
	}
	if _, err := s.InitializeUserAnalytics(ctx, user, s.defaultTier); err != nil {
		return err
	}
	_, err = s.RefreshContentCounts(ctx, user, 0)
	return err
}

// outcome is what one tracked interaction changed.
type outcome struct {
	first     bool
	completed bool
}

// planFunc returns the ops for one interaction given the record inside the
// write and the item's existing interaction, if any.
type planFunc func(rec *analytics.Record, prev analytics.Interaction, first bool, now time.Time) ([]docstore.FieldOp, outcome)

func (s *Service) track(ctx context.Context, address string, t content.Type, itemID string, plan planFunc) error {
	start := time.Now()
	user, err := canonicalUser(address)
	if err != nil {
		return err
	}
	if itemID == "" {
		return ErrInvalidItem
	}
	if err := s.ensureRecord(ctx, user); err != nil {
		return fmt.Errorf("prepare analytics record: %w", err)
	}

	var result outcome
	err = s.records.Transact(ctx, user, func(rec *analytics.Record) ([]docstore.FieldOp, error) {
		prev, seen := rec.Stats(t).Interactions[itemID]
		var ops []docstore.FieldOp
		ops, result = plan(rec, prev, !seen, s.records.Now())
		if result.first {
			ops = append(ops,
				docstore.Increment(statsPath(t, analytics.FieldEngaged), 1),
				docstore.Increment(docstore.Path(analytics.FieldTotalEngaged), 1))
		}
		if result.completed {
			ops = append(ops, repository.DeriveCompletionRate())
		}
		return ops, nil
	})
	if err != nil {
		return err
	}

	if result.first {
		metrics.RecordFirstEngagement(t.String())
	}
	if result.completed {
		metrics.RecordCompletion(t.String())
	}
	metrics.RecordTrackingLatency(float64(time.Since(start).Milliseconds()))
	s.log.Debug(ctx, "tracked interaction",
		logger.String("user", user),
		logger.String("content_type", t.String()),
		logger.String("item_id", itemID),
		logger.Bool("first", result.first),
		logger.Bool("completed", result.completed))
	return nil
}

// markCompleted increments the type's completed counter and flags the item.
func markCompleted(t content.Type, id string) []docstore.FieldOp {
	return []docstore.FieldOp{
		docstore.Increment(statsPath(t, analytics.FieldCompleted), 1),
		docstore.Set(itemPath(t, id, analytics.InteractionCompleted), true),
	}
}

// averageWith averages field over the type's interactions with id's value
// replaced by v.
func averageWith(interactions map[string]analytics.Interaction, id string, v float64, field func(analytics.Interaction) float64) float64 {
	sum, n := v, 1
	for other, in := range interactions {
		if other == id {
			continue
		}
		sum += field(in)
		n++
	}
	return sum / float64(n)
}

// TrackVideoWatched records a watch ping. Watch minutes accumulate on every
// call; the video completes once more than 90 percent has been watched.
func (s *Service) TrackVideoWatched(ctx context.Context, address, videoID string, secondsWatched, percentWatched float64) error {
	if secondsWatched < 0 || percentWatched < 0 {
		return fmt.Errorf("%w: negative watch progress", ErrInvalidEvent)
	}
	t := content.Videos
	return s.track(ctx, address, t, videoID, func(_ *analytics.Record, prev analytics.Interaction, first bool, now time.Time) ([]docstore.FieldOp, outcome) {
		minutes := analytics.WatchMinutes(secondsWatched)
		ops := []docstore.FieldOp{
			docstore.Set(itemPath(t, videoID, analytics.InteractionTimestamp), now),
			docstore.Set(itemPath(t, videoID, analytics.InteractionProgress), percentWatched),
			docstore.Increment(itemPath(t, videoID, analytics.InteractionMinutes), minutes),
			docstore.Increment(statsPath(t, analytics.FieldMetric), minutes),
		}
		out := outcome{first: first}
		if percentWatched > videoCompletePercent && !prev.Completed {
			ops = append(ops, markCompleted(t, videoID)...)
			out.completed = true
		}
		return ops, out
	})
}

// TrackCourseProgress records course progress. The course completes once it
// reaches 100 percent.
func (s *Service) TrackCourseProgress(ctx context.Context, address, courseID string, percentCompleted float64, lessonID string) error {
	if percentCompleted < 0 {
		return fmt.Errorf("%w: negative course progress", ErrInvalidEvent)
	}
	t := content.Courses
	return s.track(ctx, address, t, courseID, func(rec *analytics.Record, prev analytics.Interaction, first bool, now time.Time) ([]docstore.FieldOp, outcome) {
		ops := []docstore.FieldOp{
			docstore.Set(itemPath(t, courseID, analytics.InteractionTimestamp), now),
			docstore.Set(itemPath(t, courseID, analytics.InteractionProgress), percentCompleted),
			docstore.Set(statsPath(t, analytics.FieldMetric), averageWith(rec.Courses.Interactions, courseID, percentCompleted,
				func(in analytics.Interaction) float64 { return in.Progress })),
		}
		if lessonID != "" {
			ops = append(ops, docstore.Set(itemPath(t, courseID, analytics.InteractionLessonID), lessonID))
		}
		out := outcome{first: first}
		if percentCompleted >= courseCompletePercent && !prev.Completed {
			ops = append(ops, markCompleted(t, courseID)...)
			out.completed = true
		}
		return ops, out
	})
}

// TrackTestCompleted records a test attempt. The first passing attempt
// completes the test.
func (s *Service) TrackTestCompleted(ctx context.Context, address, testID string, score float64, passed bool) error {
	t := content.Tests
	return s.track(ctx, address, t, testID, func(rec *analytics.Record, prev analytics.Interaction, first bool, now time.Time) ([]docstore.FieldOp, outcome) {
		ops := []docstore.FieldOp{
			docstore.Set(itemPath(t, testID, analytics.InteractionTimestamp), now),
			docstore.Set(itemPath(t, testID, analytics.InteractionScore), score),
			docstore.Set(itemPath(t, testID, analytics.InteractionPassed), passed || prev.Passed),
			docstore.Increment(itemPath(t, testID, analytics.InteractionAttempts), 1),
			docstore.Set(statsPath(t, analytics.FieldMetric), averageWith(rec.Tests.Interactions, testID, score,
				func(in analytics.Interaction) float64 { return in.Score })),
		}
		out := outcome{first: first}
		if passed && !prev.Completed {
			ops = append(ops, markCompleted(t, testID)...)
			out.completed = true
		}
		return ops, out
	})
}

// trackFirstTouch records content whose first touch both engages and
// completes it. Minutes are only counted on that first touch.
func (s *Service) trackFirstTouch(ctx context.Context, address string, t content.Type, id string, minutes float64) error {
	if minutes < 0 {
		return fmt.Errorf("%w: negative minutes", ErrInvalidEvent)
	}
	return s.track(ctx, address, t, id, func(_ *analytics.Record, _ analytics.Interaction, first bool, now time.Time) ([]docstore.FieldOp, outcome) {
		ops := []docstore.FieldOp{
			docstore.Set(itemPath(t, id, analytics.InteractionTimestamp), now),
		}
		if !first {
			return ops, outcome{}
		}
		ops = append(ops,
			docstore.Set(itemPath(t, id, analytics.InteractionMinutes), minutes),
			docstore.Increment(statsPath(t, analytics.FieldMetric), minutes))
		ops = append(ops, markCompleted(t, id)...)
		return ops, outcome{first: true, completed: true}
	})
}

// TrackBlogRead records a blog read.
func (s *Service) TrackBlogRead(ctx context.Context, address, blogID string, minutesRead float64) error {
	return s.trackFirstTouch(ctx, address, content.Blogs, blogID, minutesRead)
}

// TrackCallAttended records attendance of a live call.
func (s *Service) TrackCallAttended(ctx context.Context, address, callID string, minutesAttended float64) error {
	return s.trackFirstTouch(ctx, address, content.Calls, callID, minutesAttended)
}

// TrackBlogShared records a share of a blog. Sharing is not engagement.
func (s *Service) TrackBlogShared(ctx context.Context, address, blogID, platform string) error {
	t := content.Blogs
	return s.track(ctx, address, t, blogID, func(_ *analytics.Record, _ analytics.Interaction, _ bool, now time.Time) ([]docstore.FieldOp, outcome) {
		share := func(field string) docstore.FieldPath {
			return docstore.Path(analytics.FieldShares, blogID, field)
		}
		ops := []docstore.FieldOp{
			docstore.Increment(statsPath(t, analytics.FieldShareCount), 1),
			docstore.Increment(share(analytics.ShareCount), 1),
			docstore.Set(share(analytics.ShareLastShared), now),
		}
		if platform != "" {
			ops = append(ops, docstore.ArrayUnion(share(analytics.SharePlatforms), platform))
		}
		return ops, outcome{}
	})
}

// Track dispatches a queued event to the matching track operation.
func (s *Service) Track(ctx context.Context, ev model.TrackEvent) error {
	var err error
	switch ev.Kind {
	case model.KindVideoWatched:
		err = s.TrackVideoWatched(ctx, ev.UserID, ev.ItemID, ev.Seconds, ev.Percent)
	case model.KindCourseProgress:
		err = s.TrackCourseProgress(ctx, ev.UserID, ev.ItemID, ev.Percent, ev.LessonID)
	case model.KindTestCompleted:
		err = s.TrackTestCompleted(ctx, ev.UserID, ev.ItemID, ev.Score, ev.Passed)
	case model.KindBlogRead:
		err = s.TrackBlogRead(ctx, ev.UserID, ev.ItemID, ev.Minutes)
	case model.KindBlogShared:
		err = s.TrackBlogShared(ctx, ev.UserID, ev.ItemID, ev.Platform)
	case model.KindCallAttended:
		err = s.TrackCallAttended(ctx, ev.UserID, ev.ItemID, ev.Minutes)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownEvent, ev.Kind)
	}

	ct, _ := ev.Kind.ContentType()
	if err != nil {
		metrics.RecordTrackingEvent(ct.String(), "failed")
		return err
	}
	metrics.RecordTrackingEvent(ct.String(), "processed")
	return nil
}
