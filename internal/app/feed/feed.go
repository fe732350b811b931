// Package feed loads the latest-content feed of one tier across every
// content type, with lessons resolved for each course.
package feed

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

// ErrInvalidTier is returned for tiers outside 1..max tier.
var ErrInvalidTier = errors.New("invalid tier")

// Source reads content for the feed.
type Source interface {
	FetchLatest(ctx context.Context, t content.Type, tier, limit int) ([]content.Item, error)
	FetchLessons(ctx context.Context, courseID string) []content.Lesson
}

// State is a snapshot of the feed. Error is set only when the feed as a
// whole could not be loaded.
type State struct {
	Tier      int            `json:"tier"`
	Videos    []content.Item `json:"videos"`
	Courses   []content.Item `json:"courses"`
	Blogs     []content.Item `json:"blogs"`
	Calls     []content.Item `json:"calls"`
	Tests     []content.Item `json:"tests"`
	IsLoading bool           `json:"isLoading"`
	Error     string         `json:"error,omitempty"`
	LoadedAt  time.Time      `json:"loadedAt"`
}

func (s *State) set(t content.Type, items []content.Item) {
	switch t {
	case content.Videos:
		s.Videos = items
	case content.Courses:
		s.Courses = items
	case content.Blogs:
		s.Blogs = items
	case content.Calls:
		s.Calls = items
	case content.Tests:
		s.Tests = items
	}
}

func emptyState(tier int) State {
	return State{
		Tier:    tier,
		Videos:  []content.Item{},
		Courses: []content.Item{},
		Blogs:   []content.Item{},
		Calls:   []content.Item{},
		Tests:   []content.Item{},
	}
}

// Option configures a Loader.
type Option func(*Loader)

// WithLogger sets the loader logger.
func WithLogger(l logger.Logger) Option {
	return func(ld *Loader) {
		ld.log = l
	}
}

// WithMaxTier sets the highest tier a loader accepts.
func WithMaxTier(tier int) Option {
	return func(ld *Loader) {
		if tier >= 1 {
			ld.maxTier = tier
		}
	}
}

// Loader holds the feed state of one tier. Refresh re-fetches it.
type Loader struct {
	src     Source
	tier    int
	maxTier int
	log     logger.Logger

	mu    sync.RWMutex
	state State
}

// New creates a loader for tier. Nothing is fetched until Refresh.
func New(src Source, tier int, opts ...Option) (*Loader, error) {
	l := &Loader{
		src:     src,
		tier:    tier,
		maxTier: content.DefaultMaxTier,
		log:     logger.Named("feed"),
	}
	for _, opt := range opts {
		opt(l)
	}
	if !content.ValidTier(tier, l.maxTier) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidTier, tier)
	}
	l.state = emptyState(tier)
	return l, nil
}

// State returns the current feed state.
func (l *Loader) State() State {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.state
}

// Refresh fetches every content type concurrently and returns the new state.
// A videos failure fails the whole feed; any other type that fails is left
// empty.
func (l *Loader) Refresh(ctx context.Context) State {
	l.mu.Lock()
	l.state.IsLoading = true
	l.mu.Unlock()

	next := emptyState(l.tier)
	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		errs = make(map[content.Type]error)
	)
	for _, t := range content.All {
		wg.Add(1)
		go func() {
			defer wg.Done()
			items, err := l.src.FetchLatest(ctx, t, l.tier, t.Descriptor().FeedLimit)
			if err == nil && t == content.Courses {
				items = l.withLessons(ctx, items)
			}
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[t] = err
				return
			}
			if items != nil {
				next.set(t, items)
			}
		}()
	}
	wg.Wait()

	if err, ok := errs[content.Videos]; ok {
		l.log.Error(ctx, "content feed failed",
			logger.Int("tier", l.tier),
			logger.Error(err))
		metrics.RecordFeedFailure(content.Videos.String())
		next = emptyState(l.tier)
		next.Error = "failed to load content: " + err.Error()
	} else {
		for t, err := range errs {
			l.log.Warn(ctx, "content type unavailable, serving it empty",
				logger.Int("tier", l.tier),
				logger.String("content_type", t.String()),
				logger.Error(err))
			metrics.RecordFeedFailure(t.String())
		}
	}
	next.LoadedAt = time.Now().UTC()

	l.mu.Lock()
	l.state = next
	l.mu.Unlock()
	return next
}

// withLessons resolves each course's lessons from the lessons collection,
// falling back to the lessons embedded in the course document.
func (l *Loader) withLessons(ctx context.Context, courses []content.Item) []content.Item {
	out := make([]content.Item, len(courses))
	for i, course := range courses {
		if lessons := l.src.FetchLessons(ctx, course.ID); len(lessons) > 0 {
			course.LessonData = lessons
			course.Lessons = len(lessons)
			course.LessonSource = content.LessonSourceCollection
		} else if len(course.LessonData) > 0 {
			embedded := slices.Clone(course.LessonData)
			content.SortLessons(embedded)
			course.LessonData = embedded
			course.LessonSource = content.LessonSourceEmbedded
		}
		out[i] = course
	}
	return out
}
