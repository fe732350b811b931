// Package repository adapts the document store to the content catalogue and
// to the per-user analytics records.
package repository

import (
	"context"
	"fmt"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
)

const defaultLessonsCollection = "lessons"

// ContentRepository reads content items and lessons. It never writes items,
// except for the one-off course tier migration.
type ContentRepository struct {
	store             docstore.Store
	lessonsCollection string
	log               logger.Logger
}

// NewContentRepository creates a content repository on top of store.
func NewContentRepository(store docstore.Store, opts ...ContentOption) *ContentRepository {
	r := &ContentRepository{
		store:             store,
		lessonsCollection: defaultLessonsCollection,
		log:               logger.Named("content"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// tierFilters translates a tier constraint into store filters. Courses match
// exactly on their tiers list; a cumulative course constraint has no store
// filter and is applied in memory by matchTier, so the query does not grow
// with the tier.
func tierFilters(t content.Type, tier int, cmp content.Comparator) []docstore.Filter {
	d := t.Descriptor()
	switch {
	case d.TierArray && cmp == content.UpTo:
		return nil
	case d.TierArray:
		return []docstore.Filter{docstore.Where(d.TierField, docstore.ArrayContains, tier)}
	case cmp == content.UpTo:
		return []docstore.Filter{docstore.Where(d.TierField, docstore.LessOrEqual, tier)}
	default:
		return []docstore.Filter{docstore.Where(d.TierField, docstore.Equal, tier)}
	}
}

// queryTier returns the items of type t matching tier under cmp.
func (r *ContentRepository) queryTier(ctx context.Context, t content.Type, tier int, cmp content.Comparator) ([]content.Item, error) {
	filters := tierFilters(t, tier, cmp)
	snaps, err := r.store.Query(ctx, t.Descriptor().Collection, docstore.Query{Filters: filters})
	if err != nil {
		return nil, err
	}
	items := r.decodeItems(ctx, t, snaps)
	if len(filters) > 0 {
		return items, nil
	}
	return matchTier(t, items, tier, cmp), nil
}

func matchTier(t content.Type, items []content.Item, tier int, cmp content.Comparator) []content.Item {
	out := items[:0]
	for _, item := range items {
		if item.InTier(t, tier, cmp) {
			out = append(out, item)
		}
	}
	return out
}

func decodeItem(snap docstore.Snapshot) (content.Item, error) {
	var item content.Item
	if err := snap.Decode(&item); err != nil {
		return content.Item{}, err
	}
	item.ID = snap.ID
	return item, nil
}

func (r *ContentRepository) decodeItems(ctx context.Context, t content.Type, snaps []docstore.Snapshot) []content.Item {
	items := make([]content.Item, 0, len(snaps))
	for _, snap := range snaps {
		item, err := decodeItem(snap)
		if err != nil {
			r.log.Warn(ctx, "skipping malformed content item",
				logger.String("content_type", t.String()),
				logger.String("item_id", snap.ID),
				logger.Error(err))
			continue
		}
		items = append(items, item)
	}
	return items
}

// CountByTier counts the items of type t matching tier under cmp. When the
// filtered query fails it scans the whole collection and filters in memory;
// when that fails too it reports the type's fallback constant. It never fails.
func (r *ContentRepository) CountByTier(ctx context.Context, t content.Type, tier int, cmp content.Comparator) int {
	d := t.Descriptor()
	items, err := r.queryTier(ctx, t, tier, cmp)
	if err == nil {
		return len(items)
	}
	r.log.Warn(ctx, "tier count query failed, scanning collection",
		logger.String("content_type", d.Name),
		logger.Int("tier", tier),
		logger.Error(err))
	metrics.RecordCountFallback(d.Name, "scan")

	snaps, err := r.store.Query(ctx, d.Collection, docstore.Query{})
	if err != nil {
		r.log.Warn(ctx, "collection scan failed, using fallback count",
			logger.String("content_type", d.Name),
			logger.Int("fallback", d.FallbackCount),
			logger.Error(err))
		metrics.RecordCountFallback(d.Name, "constant")
		return d.FallbackCount
	}
	return len(matchTier(t, r.decodeItems(ctx, t, snaps), tier, cmp))
}

// FetchLatest returns at most limit items of type t available up to tier,
// ordered by the type's sort rule. A non-positive limit uses the feed limit.
func (r *ContentRepository) FetchLatest(ctx context.Context, t content.Type, tier, limit int) ([]content.Item, error) {
	items, err := r.queryTier(ctx, t, tier, content.UpTo)
	if err != nil {
		return nil, fmt.Errorf("fetch latest %s: %w", t.Descriptor().Name, err)
	}
	return content.Latest(t, items, limit), nil
}

// GetItem returns one item of type t.
func (r *ContentRepository) GetItem(ctx context.Context, t content.Type, id string) (content.Item, error) {
	snap, err := r.store.Get(ctx, t.Descriptor().Collection, id)
	if err != nil {
		return content.Item{}, fmt.Errorf("get %s %q: %w", t, id, err)
	}
	return decodeItem(snap)
}

// GetItems resolves ids in one batch. Unknown or malformed ids are absent
// from the result.
func (r *ContentRepository) GetItems(ctx context.Context, t content.Type, ids []string) (map[string]content.Item, error) {
	snaps, err := r.store.GetMany(ctx, t.Descriptor().Collection, ids)
	if err != nil {
		return nil, fmt.Errorf("get %s batch: %w", t, err)
	}
	out := make(map[string]content.Item, len(snaps))
	for id, snap := range snaps {
		item, err := decodeItem(snap)
		if err != nil {
			r.log.Warn(ctx, "skipping malformed content item",
				logger.String("content_type", t.String()),
				logger.String("item_id", id),
				logger.Error(err))
			continue
		}
		out[id] = item
	}
	return out, nil
}

// FetchLessons resolves a course's lessons from the top-level lessons
// collection, falling back to the course's lessons subcollection. It returns
// an empty list when neither yields anything.
func (r *ContentRepository) FetchLessons(ctx context.Context, courseID string) []content.Lesson {
	snaps, err := r.store.Query(ctx, r.lessonsCollection, docstore.Query{
		Filters: []docstore.Filter{docstore.Where("courseId", docstore.Equal, courseID)},
		OrderBy: "order",
	})
	if err != nil {
		r.log.Warn(ctx, "lessons query failed, trying course subcollection",
			logger.String("course_id", courseID),
			logger.Error(err))
	}
	if lessons := r.decodeLessons(ctx, courseID, snaps); len(lessons) > 0 {
		return lessons
	}

	snaps, err = r.store.Query(ctx, LessonsSubcollection(courseID), docstore.Query{})
	if err != nil {
		r.log.Warn(ctx, "course lessons subcollection failed",
			logger.String("course_id", courseID),
			logger.Error(err))
		return []content.Lesson{}
	}
	lessons := r.decodeLessons(ctx, courseID, snaps)
	content.SortLessons(lessons)
	return lessons
}

// LessonsSubcollection is the per-course lessons collection path.
func LessonsSubcollection(courseID string) string {
	return "courses/" + courseID + "/lessons"
}

func (r *ContentRepository) decodeLessons(ctx context.Context, courseID string, snaps []docstore.Snapshot) []content.Lesson {
	lessons := make([]content.Lesson, 0, len(snaps))
	for _, snap := range snaps {
		var l content.Lesson
		if err := snap.Decode(&l); err != nil {
			r.log.Warn(ctx, "skipping malformed lesson",
				logger.String("course_id", courseID),
				logger.String("lesson_id", snap.ID),
				logger.Error(err))
			continue
		}
		l.ID = snap.ID
		if l.CourseID == "" {
			l.CourseID = courseID
		}
		lessons = append(lessons, l)
	}
	return lessons
}

// MigrateCourseTiers rewrites course documents that still carry a scalar tier
// into the tiers list form. It returns how many documents were rewritten.
func (r *ContentRepository) MigrateCourseTiers(ctx context.Context) (int, error) {
	d := content.Courses.Descriptor()
	snaps, err := r.store.Query(ctx, d.Collection, docstore.Query{})
	if err != nil {
		return 0, fmt.Errorf("migrate course tiers: %w", err)
	}
	migrated := 0
	for _, snap := range snaps {
		if _, ok := snap.Data[d.TierField]; ok {
			continue
		}
		legacy, ok := snap.Data["tier"].(float64)
		if !ok {
			continue
		}
		err := r.store.Update(ctx, d.Collection, snap.ID,
			docstore.Set(docstore.Path(d.TierField), []int{int(legacy)}),
			docstore.Delete(docstore.Path("tier")),
		)
		if err != nil {
			return migrated, fmt.Errorf("migrate course %q: %w", snap.ID, err)
		}
		migrated++
	}
	if migrated > 0 {
		r.log.Info(ctx, "migrated legacy course tiers", logger.Int("courses", migrated))
	}
	return migrated, nil
}
