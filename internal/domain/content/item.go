package content

import (
	"slices"
	"sort"
	"strings"
	"time"
)

// Lesson sources reported on enriched courses.
const (
	LessonSourceCollection = "collection"
	LessonSourceEmbedded   = "embedded"
)

// LessonType is the medium of a lesson.
type LessonType string

// Lesson media.
const (
	LessonVideo LessonType = "video"
	LessonPDF   LessonType = "pdf"
)

// Item is a content document as stored by the content team. Analytics never
// writes items.
type Item struct {
	ID          string    `json:"id"`
	Title       string    `json:"title,omitempty"`
	Description string    `json:"description,omitempty"`
	Tier        int       `json:"tier,omitempty"`
	Tiers       []int     `json:"tiers,omitempty"`
	Date        time.Time `json:"date"`
	Difficulty  string    `json:"difficulty,omitempty"`
	URL         string    `json:"url,omitempty"`

	// Course-only fields.
	Lessons      int      `json:"lessons,omitempty"`
	LessonData   []Lesson `json:"lessonData,omitempty"`
	LessonSource string   `json:"lessonSource,omitempty"`
}

// Lesson belongs to exactly one course.
type Lesson struct {
	ID       string     `json:"id"`
	CourseID string     `json:"courseId"`
	Title    string     `json:"title,omitempty"`
	Order    int        `json:"order"`
	Type     LessonType `json:"type"`
	URL      string     `json:"url"`
	Duration string     `json:"duration,omitempty"`
}

// InTier reports whether the item matches tier under cmp for content type t.
// Courses match on their tiers list; every other type on its scalar tier.
func (i Item) InTier(t Type, tier int, cmp Comparator) bool {
	if t.Descriptor().TierArray {
		for _, v := range i.Tiers {
			if v == tier || (cmp == UpTo && v >= 1 && v <= tier) {
				return true
			}
		}
		return false
	}
	if cmp == UpTo {
		return i.Tier <= tier
	}
	return i.Tier == tier
}

var difficultyRank = map[string]int{
	"beginner":     0,
	"intermediate": 1,
	"advanced":     2,
}

// DifficultyRank orders test difficulties; unknown values rank as intermediate.
func DifficultyRank(difficulty string) int {
	if r, ok := difficultyRank[strings.ToLower(strings.TrimSpace(difficulty))]; ok {
		return r
	}
	return difficultyRank["intermediate"]
}

// Sort orders items in place according to rule. Ties fall back to id so the
// order is deterministic.
func Sort(items []Item, rule SortRule) {
	sort.SliceStable(items, func(a, b int) bool {
		x, y := items[a], items[b]
		switch rule {
		case SoonestFirst:
			if !x.Date.Equal(y.Date) {
				return x.Date.Before(y.Date)
			}
		case EasiestThenNewest:
			if rx, ry := DifficultyRank(x.Difficulty), DifficultyRank(y.Difficulty); rx != ry {
				return rx < ry
			}
			if !x.Date.Equal(y.Date) {
				return x.Date.After(y.Date)
			}
		default:
			if !x.Date.Equal(y.Date) {
				return x.Date.After(y.Date)
			}
		}
		return x.ID < y.ID
	})
}

// Latest sorts items by the type's rule and keeps at most limit of them.
// A non-positive limit uses the type's feed limit.
func Latest(t Type, items []Item, limit int) []Item {
	d := t.Descriptor()
	if limit <= 0 {
		limit = d.FeedLimit
	}
	out := slices.Clone(items)
	Sort(out, d.Sort)
	if len(out) > limit {
		out = out[:limit]
	}
	return out
}

// SortLessons orders lessons by their order field.
func SortLessons(lessons []Lesson) {
	sort.SliceStable(lessons, func(a, b int) bool {
		return lessons[a].Order < lessons[b].Order
	})
}
