// Package analytics holds the per-user learning analytics record and the
// arithmetic shared by the tracking service and the tier views.
package analytics

import (
	"maps"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/okian/tierlearn/internal/domain/content"
)

// Document field names of a Record. Per-type stats live under the content
// type name, e.g. videos.completed.
const (
	FieldUserID         = "userId"
	FieldTierLevel      = "tierLevel"
	FieldTotalAvailable = "totalContentAvailable"
	FieldTotalEngaged   = "totalContentEngaged"
	FieldCompletionRate = "overallCompletionRate"
	FieldLastUpdated    = "lastUpdated"
	FieldShares         = "shares"

	FieldTotal        = "total"
	FieldEngaged      = "engaged"
	FieldCompleted    = "completed"
	FieldMetric       = "metric"
	FieldShareCount   = "shareCount"
	FieldInteractions = "interactions"
)

// Interaction is the per-item detail kept for one user and one content item.
type Interaction struct {
	// Progress is percent watched (videos) or percent completed (courses).
	Progress  float64   `json:"progress,omitempty"`
	Minutes   float64   `json:"minutes,omitempty"`
	Score     float64   `json:"score,omitempty"`
	Passed    bool      `json:"passed,omitempty"`
	Completed bool      `json:"completed,omitempty"`
	Attempts  int       `json:"attempts,omitempty"`
	LessonID  string    `json:"lessonId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Interaction field names.
const (
	InteractionProgress  = "progress"
	InteractionMinutes   = "minutes"
	InteractionScore     = "score"
	InteractionPassed    = "passed"
	InteractionCompleted = "completed"
	InteractionAttempts  = "attempts"
	InteractionLessonID  = "lessonId"
	InteractionTimestamp = "timestamp"
)

// TypeStats aggregates one content type for one user.
//
// Metric depends on the type: watch minutes (videos), average completion
// percent (courses), average score (tests), read minutes (blogs) and call
// minutes (calls).
type TypeStats struct {
	Total        int                    `json:"total"`
	Engaged      int                    `json:"engaged"`
	Completed    int                    `json:"completed"`
	Metric       float64                `json:"metric"`
	ShareCount   int                    `json:"shareCount,omitempty"`
	Interactions map[string]Interaction `json:"interactions"`
}

// Share tracks how often a blog was shared and where.
type Share struct {
	Count      int       `json:"count"`
	Platforms  []string  `json:"platforms,omitempty"`
	LastShared time.Time `json:"lastShared"`
}

// Share field names.
const (
	ShareCount      = "count"
	SharePlatforms  = "platforms"
	ShareLastShared = "lastShared"
)

// Record is the analytics document kept for one wallet address.
type Record struct {
	UserID                string           `json:"userId"`
	TierLevel             int              `json:"tierLevel"`
	TotalContentAvailable int              `json:"totalContentAvailable"`
	TotalContentEngaged   int              `json:"totalContentEngaged"`
	OverallCompletionRate float64          `json:"overallCompletionRate"`
	Videos                TypeStats        `json:"videos"`
	Courses               TypeStats        `json:"courses"`
	Blogs                 TypeStats        `json:"blogs"`
	Tests                 TypeStats        `json:"tests"`
	Calls                 TypeStats        `json:"calls"`
	Shares                map[string]Share `json:"shares,omitempty"`
	LastUpdated           time.Time        `json:"lastUpdated"`
}

// CanonicalUserID lower-cases and trims a wallet address.
func CanonicalUserID(address string) string {
	return strings.ToLower(strings.TrimSpace(address))
}

// NewRecord returns an empty record with every interaction map allocated.
func NewRecord(userID string, tier int, now time.Time) *Record {
	r := &Record{
		UserID:      CanonicalUserID(userID),
		TierLevel:   tier,
		Shares:      map[string]Share{},
		LastUpdated: now,
	}
	for _, t := range content.All {
		r.Stats(t).Interactions = map[string]Interaction{}
	}
	return r
}

// Stats returns a pointer to the stats of content type t.
func (r *Record) Stats(t content.Type) *TypeStats {
	switch t {
	case content.Videos:
		return &r.Videos
	case content.Courses:
		return &r.Courses
	case content.Blogs:
		return &r.Blogs
	case content.Tests:
		return &r.Tests
	case content.Calls:
		return &r.Calls
	}
	panic("analytics: invalid content type " + t.String())
}

// CompletedSum adds the completed counters of all five types.
func (r *Record) CompletedSum() int {
	sum := 0
	for _, t := range content.All {
		sum += r.Stats(t).Completed
	}
	return sum
}

// RecomputeRate derives OverallCompletionRate from the current counters.
func (r *Record) RecomputeRate() {
	r.OverallCompletionRate = CompletionRate(r.CompletedSum(), r.TotalContentAvailable)
}

// Clone returns a deep copy of r.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	c := *r
	for _, t := range content.All {
		s := c.Stats(t)
		s.Interactions = maps.Clone(s.Interactions)
	}
	if r.Shares != nil {
		c.Shares = make(map[string]Share, len(r.Shares))
		for id, s := range r.Shares {
			s.Platforms = slices.Clone(s.Platforms)
			c.Shares[id] = s
		}
	}
	return &c
}

// CompletionRate is 100*completed/available clamped to [0,100]; zero when
// nothing is available.
func CompletionRate(completed, available int) float64 {
	if available <= 0 {
		return 0
	}
	rate := 100 * float64(completed) / float64(available)
	return math.Max(0, math.Min(100, rate))
}

// WatchMinutes converts a watch duration to whole minutes, never less than one.
func WatchMinutes(seconds float64) float64 {
	return math.Max(1, math.Floor(seconds/60))
}
