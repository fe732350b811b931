// Package model contains the tracking events passed between layers.
package model

import (
	"time"

	"github.com/okian/tierlearn/internal/domain/content"
)

// Kind names a tracking operation.
type Kind string

// Tracking operations.
const (
	KindVideoWatched   Kind = "video_watched"
	KindCourseProgress Kind = "course_progress"
	KindTestCompleted  Kind = "test_completed"
	KindBlogRead       Kind = "blog_read"
	KindBlogShared     Kind = "blog_shared"
	KindCallAttended   Kind = "call_attended"
)

// Kinds lists every tracking operation.
var Kinds = []Kind{ //nolint:gochecknoglobals // fixed enumeration
	KindVideoWatched, KindCourseProgress, KindTestCompleted,
	KindBlogRead, KindBlogShared, KindCallAttended,
}

// ContentType returns the content type a kind of event is about.
func (k Kind) ContentType() (content.Type, bool) {
	switch k {
	case KindVideoWatched:
		return content.Videos, true
	case KindCourseProgress:
		return content.Courses, true
	case KindTestCompleted:
		return content.Tests, true
	case KindBlogRead, KindBlogShared:
		return content.Blogs, true
	case KindCallAttended:
		return content.Calls, true
	}
	return 0, false
}

// TrackEvent is one learner interaction submitted for tracking. Only the
// fields relevant to Kind are read.
type TrackEvent struct {
	EventID  string    // idempotency key
	UserID   string    // wallet address
	Kind     Kind      // which tracking operation
	ItemID   string    // content item id
	Seconds  float64   // video watch duration
	Percent  float64   // video watched percent or course progress
	LessonID string    // course lesson, optional
	Score    float64   // test score
	Passed   bool      // test outcome
	Minutes  float64   // blog read time or call duration
	Platform string    // blog share target
	TS       time.Time // when the interaction happened
}
