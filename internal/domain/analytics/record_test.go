package analytics_test

import (
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/content"
	. "github.com/smartystreets/goconvey/convey"
)

func TestCompletionRate(t *testing.T) {
	Convey("CompletionRate", t, func() {
		So(analytics.CompletionRate(0, 0), ShouldEqual, 0)
		So(analytics.CompletionRate(5, 0), ShouldEqual, 0)
		So(analytics.CompletionRate(1, 50), ShouldEqual, 2)
		So(analytics.CompletionRate(2, 8), ShouldEqual, 25)
		So(analytics.CompletionRate(80, 50), ShouldEqual, 100)
		So(analytics.CompletionRate(-3, 10), ShouldEqual, 0)
	})
}

func TestWatchMinutes(t *testing.T) {
	Convey("WatchMinutes floors and never drops below one", t, func() {
		So(analytics.WatchMinutes(0), ShouldEqual, 1)
		So(analytics.WatchMinutes(59), ShouldEqual, 1)
		So(analytics.WatchMinutes(120), ShouldEqual, 2)
		So(analytics.WatchMinutes(179), ShouldEqual, 2)
	})
}

func TestRecord(t *testing.T) {
	Convey("Given a new record", t, func() {
		now := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
		r := analytics.NewRecord(" 0xABC ", 2, now)

		Convey("The user id is canonical and every map exists", func() {
			So(r.UserID, ShouldEqual, "0xabc")
			So(r.TierLevel, ShouldEqual, 2)
			for _, ct := range content.All {
				So(r.Stats(ct).Interactions, ShouldNotBeNil)
			}
		})

		Convey("Stats points into the record", func() {
			r.Stats(content.Courses).Completed = 3
			So(r.Courses.Completed, ShouldEqual, 3)
		})

		Convey("RecomputeRate uses the completed sum", func() {
			r.TotalContentAvailable = 20
			r.Videos.Completed = 1
			r.Tests.Completed = 1
			r.Calls.Completed = 2
			So(r.CompletedSum(), ShouldEqual, 4)
			r.RecomputeRate()
			So(r.OverallCompletionRate, ShouldEqual, 20)
		})

		Convey("Clone is deep", func() {
			r.Videos.Interactions["v1"] = analytics.Interaction{Progress: 50}
			r.Shares["b1"] = analytics.Share{Count: 1, Platforms: []string{"x"}}

			c := r.Clone()
			c.Videos.Interactions["v1"] = analytics.Interaction{Progress: 95}
			c.Videos.Completed = 9
			share := c.Shares["b1"]
			share.Platforms[0] = "mutated"

			So(r.Videos.Interactions["v1"].Progress, ShouldEqual, 50)
			So(r.Videos.Completed, ShouldEqual, 0)
			So(r.Shares["b1"].Platforms[0], ShouldEqual, "x")
		})

		Convey("Clone of nil is nil", func() {
			var nilRecord *analytics.Record
			So(nilRecord.Clone(), ShouldBeNil)
		})
	})
}
