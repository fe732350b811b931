package content_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/domain/content"
	. "github.com/smartystreets/goconvey/convey"
)

func day(n int) time.Time {
	return time.Date(2025, 1, n, 12, 0, 0, 0, time.UTC)
}

func ids(items []content.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestTypeTable(t *testing.T) {
	Convey("Given the content type table", t, func() {
		Convey("Then every type has a complete descriptor", func() {
			for _, ct := range content.All {
				d := ct.Descriptor()
				So(d.Type, ShouldEqual, ct)
				So(d.Collection, ShouldNotBeEmpty)
				So(d.FeedLimit, ShouldBeGreaterThan, 0)
				So(d.FallbackCount, ShouldBeGreaterThan, 0)
			}
		})

		Convey("Then feed limits follow the dashboard layout", func() {
			So(content.Videos.Descriptor().FeedLimit, ShouldEqual, 3)
			So(content.Courses.Descriptor().FeedLimit, ShouldEqual, 3)
			So(content.Blogs.Descriptor().FeedLimit, ShouldEqual, 3)
			So(content.Calls.Descriptor().FeedLimit, ShouldEqual, 2)
			So(content.Tests.Descriptor().FeedLimit, ShouldEqual, 6)
		})

		Convey("Then only courses store tier membership as a list", func() {
			So(content.Courses.Descriptor().TierArray, ShouldBeTrue)
			So(content.Courses.Descriptor().TierField, ShouldEqual, "tiers")
			So(content.Videos.Descriptor().TierArray, ShouldBeFalse)
		})

		Convey("When parsing names", func() {
			v, err := content.ParseType("Video")
			So(err, ShouldBeNil)
			So(v, ShouldEqual, content.Videos)

			c, err := content.ParseType("calls")
			So(err, ShouldBeNil)
			So(c, ShouldEqual, content.Calls)

			_, err = content.ParseType("podcasts")
			So(errors.Is(err, content.ErrUnknownType), ShouldBeTrue)
		})

		Convey("When round-tripping through text", func() {
			b, err := content.Tests.MarshalText()
			So(err, ShouldBeNil)
			So(string(b), ShouldEqual, "tests")

			var ct content.Type
			So(ct.UnmarshalText([]byte("blog")), ShouldBeNil)
			So(ct, ShouldEqual, content.Blogs)

			_, err = content.Type(42).MarshalText()
			So(err, ShouldNotBeNil)
			So(content.Type(42).String(), ShouldEqual, "Type(42)")
		})
	})
}

func TestInTier(t *testing.T) {
	Convey("Given items at different tiers", t, func() {
		video := content.Item{ID: "v", Tier: 2}
		course := content.Item{ID: "c", Tiers: []int{2, 3}}

		Convey("Then scalar tiers compare exactly or cumulatively", func() {
			So(video.InTier(content.Videos, 2, content.Exact), ShouldBeTrue)
			So(video.InTier(content.Videos, 3, content.Exact), ShouldBeFalse)
			So(video.InTier(content.Videos, 3, content.UpTo), ShouldBeTrue)
			So(video.InTier(content.Videos, 1, content.UpTo), ShouldBeFalse)
		})

		Convey("Then courses match on list membership", func() {
			So(course.InTier(content.Courses, 3, content.Exact), ShouldBeTrue)
			So(course.InTier(content.Courses, 1, content.Exact), ShouldBeFalse)
			So(course.InTier(content.Courses, 2, content.UpTo), ShouldBeTrue)
			So(course.InTier(content.Courses, 1, content.UpTo), ShouldBeFalse)
		})

		Convey("Then a legacy course with only a scalar tier matches nothing", func() {
			legacy := content.Item{ID: "old", Tier: 1}
			So(legacy.InTier(content.Courses, 1, content.Exact), ShouldBeFalse)
		})
	})
}

func TestValidTier(t *testing.T) {
	Convey("Tiers are accepted from one up to the maximum", t, func() {
		So(content.ValidTier(1, content.DefaultMaxTier), ShouldBeTrue)
		So(content.ValidTier(content.DefaultMaxTier, content.DefaultMaxTier), ShouldBeTrue)
		So(content.ValidTier(0, content.DefaultMaxTier), ShouldBeFalse)
		So(content.ValidTier(-1, content.DefaultMaxTier), ShouldBeFalse)
		So(content.ValidTier(content.DefaultMaxTier+1, content.DefaultMaxTier), ShouldBeFalse)
		So(content.ValidTier(math.MaxInt, content.DefaultMaxTier), ShouldBeFalse)
	})
}

func TestFeedOrdering(t *testing.T) {
	Convey("Given tests of mixed difficulty", t, func() {
		tests := []content.Item{
			{ID: "adv", Difficulty: "advanced", Date: day(9)},
			{ID: "beg-old", Difficulty: "beginner", Date: day(1)},
			{ID: "mid", Difficulty: "intermediate", Date: day(5)},
			{ID: "beg-new", Difficulty: "beginner", Date: day(7)},
		}

		Convey("When taking the latest tests", func() {
			got := content.Latest(content.Tests, tests, 6)

			Convey("Then beginners come first, newest first, then intermediate, then advanced", func() {
				So(ids(got), ShouldResemble, []string{"beg-new", "beg-old", "mid", "adv"})
			})
		})

		Convey("When a difficulty is missing or unknown", func() {
			withUnknown := append(tests, content.Item{ID: "unk", Difficulty: "expert", Date: day(2)})
			got := content.Latest(content.Tests, withUnknown, 6)

			Convey("Then it sorts as intermediate", func() {
				So(ids(got), ShouldResemble, []string{"beg-new", "beg-old", "mid", "unk", "adv"})
			})
		})

		Convey("Then the input slice is left untouched", func() {
			content.Latest(content.Tests, tests, 6)
			So(tests[0].ID, ShouldEqual, "adv")
		})
	})

	Convey("Given upcoming calls and published videos", t, func() {
		calls := []content.Item{{ID: "later", Date: day(20)}, {ID: "sooner", Date: day(10)}, {ID: "latest", Date: day(30)}}
		videos := []content.Item{{ID: "old", Date: day(1)}, {ID: "new", Date: day(3)}, {ID: "mid", Date: day(2)}, {ID: "oldest", Date: day(0)}}

		Convey("Then calls are soonest first and capped at two", func() {
			So(ids(content.Latest(content.Calls, calls, 0)), ShouldResemble, []string{"sooner", "later"})
		})

		Convey("Then videos are newest first and capped at three", func() {
			So(ids(content.Latest(content.Videos, videos, 0)), ShouldResemble, []string{"new", "mid", "old"})
		})
	})

	Convey("Given lessons out of order", t, func() {
		lessons := []content.Lesson{{ID: "c", Order: 3}, {ID: "a", Order: 1}, {ID: "b", Order: 2}}
		content.SortLessons(lessons)

		Convey("Then they are ordered by their order field", func() {
			So([]string{lessons[0].ID, lessons[1].ID, lessons[2].ID}, ShouldResemble, []string{"a", "b", "c"})
		})
	})
}
