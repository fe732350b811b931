package tracking_test

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/okian/tierlearn/internal/adapters/docstore/storetest"
	"github.com/okian/tierlearn/internal/app/tracking"
	. "github.com/smartystreets/goconvey/convey"
)

func TestTierView(t *testing.T) {
	ctx := context.Background()

	Convey("Given a tier 2 user who watched the tier 2 video to 95 percent", t, func() {
		f := newFixture(ctx)
		_, err := f.svc.InitializeUserAnalytics(ctx, user, 2)
		So(err, ShouldBeNil)
		So(f.svc.TrackVideoWatched(ctx, user, "v2", 300, 95), ShouldBeNil)

		Convey("The tier 2 view counts the video", func() {
			view, err := f.svc.TierView(user, 2)
			So(err, ShouldBeNil)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.TierLevel, ShouldEqual, 2)
			So(rec.Videos.Engaged, ShouldEqual, 1)
			So(rec.Videos.Completed, ShouldEqual, 1)
			So(rec.Videos.Metric, ShouldBeGreaterThan, 0)
			So(rec.Videos.Total, ShouldEqual, 1)
			So(rec.TotalContentAvailable, ShouldEqual, 5)
			So(rec.TotalContentEngaged, ShouldEqual, 1)
			So(rec.OverallCompletionRate, ShouldEqual, 20)
		})

		Convey("The tier 3 view does not", func() {
			view, err := f.svc.TierView(user, 3)
			So(err, ShouldBeNil)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.Videos.Engaged, ShouldEqual, 0)
			So(rec.Videos.Completed, ShouldEqual, 0)
			So(rec.Videos.Metric, ShouldEqual, 0)
			So(rec.OverallCompletionRate, ShouldEqual, 0)
		})

		Convey("Interactions outside the tier are left out of the view", func() {
			So(f.svc.TrackVideoWatched(ctx, user, "v3", 60, 40), ShouldBeNil)
			view, err := f.svc.TierView(user, 2)
			So(err, ShouldBeNil)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.Videos.Engaged, ShouldEqual, 1)
			So(rec.Videos.Interactions, ShouldContainKey, "v2")
			So(rec.Videos.Interactions, ShouldNotContainKey, "v3")
			So(len(rec.Videos.Interactions), ShouldEqual, rec.Videos.Engaged)
			So(f.record(ctx).Videos.Interactions, ShouldContainKey, "v3")
		})

		Convey("The cumulative record at tier 3 still includes it", func() {
			base, err := f.svc.RefreshContentCounts(ctx, user, 3)
			So(err, ShouldBeNil)
			So(base.Videos.Completed, ShouldEqual, 1)
		})

		Convey("Deriving a view leaves the stored record alone", func() {
			view, _ := f.svc.TierView(user, 3)
			_, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			base := f.record(ctx)
			So(base.TierLevel, ShouldEqual, 2)
			So(base.Videos.Engaged, ShouldEqual, 1)
			So(base.TotalContentAvailable, ShouldEqual, 10)
		})

		Convey("Refresh recounts and derives again", func() {
			view, _ := f.svc.TierView(user, 2)
			rec, err := view.Refresh(ctx)
			So(err, ShouldBeNil)
			So(rec.Videos.Completed, ShouldEqual, 1)
		})
	})

	Convey("Given engagement without completion", t, func() {
		f := newFixture(ctx)
		_, err := f.svc.InitializeUserAnalytics(ctx, user, 3)
		So(err, ShouldBeNil)
		So(f.svc.TrackVideoWatched(ctx, user, "v3", 60, 40), ShouldBeNil)
		So(f.svc.TrackTestCompleted(ctx, user, "t3", 70, false), ShouldBeNil)
		So(f.svc.TrackCallAttended(ctx, user, "k3", 30), ShouldBeNil)

		Convey("The view counts completions while the base counts engagement", func() {
			base := f.record(ctx)
			So(base.TotalContentEngaged, ShouldEqual, 3)

			view, _ := f.svc.TierView(user, 3)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.Videos.Engaged, ShouldEqual, 1)
			So(rec.Tests.Engaged, ShouldEqual, 1)
			So(rec.Tests.Metric, ShouldEqual, 70)
			So(rec.Calls.Metric, ShouldEqual, 30)
			So(rec.TotalContentEngaged, ShouldEqual, 1)
		})
	})

	Convey("Given failing item lookups", t, func() {
		f := newFixture(ctx)
		_, err := f.svc.InitializeUserAnalytics(ctx, user, 2)
		So(err, ShouldBeNil)
		So(f.svc.TrackBlogRead(ctx, user, "b2", 3), ShouldBeNil)
		So(f.svc.TrackBlogRead(ctx, user, "b1", 3), ShouldBeNil)
		So(f.svc.TrackVideoWatched(ctx, user, "v2", 60, 100), ShouldBeNil)

		Convey("A failed batch falls back to single lookups", func() {
			f.store.Fail(storetest.OpGetMany, "blogs", "")
			view, _ := f.svc.TierView(user, 2)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.Blogs.Completed, ShouldEqual, 1)
			So(f.store.Calls(storetest.OpGet), ShouldBeGreaterThanOrEqualTo, 2)
		})

		Convey("An item whose lookup fails is excluded, not fatal", func() {
			f.store.Fail(storetest.OpGetMany, "blogs", "")
			f.store.Fail(storetest.OpGet, "blogs", "b2")
			view, _ := f.svc.TierView(user, 2)
			rec, err := view.Analytics(ctx)
			So(err, ShouldBeNil)
			So(rec.Blogs.Completed, ShouldEqual, 0)
			So(rec.Videos.Completed, ShouldEqual, 1)
		})
	})

	Convey("Given a user without a record", t, func() {
		f := newFixture(ctx)

		Convey("The view reports no data and creates nothing", func() {
			view, err := f.svc.TierView(user, 2)
			So(err, ShouldBeNil)
			rec, err := view.Analytics(ctx)
			So(rec, ShouldBeNil)
			So(errors.Is(err, tracking.ErrNoData), ShouldBeTrue)
			_, err = f.svc.UserAnalytics(ctx, user)
			So(errors.Is(err, tracking.ErrNoData), ShouldBeTrue)
		})

		Convey("Invalid tiers are rejected", func() {
			_, err := f.svc.TierView(user, 0)
			So(errors.Is(err, tracking.ErrInvalidTier), ShouldBeTrue)
			_, err = f.svc.TierView(user, math.MaxInt)
			So(errors.Is(err, tracking.ErrInvalidTier), ShouldBeTrue)
		})
	})
}
