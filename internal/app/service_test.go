package service_test

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	service "github.com/okian/tierlearn/internal/app"
	"github.com/okian/tierlearn/internal/app/feed"
	"github.com/okian/tierlearn/internal/app/tracking"
	"github.com/okian/tierlearn/internal/domain/analytics"
	"github.com/okian/tierlearn/internal/domain/model"
	. "github.com/smartystreets/goconvey/convey"
)

const user = "0xAbC0000000000000000000000000000000000001"

func seed(ctx context.Context, s docstore.Store) {
	docs := []struct {
		coll, id string
		doc      docstore.Document
	}{
		{"videos", "v1", docstore.Document{"tier": 1, "title": "Wallets", "date": "2025-01-01T00:00:00Z"}},
		{"videos", "v2", docstore.Document{"tier": 2, "title": "AMMs", "date": "2025-02-01T00:00:00Z"}},
		{"courses", "c1", docstore.Document{"tier": 1, "title": "DeFi 101", "date": "2025-01-10T00:00:00Z", "lessons": 1}},
		{"lessons", "l2", docstore.Document{"courseId": "c1", "title": "Swaps", "order": 2}},
		{"lessons", "l1", docstore.Document{"courseId": "c1", "title": "Intro", "order": 1}},
		{"blogs", "b1", docstore.Document{"tier": 1, "date": "2025-01-03T00:00:00Z"}},
	}
	for _, d := range docs {
		So(s.Set(ctx, d.coll, d.id, d.doc), ShouldBeNil)
	}
}

func startService(ctx context.Context, opts ...service.Option) (*service.Service, docstore.Store) {
	store := docstore.NewMemoryStore()
	seed(ctx, store)
	opts = append([]service.Option{
		service.WithStore(store),
		service.WithWorkerCount(4),
		service.WithCourseTierMigration(true),
	}, opts...)
	svc := service.New(opts...)
	So(svc.Start(ctx), ShouldBeNil)
	return svc, store
}

// waitFor polls the cumulative record until cond holds or a deadline passes.
func waitFor(ctx context.Context, svc *service.Service, cond func(*analytics.Record) bool) *analytics.Record {
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		rec, err := svc.Analytics(ctx, user, 0)
		if err == nil && cond(rec) {
			return rec
		}
		time.Sleep(10 * time.Millisecond)
	}
	return nil
}

func waitProcessed(svc *service.Service, n int64) int64 {
	deadline := time.Now().Add(3 * time.Second)
	for {
		processed, _ := svc.GetStats()["processed"].(int64)
		if processed >= n || time.Now().After(deadline) {
			return processed
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestService_Lifecycle(t *testing.T) {
	ctx := context.Background()

	Convey("Given a new service with default options", t, func() {
		svc := service.New()
		defer svc.Stop()

		Convey("Calls before Start are rejected", func() {
			_, err := svc.Submit(ctx, model.TrackEvent{UserID: user, Kind: model.KindBlogRead, ItemID: "b1"})
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Analytics(ctx, user, 0)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			_, err = svc.Feed(ctx, 1)
			So(errors.Is(err, service.ErrNotStarted), ShouldBeTrue)
			So(svc.GetStats()["started"], ShouldEqual, false)
		})

		Convey("It starts, stops and starts again", func() {
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)

			svc.Stop()
			svc.Stop()
			So(svc.GetStats()["started"], ShouldEqual, false)

			So(svc.Start(ctx), ShouldBeNil)
			So(svc.GetStats()["started"], ShouldEqual, true)
		})
	})
}

func TestService_Submit(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service", t, func() {
		svc, _ := startService(ctx)
		defer svc.Stop()

		Convey("Invalid events are rejected before queueing", func() {
			_, err := svc.Submit(ctx, model.TrackEvent{UserID: user, Kind: "liked", ItemID: "v1"})
			So(errors.Is(err, tracking.ErrUnknownEvent), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.TrackEvent{UserID: "  ", Kind: model.KindBlogRead, ItemID: "b1"})
			So(errors.Is(err, tracking.ErrInvalidUser), ShouldBeTrue)

			_, err = svc.Submit(ctx, model.TrackEvent{UserID: user, Kind: model.KindBlogRead})
			So(errors.Is(err, tracking.ErrInvalidItem), ShouldBeTrue)
		})

		Convey("A missing event id is generated", func() {
			id, err := svc.Submit(ctx, model.TrackEvent{UserID: user, Kind: model.KindBlogRead, ItemID: "b1", Minutes: 4})
			So(err, ShouldBeNil)
			So(id, ShouldNotBeEmpty)
		})

		Convey("A replayed event id is reported and applied once", func() {
			ev := model.TrackEvent{EventID: "evt-1", UserID: user, Kind: model.KindVideoWatched, ItemID: "v1", Seconds: 120, Percent: 50}
			id, err := svc.Submit(ctx, ev)
			So(err, ShouldBeNil)
			So(id, ShouldEqual, "evt-1")

			_, err = svc.Submit(ctx, ev)
			So(errors.Is(err, service.ErrDuplicate), ShouldBeTrue)

			rec := waitFor(ctx, svc, func(r *analytics.Record) bool { return r.Videos.Engaged == 1 })
			So(rec, ShouldNotBeNil)
			So(rec.Videos.Interactions["v1"].Minutes, ShouldEqual, 2)
			So(svc.GetStats()["dedupeEntries"], ShouldEqual, int64(1))
		})
	})
}

func TestService_EndToEnd(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service over a seeded catalogue", t, func() {
		svc, _ := startService(ctx)
		defer svc.Stop()

		Convey("Queued events for one user are applied in order", func() {
			for i, pct := range []float64{30, 60, 95} {
				_, err := svc.Submit(ctx, model.TrackEvent{
					EventID: fmt.Sprintf("v1-%d", i), UserID: user,
					Kind: model.KindVideoWatched, ItemID: "v1", Seconds: 60, Percent: pct,
				})
				So(err, ShouldBeNil)
			}
			_, err := svc.Submit(ctx, model.TrackEvent{EventID: "v2", UserID: user, Kind: model.KindVideoWatched, ItemID: "v2", Seconds: 60, Percent: 100})
			So(err, ShouldBeNil)

			rec := waitFor(ctx, svc, func(r *analytics.Record) bool { return r.Videos.Completed == 2 })
			So(rec, ShouldNotBeNil)
			So(rec.UserID, ShouldEqual, analytics.CanonicalUserID(user))
			So(rec.Videos.Engaged, ShouldEqual, 2)
			So(rec.Videos.Metric, ShouldEqual, 4)
			So(rec.Videos.Interactions["v1"].Progress, ShouldEqual, 95)

			Convey("And the tier view keeps only tier-exact items", func() {
				view, err := svc.Analytics(ctx, user, 1)
				So(err, ShouldBeNil)
				So(view.TierLevel, ShouldEqual, 1)
				So(view.Videos.Completed, ShouldEqual, 1)
				So(view.Videos.Total, ShouldEqual, 1)
				So(view.Videos.Interactions, ShouldContainKey, "v2")
			})

			Convey("And stats report the processed events", func() {
				So(waitProcessed(svc, 4), ShouldEqual, int64(4))
				So(svc.GetStats()["failed"], ShouldEqual, int64(0))
			})
		})

		Convey("Events for many users are applied concurrently", func() {
			const users = 20
			var wg sync.WaitGroup
			for i := range users {
				wg.Add(1)
				go func(i int) {
					defer wg.Done()
					_, _ = svc.Submit(ctx, model.TrackEvent{
						UserID: fmt.Sprintf("0x%040d", i), Kind: model.KindBlogRead, ItemID: "b1", Minutes: 3,
					})
				}(i)
			}
			wg.Wait()

			So(waitProcessed(svc, users), ShouldEqual, int64(users))

			rec, err := svc.Analytics(ctx, fmt.Sprintf("0x%040d", 7), 0)
			So(err, ShouldBeNil)
			So(rec.Blogs.Completed, ShouldEqual, 1)
		})

		Convey("Initialize and refresh delegate to the tracking service", func() {
			rec, err := svc.Initialize(ctx, user, 2)
			So(err, ShouldBeNil)
			So(rec.TierLevel, ShouldEqual, 2)

			rec, err = svc.Refresh(ctx, user, 1, false)
			So(err, ShouldBeNil)
			So(rec.TierLevel, ShouldEqual, 1)

			view, err := svc.Refresh(ctx, user, 2, true)
			So(err, ShouldBeNil)
			So(view.TierLevel, ShouldEqual, 2)
			So(view.Videos.Total, ShouldEqual, 1)
		})

		Convey("An unknown user has no analytics", func() {
			_, err := svc.Analytics(ctx, "0xdead", 0)
			So(errors.Is(err, tracking.ErrNoData), ShouldBeTrue)
			_, err = svc.Analytics(ctx, "0xdead", 1)
			So(errors.Is(err, tracking.ErrNoData), ShouldBeTrue)
		})
	})
}

func TestService_Content(t *testing.T) {
	ctx := context.Background()

	Convey("Given a started service with a legacy course", t, func() {
		svc, store := startService(ctx)
		defer svc.Stop()

		Convey("The course tier was migrated at start", func() {
			snap, err := store.Get(ctx, "courses", "c1")
			So(err, ShouldBeNil)
			So(snap.Data, ShouldContainKey, "tiers")
			So(snap.Data, ShouldNotContainKey, "tier")
		})

		Convey("The feed includes lower tiers and course lessons", func() {
			state, err := svc.Feed(ctx, 2)
			So(err, ShouldBeNil)
			So(state.Error, ShouldBeEmpty)
			So(state.IsLoading, ShouldBeFalse)
			So(len(state.Videos), ShouldEqual, 2)
			So(state.Videos[0].ID, ShouldEqual, "v2")
			So(len(state.Courses), ShouldEqual, 1)
			So(state.Courses[0].Lessons, ShouldEqual, 2)
			So(state.Courses[0].LessonSource, ShouldEqual, "collection")
			So(state.Tests, ShouldBeEmpty)
		})

		Convey("An invalid feed tier is rejected", func() {
			_, err := svc.Feed(ctx, 0)
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
			_, err = svc.Feed(ctx, math.MaxInt)
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
		})

		Convey("A configured max tier bounds every tiered call", func() {
			capped, _ := startService(ctx, service.WithMaxTier(2))
			defer capped.Stop()

			_, err := capped.Feed(ctx, 3)
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
			_, err = capped.Initialize(ctx, user, 3)
			So(errors.Is(err, tracking.ErrInvalidTier), ShouldBeTrue)
			_, err = capped.Analytics(ctx, user, math.MaxInt)
			So(errors.Is(err, tracking.ErrInvalidTier), ShouldBeTrue)
			_, err = capped.Refresh(ctx, user, 3, true)
			So(errors.Is(err, tracking.ErrInvalidTier), ShouldBeTrue)
			So(capped.GetStats()["maxTier"], ShouldEqual, 2)

			state, err := capped.Feed(ctx, 2)
			So(err, ShouldBeNil)
			So(len(state.Videos), ShouldEqual, 2)
		})

		Convey("Lessons come back in order", func() {
			lessons, err := svc.Lessons(ctx, "c1")
			So(err, ShouldBeNil)
			So(len(lessons), ShouldEqual, 2)
			So(lessons[0].ID, ShouldEqual, "l1")
			So(lessons[1].ID, ShouldEqual, "l2")
		})
	})
}
