package feed_test

import (
	"context"
	"errors"
	"io"
	"math"
	"os"
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/adapters/docstore/storetest"
	"github.com/okian/tierlearn/internal/adapters/repository"
	"github.com/okian/tierlearn/internal/app/feed"
	"github.com/okian/tierlearn/internal/domain/content"
	"github.com/okian/tierlearn/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func day(d int) string {
	return time.Date(2025, 1, d, 0, 0, 0, 0, time.UTC).Format(time.RFC3339)
}

func seed(ctx context.Context, s docstore.Store) {
	set := func(coll, id string, doc docstore.Document) {
		So(s.Set(ctx, coll, id, doc), ShouldBeNil)
	}
	for i, id := range []string{"v1", "v2", "v3", "v4"} {
		set("videos", id, docstore.Document{"tier": 1, "date": day(i + 1)})
	}
	set("videos", "v-tier3", docstore.Document{"tier": 3, "date": day(28)})
	set("blogs", "b1", docstore.Document{"tier": 2, "date": day(2)})
	set("calls", "k1", docstore.Document{"tier": 1, "date": day(20)})
	set("calls", "k2", docstore.Document{"tier": 1, "date": day(10)})
	set("calls", "k3", docstore.Document{"tier": 2, "date": day(15)})
	for i, d := range []string{"advanced", "beginner", "intermediate", "beginner", "advanced", "beginner", "expert"} {
		set("tests", string(rune('a'+i)), docstore.Document{"tier": 1, "difficulty": d, "date": day(i + 1)})
	}

	set("courses", "c-collection", docstore.Document{"tiers": []int{1}, "date": day(3), "lessons": 9})
	set("lessons", "l2", docstore.Document{"courseId": "c-collection", "order": 2, "type": "pdf", "url": "u2"})
	set("lessons", "l1", docstore.Document{"courseId": "c-collection", "order": 1, "type": "video", "url": "u1"})

	set("courses", "c-embedded", docstore.Document{"tiers": []int{2}, "date": day(2), "lessons": 7, "lessonData": []map[string]any{
		{"id": "e2", "order": 2, "type": "video", "url": "e2"},
		{"id": "e1", "order": 1, "type": "pdf", "url": "e1"},
	}})
	set("courses", "c-bare", docstore.Document{"tiers": []int{1, 2}, "date": day(1), "lessons": 4})
}

func ids(items []content.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.ID
	}
	return out
}

func TestLoader(t *testing.T) {
	ctx := context.Background()

	Convey("Given a seeded catalogue", t, func() {
		store := storetest.Wrap(docstore.NewMemoryStore())
		seed(ctx, store)
		repo := repository.NewContentRepository(store)

		Convey("Tiers below one are rejected", func() {
			_, err := feed.New(repo, 0)
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
		})

		Convey("Tiers above the maximum are rejected", func() {
			_, err := feed.New(repo, math.MaxInt)
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
			_, err = feed.New(repo, 4, feed.WithMaxTier(3))
			So(errors.Is(err, feed.ErrInvalidTier), ShouldBeTrue)
			_, err = feed.New(repo, 3, feed.WithMaxTier(3))
			So(err, ShouldBeNil)
		})

		Convey("Nothing is fetched before Refresh", func() {
			l, err := feed.New(repo, 2)
			So(err, ShouldBeNil)
			st := l.State()
			So(st.Videos, ShouldBeEmpty)
			So(st.IsLoading, ShouldBeFalse)
		})

		Convey("Refresh loads every type with its limit and order", func() {
			l, _ := feed.New(repo, 2)
			st := l.Refresh(ctx)

			So(st.Error, ShouldBeEmpty)
			So(st.IsLoading, ShouldBeFalse)
			So(ids(st.Videos), ShouldResemble, []string{"v4", "v3", "v2"})
			So(ids(st.Blogs), ShouldResemble, []string{"b1"})
			So(ids(st.Calls), ShouldResemble, []string{"k2", "k3"})
			So(len(st.Tests), ShouldEqual, 6)
			So(ids(st.Tests)[:3], ShouldResemble, []string{"f", "d", "b"})
			So(ids(st.Courses), ShouldResemble, []string{"c-collection", "c-embedded", "c-bare"})
			So(l.State().Videos, ShouldResemble, st.Videos)
		})

		Convey("Courses are enriched with their lessons", func() {
			l, _ := feed.New(repo, 2)
			byID := map[string]content.Item{}
			for _, c := range l.Refresh(ctx).Courses {
				byID[c.ID] = c
			}

			fromCollection := byID["c-collection"]
			So(fromCollection.LessonSource, ShouldEqual, content.LessonSourceCollection)
			So(fromCollection.Lessons, ShouldEqual, 2)
			So(fromCollection.LessonData[0].ID, ShouldEqual, "l1")

			embedded := byID["c-embedded"]
			So(embedded.LessonSource, ShouldEqual, content.LessonSourceEmbedded)
			So(embedded.Lessons, ShouldEqual, 7)
			So(embedded.LessonData[0].ID, ShouldEqual, "e1")
			So(embedded.LessonData[1].ID, ShouldEqual, "e2")

			bare := byID["c-bare"]
			So(bare.LessonSource, ShouldBeEmpty)
			So(bare.Lessons, ShouldEqual, 4)
		})

		Convey("A failing tests query leaves only tests empty", func() {
			store.Fail(storetest.OpQuery, "tests", "")
			l, _ := feed.New(repo, 2)
			st := l.Refresh(ctx)
			So(st.Error, ShouldBeEmpty)
			So(st.Tests, ShouldBeEmpty)
			So(st.Tests, ShouldNotBeNil)
			So(len(st.Videos), ShouldEqual, 3)
		})

		Convey("A failing videos query fails the feed", func() {
			store.Fail(storetest.OpQuery, "videos", "")
			l, _ := feed.New(repo, 2)
			st := l.Refresh(ctx)
			So(st.Error, ShouldNotBeEmpty)
			So(st.Courses, ShouldBeEmpty)
			So(st.IsLoading, ShouldBeFalse)

			Convey("and a later refresh recovers", func() {
				store.Reset()
				st := l.Refresh(ctx)
				So(st.Error, ShouldBeEmpty)
				So(len(st.Videos), ShouldEqual, 3)
			})
		})
	})
}
