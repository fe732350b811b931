package testevents

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"regexp"
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/adapters/http/api"
	service "github.com/okian/tierlearn/internal/app"
	"github.com/okian/tierlearn/pkg/logger"
	. "github.com/smartystreets/goconvey/convey"
)

func TestMain(m *testing.M) {
	if err := logger.InitWith(io.Discard, "text"); err != nil {
		panic(err)
	}
	os.Exit(m.Run())
}

func TestGenerateEvents(t *testing.T) {
	Convey("Given a small configuration", t, func() {
		cfg := &Config{Users: 3, EventsPerUser: 20}
		stats := &Stats{}

		events, err := generateEvents(context.Background(), cfg, stats)
		So(err, ShouldBeNil)
		So(events, ShouldHaveLength, 60)
		So(stats.EventsGenerated, ShouldEqual, 60)

		Convey("Every event is well formed", func() {
			addr := regexp.MustCompile(`^0x[0-9a-f]{40}$`)
			ids := make(map[string]bool)
			for _, ev := range events {
				So(addr.MatchString(ev.Address), ShouldBeTrue)
				So(kindContentType, ShouldContainKey, ev.Kind)
				So(ids[ev.EventID], ShouldBeFalse)
				ids[ev.EventID] = true
				if ev.Kind == "blog_shared" {
					So(ev.Platform, ShouldNotBeEmpty)
				}
			}
		})
	})
}

func TestBuildExpectations(t *testing.T) {
	Convey("Given events for two addresses", t, func() {
		events := []Event{
			{Address: "a", Kind: "video_watched", ItemID: "videos-1"},
			{Address: "a", Kind: "video_watched", ItemID: "videos-1"},
			{Address: "a", Kind: "blog_read", ItemID: "blogs-1"},
			{Address: "a", Kind: "blog_shared", ItemID: "blogs-1"},
			{Address: "a", Kind: "blog_shared", ItemID: "blogs-2"},
			{Address: "b", Kind: "video_watched", ItemID: "videos-1"},
			{Address: "b", Kind: "call_attended", ItemID: "calls-2"},
		}
		accepted := []bool{true, true, true, true, true, true, false}

		exp := buildExpectations(events, accepted)

		Convey("Repeat touches count once and shares do not engage", func() {
			So(exp["a"].Engaged["videos"], ShouldEqual, 1)
			So(exp["a"].Engaged["blogs"], ShouldEqual, 1)
			So(exp["a"].Shares, ShouldEqual, 2)
			So(exp["a"].TotalEngaged(), ShouldEqual, 2)
		})

		Convey("Items are tracked per address and rejected events are ignored", func() {
			So(exp["b"].Engaged["videos"], ShouldEqual, 1)
			So(exp["b"].Engaged["calls"], ShouldEqual, 0)
			So(exp["b"].TotalEngaged(), ShouldEqual, 1)
		})
	})
}

func TestCompare(t *testing.T) {
	Convey("Given an expectation", t, func() {
		exp := &Expectation{Engaged: map[string]int{"videos": 2, "blogs": 1}, Shares: 1}

		Convey("A matching record has no mismatches", func() {
			got := &Analytics{TotalContentEngaged: 3, Videos: typeCounters{Engaged: 2}, Blogs: typeCounters{Engaged: 1, ShareCount: 1}}
			So(compare("a", exp, got), ShouldBeEmpty)
		})

		Convey("Differences are reported per field", func() {
			got := &Analytics{TotalContentEngaged: 3, Videos: typeCounters{Engaged: 3}, Blogs: typeCounters{Engaged: 0, ShareCount: 1}}
			diff := compare("a", exp, got)
			So(diff, ShouldHaveLength, 2)
			So(diff[0].Field, ShouldEqual, "videos.engaged")
			So(diff[1].String(), ShouldEqual, "a blogs.engaged: want 1, got 0")
		})
	})
}

func TestRun(t *testing.T) {
	Convey("Given a running analytics service", t, func() {
		ctx := context.Background()
		svc := service.New(service.WithWorkerCount(4), service.WithQueueSize(10_000))
		So(svc.Start(ctx), ShouldBeNil)
		defer svc.Stop()

		mux := http.NewServeMux()
		api.NewServer(svc, svc).Register(ctx, mux)
		srv := httptest.NewServer(mux)
		defer srv.Close()

		Convey("The generated load is applied exactly", func() {
			stats, err := Run(ctx, &Config{
				BaseURL:       srv.URL,
				Users:         10,
				EventsPerUser: 15,
				Workers:       4,
				Timeout:       5 * time.Second,
				DrainTimeout:  10 * time.Second,
			})
			So(err, ShouldBeNil)
			So(stats.EventsSubmitted, ShouldEqual, 150)
			So(stats.EventsSuccessful, ShouldEqual, 150)
			So(stats.UsersMismatched, ShouldEqual, 0)
			So(stats.UsersVerified, ShouldBeGreaterThan, 0)
		})

		Convey("An unreachable service fails the health check", func() {
			_, err := Run(ctx, &Config{BaseURL: "http://127.0.0.1:1", Workers: 1, Timeout: time.Second})
			So(err, ShouldNotBeNil)
		})
	})
}
