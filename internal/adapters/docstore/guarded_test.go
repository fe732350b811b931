package docstore_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/okian/tierlearn/internal/adapters/docstore"
	"github.com/okian/tierlearn/internal/adapters/docstore/storetest"
	. "github.com/smartystreets/goconvey/convey"
	"github.com/sony/gobreaker/v2"
)

type slowStore struct {
	docstore.Store
}

func (s slowStore) Get(ctx context.Context, _, _ string) (docstore.Snapshot, error) {
	<-ctx.Done()
	return docstore.Snapshot{}, ctx.Err()
}

func TestGuarded(t *testing.T) {
	ctx := context.Background()

	Convey("Given a guarded store over a faulty one", t, func() {
		faulty := storetest.Wrap(docstore.NewMemoryStore())
		g := docstore.NewGuarded(faulty,
			docstore.WithFailureThreshold(2),
			docstore.WithOpenTimeout(time.Hour),
			docstore.WithBreakerName("test-store"),
		)

		Convey("Successful calls pass through", func() {
			So(g.Set(ctx, "c", "1", docstore.Document{"a": 1}), ShouldBeNil)
			snap, err := g.Get(ctx, "c", "1")
			So(err, ShouldBeNil)
			So(snap.Data["a"], ShouldEqual, 1.0)
		})

		Convey("Not found does not trip the breaker", func() {
			for i := 0; i < 5; i++ {
				_, err := g.Get(ctx, "c", "missing")
				So(errors.Is(err, docstore.ErrNotFound), ShouldBeTrue)
			}
			So(g.State(), ShouldEqual, gobreaker.StateClosed)
		})

		Convey("Consecutive failures open the breaker", func() {
			faulty.Fail(storetest.OpQuery, "c", "")
			for i := 0; i < 2; i++ {
				_, err := g.Query(ctx, "c", docstore.Query{})
				So(errors.Is(err, storetest.ErrInjected), ShouldBeTrue)
			}
			So(g.State(), ShouldEqual, gobreaker.StateOpen)

			_, err := g.Get(ctx, "c", "1")
			So(errors.Is(err, docstore.ErrUnavailable), ShouldBeTrue)
			So(faulty.Calls(storetest.OpGet), ShouldEqual, 0)
		})
	})

	Convey("Given a guarded store over a hanging one", t, func() {
		g := docstore.NewGuarded(slowStore{docstore.NewMemoryStore()},
			docstore.WithTimeout(20*time.Millisecond))

		Convey("Calls time out", func() {
			_, err := g.Get(ctx, "c", "1")
			So(errors.Is(err, docstore.ErrTimeout), ShouldBeTrue)
		})
	})
}
