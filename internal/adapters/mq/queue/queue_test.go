package queue

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/okian/tierlearn/internal/domain/model"
)

func event(id, user string) model.TrackEvent {
	return model.TrackEvent{EventID: id, UserID: user, Kind: model.KindBlogRead, ItemID: "b1"}
}

func TestInMemoryQueue_BasicOperations(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4), WithShards(2))
	ctx := context.Background()

	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
	if c := q.Cap(); c != 4 {
		t.Errorf("expected capacity 4, got %d", c)
	}

	if err := q.Enqueue(ctx, event("e1", "0xa")); err != nil {
		t.Fatalf("expected enqueue to succeed, got %v", err)
	}
	if l := q.Len(); l != 1 {
		t.Errorf("expected length 1, got %d", l)
	}

	got := <-q.Dequeue(ShardFor("0xa", q.Shards()))
	if got.EventID != "e1" {
		t.Errorf("expected e1, got %v", got.EventID)
	}
	if l := q.Len(); l != 0 {
		t.Errorf("expected length 0, got %d", l)
	}
}

func TestInMemoryQueue_Capacity(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(2), WithShards(1))
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if err := q.Enqueue(ctx, event(fmt.Sprint(i), "0xa")); err != nil {
			t.Fatalf("expected enqueue %d to succeed, got %v", i, err)
		}
	}
	if err := q.Enqueue(ctx, event("overflow", "0xa")); !errors.Is(err, ErrFull) {
		t.Errorf("expected ErrFull, got %v", err)
	}
}

func TestInMemoryQueue_SameUserSameShardInOrder(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(400), WithShards(4))
	ctx := context.Background()

	for i := 0; i < 50; i++ {
		if err := q.Enqueue(ctx, event(fmt.Sprint(i), "0xuser")); err != nil {
			t.Fatalf("enqueue %d: %v", i, err)
		}
	}
	shard := q.Dequeue(ShardFor("0xuser", q.Shards()))
	for i := 0; i < 50; i++ {
		if got := <-shard; got.EventID != fmt.Sprint(i) {
			t.Fatalf("expected event %d, got %s", i, got.EventID)
		}
	}
}

func TestShardFor(t *testing.T) {
	for _, user := range []string{"", "0x1", "0xabc", "0xffffffffffffffffffffffffffffffffffffffff"} {
		s := ShardFor(user, 7)
		if s < 0 || s >= 7 {
			t.Errorf("shard %d out of range for %q", s, user)
		}
		if again := ShardFor(user, 7); again != s {
			t.Errorf("shard not stable for %q: %d vs %d", user, s, again)
		}
	}
}

func TestInMemoryQueue_Close(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4), WithShards(1))
	ctx := context.Background()

	if err := q.Enqueue(ctx, event("kept", "0xa")); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Fatal(err)
	}
	if err := q.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
	if !q.IsClosed() {
		t.Error("expected queue to be closed")
	}
	if err := q.Enqueue(ctx, event("late", "0xa")); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}

	var drained []string
	for e := range q.Dequeue(0) {
		drained = append(drained, e.EventID)
	}
	if len(drained) != 1 || drained[0] != "kept" {
		t.Errorf("expected queued event to survive close, got %v", drained)
	}
}

func TestInMemoryQueue_CancelledContext(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(4), WithShards(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := q.Enqueue(ctx, event("e", "0xa")); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}

func TestInMemoryQueue_ConcurrentEnqueueAndClose(t *testing.T) {
	q := NewInMemoryQueue(WithCapacity(1000), WithShards(4))
	ctx := context.Background()

	var wg sync.WaitGroup
	for g := 0; g < 8; g++ {
		wg.Add(1)
		go func(g int) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				err := q.Enqueue(ctx, event(fmt.Sprintf("%d-%d", g, i), fmt.Sprintf("0x%d", i)))
				if err != nil && !errors.Is(err, ErrClosed) && !errors.Is(err, ErrFull) {
					t.Errorf("unexpected error: %v", err)
				}
			}
		}(g)
	}
	_ = q.Close()
	wg.Wait()
}
