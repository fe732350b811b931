package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/tierlearn/pkg/logger"
	"github.com/okian/tierlearn/pkg/metrics"
	"github.com/sony/gobreaker/v2"
)

const (
	defaultOpTimeout        = 3 * time.Second
	defaultFailureThreshold = 5
	defaultOpenTimeout      = 30 * time.Second
	defaultBreakerName      = "docstore"
)

// Guarded wraps a Store with a per-call timeout, a circuit breaker and
// operation metrics. Missing documents do not count as failures.
type Guarded struct {
	inner            Store
	timeout          time.Duration
	failureThreshold uint32
	openTimeout      time.Duration
	name             string
	log              logger.Logger
	cb               *gobreaker.CircuitBreaker[any]
}

// GuardOption configures a Guarded store.
type GuardOption func(*Guarded)

// WithTimeout bounds every call.
func WithTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.timeout = d
		}
	}
}

// WithFailureThreshold sets how many consecutive failures open the breaker.
func WithFailureThreshold(n int) GuardOption {
	return func(g *Guarded) {
		if n > 0 {
			g.failureThreshold = uint32(n)
		}
	}
}

// WithOpenTimeout sets how long the breaker stays open before probing.
func WithOpenTimeout(d time.Duration) GuardOption {
	return func(g *Guarded) {
		if d > 0 {
			g.openTimeout = d
		}
	}
}

// WithBreakerName names the breaker in logs and metrics.
func WithBreakerName(name string) GuardOption {
	return func(g *Guarded) {
		if name != "" {
			g.name = name
		}
	}
}

// WithLogger sets the logger used for breaker transitions.
func WithLogger(l logger.Logger) GuardOption {
	return func(g *Guarded) {
		g.log = l
	}
}

// NewGuarded wraps inner.
func NewGuarded(inner Store, opts ...GuardOption) *Guarded {
	g := &Guarded{
		inner:            inner,
		timeout:          defaultOpTimeout,
		failureThreshold: defaultFailureThreshold,
		openTimeout:      defaultOpenTimeout,
		name:             defaultBreakerName,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.cb = gobreaker.NewCircuitBreaker[any](gobreaker.Settings{
		Name:        g.name,
		MaxRequests: 1,
		Timeout:     g.openTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= g.failureThreshold
		},
		IsSuccessful: func(err error) bool {
			return err == nil || errors.Is(err, ErrNotFound)
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			metrics.UpdateBreakerState(name, int(to))
			if g.log != nil {
				g.log.Warn(context.Background(), "store circuit breaker state changed",
					logger.String("breaker", name),
					logger.String("from", from.String()),
					logger.String("to", to.String()))
			}
		},
	})
	metrics.UpdateBreakerState(g.name, int(gobreaker.StateClosed))
	return g
}

// State returns the breaker state.
func (g *Guarded) State() gobreaker.State {
	return g.cb.State()
}

func (g *Guarded) do(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	start := time.Now()
	_, err := g.cb.Execute(func() (any, error) {
		callCtx, cancel := context.WithTimeout(ctx, g.timeout)
		defer cancel()
		err := fn(callCtx)
		if errors.Is(err, context.DeadlineExceeded) && ctx.Err() == nil {
			return nil, fmt.Errorf("%s: %w", op, ErrTimeout)
		}
		return nil, err
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		err = fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
	}
	metrics.RecordStoreOperation(op, resultLabel(err), float64(time.Since(start).Milliseconds()))
	return err
}

func resultLabel(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrUnavailable):
		return "unavailable"
	case errors.Is(err, ErrTimeout):
		return "timeout"
	default:
		return "error"
	}
}

func (g *Guarded) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	var snap Snapshot
	err := g.do(ctx, "get", func(ctx context.Context) error {
		var err error
		snap, err = g.inner.Get(ctx, collection, id)
		return err
	})
	return snap, err
}

func (g *Guarded) GetMany(ctx context.Context, collection string, ids []string) (map[string]Snapshot, error) {
	var out map[string]Snapshot
	err := g.do(ctx, "get_many", func(ctx context.Context) error {
		var err error
		out, err = g.inner.GetMany(ctx, collection, ids)
		return err
	})
	return out, err
}

func (g *Guarded) Set(ctx context.Context, collection, id string, doc Document) error {
	return g.do(ctx, "set", func(ctx context.Context) error {
		return g.inner.Set(ctx, collection, id, doc)
	})
}

func (g *Guarded) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	return g.do(ctx, "update", func(ctx context.Context) error {
		return g.inner.Update(ctx, collection, id, ops...)
	})
}

func (g *Guarded) Transact(ctx context.Context, collection, id string, plan PlanFunc) error {
	return g.do(ctx, "transact", func(ctx context.Context) error {
		return g.inner.Transact(ctx, collection, id, plan)
	})
}

func (g *Guarded) Delete(ctx context.Context, collection, id string) error {
	return g.do(ctx, "delete", func(ctx context.Context) error {
		return g.inner.Delete(ctx, collection, id)
	})
}

func (g *Guarded) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	var out []Snapshot
	err := g.do(ctx, "query", func(ctx context.Context) error {
		var err error
		out, err = g.inner.Query(ctx, collection, q)
		return err
	})
	return out, err
}

func (g *Guarded) Close() error {
	return g.inner.Close()
}
