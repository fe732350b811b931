// Package storetest provides a fault-injecting docstore.Store for tests.
package storetest

import (
	"context"
	"errors"
	"sync"

	"github.com/okian/tierlearn/internal/adapters/docstore"
)

// ErrInjected is returned by a Faulty store for every matching rule.
var ErrInjected = errors.New("injected store failure")

// Op names a Store method.
type Op string

// Store methods a fault can target.
const (
	OpGet      Op = "get"
	OpGetMany  Op = "get_many"
	OpSet      Op = "set"
	OpUpdate   Op = "update"
	OpTransact Op = "transact"
	OpDelete   Op = "delete"
	OpQuery    Op = "query"
)

type rule struct {
	op         Op
	collection string
	id         string
}

// Faulty delegates to an inner store except for calls matching a rule.
type Faulty struct {
	docstore.Store

	mu    sync.Mutex
	rules []rule
	calls map[Op]int
}

// Wrap returns a Faulty store around inner.
func Wrap(inner docstore.Store) *Faulty {
	return &Faulty{Store: inner, calls: make(map[Op]int)}
}

// Fail makes op on collection fail. An empty id matches every document.
func (f *Faulty) Fail(op Op, collection, id string) *Faulty {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = append(f.rules, rule{op: op, collection: collection, id: id})
	return f
}

// Reset removes every rule.
func (f *Faulty) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rules = nil
}

// Calls returns how many times op was invoked.
func (f *Faulty) Calls(op Op) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[op]
}

func (f *Faulty) check(op Op, collection string, ids ...string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[op]++
	for _, r := range f.rules {
		if r.op != op || r.collection != collection {
			continue
		}
		if r.id == "" {
			return ErrInjected
		}
		for _, id := range ids {
			if id == r.id {
				return ErrInjected
			}
		}
	}
	return nil
}

func (f *Faulty) Get(ctx context.Context, collection, id string) (docstore.Snapshot, error) {
	if err := f.check(OpGet, collection, id); err != nil {
		return docstore.Snapshot{}, err
	}
	return f.Store.Get(ctx, collection, id)
}

func (f *Faulty) GetMany(ctx context.Context, collection string, ids []string) (map[string]docstore.Snapshot, error) {
	if err := f.check(OpGetMany, collection, ids...); err != nil {
		return nil, err
	}
	return f.Store.GetMany(ctx, collection, ids)
}

func (f *Faulty) Set(ctx context.Context, collection, id string, doc docstore.Document) error {
	if err := f.check(OpSet, collection, id); err != nil {
		return err
	}
	return f.Store.Set(ctx, collection, id, doc)
}

func (f *Faulty) Update(ctx context.Context, collection, id string, ops ...docstore.FieldOp) error {
	if err := f.check(OpUpdate, collection, id); err != nil {
		return err
	}
	return f.Store.Update(ctx, collection, id, ops...)
}

func (f *Faulty) Transact(ctx context.Context, collection, id string, plan docstore.PlanFunc) error {
	if err := f.check(OpTransact, collection, id); err != nil {
		return err
	}
	return f.Store.Transact(ctx, collection, id, plan)
}

func (f *Faulty) Delete(ctx context.Context, collection, id string) error {
	if err := f.check(OpDelete, collection, id); err != nil {
		return err
	}
	return f.Store.Delete(ctx, collection, id)
}

func (f *Faulty) Query(ctx context.Context, collection string, q docstore.Query) ([]docstore.Snapshot, error) {
	if err := f.check(OpQuery, collection); err != nil {
		return nil, err
	}
	return f.Store.Query(ctx, collection, q)
}
