package docstore

import (
	"context"
	"slices"
	"sync"
)

// MemoryStore keeps collections in process memory. Each write holds the store
// lock, so every Update and Transact is atomic.
type MemoryStore struct {
	mu          sync.RWMutex
	collections map[string]map[string]Document
	closed      bool
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{collections: make(map[string]map[string]Document)}
}

func (s *MemoryStore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return Snapshot{}, ErrClosed
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return Snapshot{}, ErrNotFound
	}
	return Snapshot{ID: id, Data: cloneDocument(doc)}, nil
}

func (s *MemoryStore) GetMany(ctx context.Context, collection string, ids []string) (map[string]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	out := make(map[string]Snapshot, len(ids))
	docs := s.collections[collection]
	for _, id := range ids {
		if doc, ok := docs[id]; ok {
			out[id] = Snapshot{ID: id, Data: cloneDocument(doc)}
		}
	}
	return out, nil
}

func (s *MemoryStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	normalized, err := EncodeDocument(doc)
	if err != nil {
		return err
	}
	if normalized == nil {
		normalized = Document{}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	docs, ok := s.collections[collection]
	if !ok {
		docs = make(map[string]Document)
		s.collections[collection] = docs
	}
	docs[id] = normalized
	return nil
}

func (s *MemoryStore) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	return s.Transact(ctx, collection, id, func(Document) ([]FieldOp, error) {
		return ops, nil
	})
}

func (s *MemoryStore) Transact(ctx context.Context, collection, id string, plan PlanFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	doc, ok := s.collections[collection][id]
	if !ok {
		return ErrNotFound
	}
	ops, err := plan(cloneDocument(doc))
	if err != nil {
		return err
	}
	// Work on a copy so a failing op leaves the stored document untouched.
	next := cloneDocument(doc)
	if err := applyOps(next, ops); err != nil {
		return err
	}
	s.collections[collection][id] = next
	return nil
}

func (s *MemoryStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	delete(s.collections[collection], id)
	return nil
}

func (s *MemoryStore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters, err := compileFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, ErrClosed
	}
	docs := s.collections[collection]
	ids := make([]string, 0, len(docs))
	for id := range docs {
		ids = append(ids, id)
	}
	slices.Sort(ids)

	var out []Snapshot
	for _, id := range ids {
		if doc := docs[id]; matchAll(doc, filters) {
			out = append(out, Snapshot{ID: id, Data: cloneDocument(doc)})
		}
	}
	return finishQuery(out, q), nil
}

func (s *MemoryStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}
