package docstore

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"
)

const (
	keySeparator           = "\x00"
	defaultConflictRetries = 100
)

// BadgerStore persists documents in BadgerDB, one key per document. Updates
// run in read-write transactions and are retried on conflict.
type BadgerStore struct {
	db         *badger.DB
	maxRetries int
	ownsDB     bool
}

// BadgerOption configures a BadgerStore.
type BadgerOption func(*BadgerStore)

// WithConflictRetries sets how many times a conflicting transaction is retried.
func WithConflictRetries(n int) BadgerOption {
	return func(s *BadgerStore) {
		if n > 0 {
			s.maxRetries = n
		}
	}
}

// OpenBadger opens (or creates) a BadgerDB at path. An empty path opens an
// in-memory database.
func OpenBadger(path string, opts ...BadgerOption) (*BadgerStore, error) {
	bopts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		bopts = bopts.WithInMemory(true)
	}
	db, err := badger.Open(bopts)
	if err != nil {
		return nil, fmt.Errorf("open badger at %q: %w", path, err)
	}
	s := NewBadgerStore(db, opts...)
	s.ownsDB = true
	return s, nil
}

// NewBadgerStore wraps an already opened database. Close does not close db.
func NewBadgerStore(db *badger.DB, opts ...BadgerOption) *BadgerStore {
	s := &BadgerStore{db: db, maxRetries: defaultConflictRetries}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func docKey(collection, id string) []byte {
	return []byte(collection + keySeparator + id)
}

func collectionPrefix(collection string) []byte {
	return []byte(collection + keySeparator)
}

func readDocument(item *badger.Item) (Document, error) {
	var doc Document
	err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &doc)
	})
	if err != nil {
		return nil, fmt.Errorf("decode %q: %w", item.Key(), err)
	}
	if doc == nil {
		doc = Document{}
	}
	return doc, nil
}

func getDocument(txn *badger.Txn, collection, id string) (Document, error) {
	item, err := txn.Get(docKey(collection, id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s/%s: %w", collection, id, err)
	}
	return readDocument(item)
}

func mapBadgerErr(err error) error {
	if errors.Is(err, badger.ErrDBClosed) {
		return ErrClosed
	}
	return err
}

func (s *BadgerStore) Get(ctx context.Context, collection, id string) (Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return Snapshot{}, err
	}
	var snap Snapshot
	err := s.db.View(func(txn *badger.Txn) error {
		doc, err := getDocument(txn, collection, id)
		if err != nil {
			return err
		}
		snap = Snapshot{ID: id, Data: doc}
		return nil
	})
	return snap, mapBadgerErr(err)
}

func (s *BadgerStore) GetMany(ctx context.Context, collection string, ids []string) (map[string]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	out := make(map[string]Snapshot, len(ids))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, id := range ids {
			doc, err := getDocument(txn, collection, id)
			if errors.Is(err, ErrNotFound) {
				continue
			}
			if err != nil {
				return err
			}
			out[id] = Snapshot{ID: id, Data: doc}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return out, nil
}

func (s *BadgerStore) Set(ctx context.Context, collection, id string, doc Document) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("encode %s/%s: %w", collection, id, err)
	}
	return mapBadgerErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(docKey(collection, id), data)
	}))
}

func (s *BadgerStore) Update(ctx context.Context, collection, id string, ops ...FieldOp) error {
	return s.Transact(ctx, collection, id, func(Document) ([]FieldOp, error) {
		return ops, nil
	})
}

func (s *BadgerStore) Transact(ctx context.Context, collection, id string, plan PlanFunc) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(func(txn *badger.Txn) error {
			doc, err := getDocument(txn, collection, id)
			if err != nil {
				return err
			}
			ops, err := plan(cloneDocument(doc))
			if err != nil {
				return err
			}
			if err := applyOps(doc, ops); err != nil {
				return err
			}
			data, err := json.Marshal(doc)
			if err != nil {
				return fmt.Errorf("encode %s/%s: %w", collection, id, err)
			}
			return txn.Set(docKey(collection, id), data)
		})
		if errors.Is(err, badger.ErrConflict) && attempt < s.maxRetries {
			continue
		}
		return mapBadgerErr(err)
	}
}

func (s *BadgerStore) Delete(ctx context.Context, collection, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return mapBadgerErr(s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(docKey(collection, id))
	}))
}

func (s *BadgerStore) Query(ctx context.Context, collection string, q Query) ([]Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	filters, err := compileFilters(q.Filters)
	if err != nil {
		return nil, err
	}
	prefix := collectionPrefix(collection)
	var out []Snapshot
	err = s.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			doc, err := readDocument(item)
			if err != nil {
				return err
			}
			if matchAll(doc, filters) {
				id := string(item.Key()[len(prefix):])
				out = append(out, Snapshot{ID: id, Data: doc})
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapBadgerErr(err)
	}
	return finishQuery(out, q), nil
}

// Close closes the database when the store opened it.
func (s *BadgerStore) Close() error {
	if !s.ownsDB {
		return nil
	}
	return s.db.Close()
}
