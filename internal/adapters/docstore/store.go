// Package docstore is a small document database abstraction: collections of
// JSON documents addressed by id, field-level updates and filtered queries.
// The analytics records and the content catalogue are both served through it.
package docstore

import (
	"context"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

// Document is a decoded JSON object.
type Document map[string]any

// FieldPath addresses a possibly nested field, one segment per level.
// Segments may contain dots, so item ids are safe as keys.
type FieldPath []string

// Path builds a FieldPath from its segments.
func Path(segments ...string) FieldPath {
	return FieldPath(segments)
}

func (p FieldPath) String() string {
	return strings.Join(p, ".")
}

// OpKind selects what a FieldOp does.
type OpKind int

// Field operations.
const (
	OpSet OpKind = iota
	OpIncrement
	OpDelete
	OpArrayUnion
	OpDerive
)

// FieldOp is one field-level mutation. Ops of one Update are applied in order
// inside a single atomic write.
type FieldOp struct {
	Kind   OpKind
	Path   FieldPath
	Value  any
	Values []any
	Derive func(Document) any
}

// Set writes v at path, creating intermediate objects.
func Set(path FieldPath, v any) FieldOp {
	return FieldOp{Kind: OpSet, Path: path, Value: v}
}

// Increment adds delta to the number at path; a missing field counts as zero.
func Increment(path FieldPath, delta float64) FieldOp {
	return FieldOp{Kind: OpIncrement, Path: path, Value: delta}
}

// Delete removes the field at path.
func Delete(path FieldPath) FieldOp {
	return FieldOp{Kind: OpDelete, Path: path}
}

// ArrayUnion appends each value not already present in the array at path.
func ArrayUnion(path FieldPath, values ...any) FieldOp {
	return FieldOp{Kind: OpArrayUnion, Path: path, Values: values}
}

// Derive writes fn(doc) at path, where doc is the document with every earlier
// op of the same update already applied.
func Derive(path FieldPath, fn func(Document) any) FieldOp {
	return FieldOp{Kind: OpDerive, Path: path, Derive: fn}
}

// PlanFunc inspects the current document inside a write and returns the ops
// to apply to it.
type PlanFunc func(current Document) ([]FieldOp, error)

// Operator compares a document field with a filter value.
type Operator string

// Filter operators.
const (
	Equal            Operator = "=="
	LessOrEqual      Operator = "<="
	ArrayContains    Operator = "array-contains"
	ArrayContainsAny Operator = "array-contains-any"
)

// Filter restricts a query to documents whose Field satisfies Op against Value.
type Filter struct {
	Field string
	Op    Operator
	Value any
}

// Where builds a Filter.
func Where(field string, op Operator, value any) Filter {
	return Filter{Field: field, Op: op, Value: value}
}

// Query selects documents from one collection. Documents lacking the OrderBy
// field are left out. A zero Limit means no limit.
type Query struct {
	Filters    []Filter
	OrderBy    string
	Descending bool
	Limit      int
}

// Snapshot is one document read from a collection.
type Snapshot struct {
	ID   string
	Data Document
}

// Decode converts the snapshot data into v.
func (s Snapshot) Decode(v any) error {
	return DecodeDocument(s.Data, v)
}

// Store is the document database used by the repositories.
type Store interface {
	// Get returns ErrNotFound when the document does not exist.
	Get(ctx context.Context, collection, id string) (Snapshot, error)
	// GetMany reads ids in one round trip. Missing ids are absent from the result.
	GetMany(ctx context.Context, collection string, ids []string) (map[string]Snapshot, error)
	// Set creates or replaces a document.
	Set(ctx context.Context, collection, id string, doc Document) error
	// Update applies ops atomically. It returns ErrNotFound for a missing document.
	Update(ctx context.Context, collection, id string, ops ...FieldOp) error
	// Transact reads the document and applies the ops planned from it in one
	// atomic write. It returns ErrNotFound for a missing document.
	Transact(ctx context.Context, collection, id string, plan PlanFunc) error
	Delete(ctx context.Context, collection, id string) error
	Query(ctx context.Context, collection string, q Query) ([]Snapshot, error)
	Close() error
}

// EncodeDocument converts v into its Document form.
func EncodeDocument(v any) (Document, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	var doc Document
	if err := json.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return doc, nil
}

// DecodeDocument converts doc into v.
func DecodeDocument(doc Document, v any) error {
	b, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("decode document: %w", err)
	}
	return nil
}
