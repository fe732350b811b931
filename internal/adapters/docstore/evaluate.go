package docstore

import (
	"cmp"
	"fmt"
	"reflect"
	"slices"
	"strings"

	"github.com/goccy/go-json"
)

// canonical converts v into the shapes produced by decoding JSON: objects
// become map[string]any, arrays []any and numbers float64.
func canonical(v any) (any, error) {
	switch x := v.(type) {
	case nil, string, bool, float64:
		return x, nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case float32:
		return float64(x), nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func asMap(v any) (map[string]any, bool) {
	switch m := v.(type) {
	case map[string]any:
		return m, true
	case Document:
		return m, true
	}
	return nil, false
}

func getPath(doc Document, path FieldPath) (any, bool) {
	var cur any = map[string]any(doc)
	for _, seg := range path {
		m, ok := asMap(cur)
		if !ok {
			return nil, false
		}
		if cur, ok = m[seg]; !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc Document, path FieldPath, v any) {
	m := map[string]any(doc)
	for _, seg := range path[:len(path)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			next = map[string]any{}
			m[seg] = next
		}
		m = next
	}
	m[path[len(path)-1]] = v
}

func deletePath(doc Document, path FieldPath) {
	m := map[string]any(doc)
	for _, seg := range path[:len(path)-1] {
		next, ok := asMap(m[seg])
		if !ok {
			return
		}
		m = next
	}
	delete(m, path[len(path)-1])
}

func number(v any) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	}
	return 0, false
}

func containsValue(list []any, v any) bool {
	for _, e := range list {
		if reflect.DeepEqual(e, v) {
			return true
		}
	}
	return false
}

// applyOps mutates doc in place.
func applyOps(doc Document, ops []FieldOp) error {
	for _, op := range ops {
		if len(op.Path) == 0 {
			return ErrInvalidPath
		}
		switch op.Kind {
		case OpSet:
			v, err := canonical(op.Value)
			if err != nil {
				return fmt.Errorf("set %s: %w", op.Path, err)
			}
			setPath(doc, op.Path, v)
		case OpIncrement:
			delta, ok := number(op.Value)
			if !ok {
				return fmt.Errorf("increment %s: non-numeric delta %v", op.Path, op.Value)
			}
			cur, _ := getPath(doc, op.Path)
			base, _ := number(cur)
			setPath(doc, op.Path, base+delta)
		case OpDelete:
			deletePath(doc, op.Path)
		case OpArrayUnion:
			cur, _ := getPath(doc, op.Path)
			list, _ := cur.([]any)
			list = slices.Clone(list)
			for _, raw := range op.Values {
				v, err := canonical(raw)
				if err != nil {
					return fmt.Errorf("array union %s: %w", op.Path, err)
				}
				if !containsValue(list, v) {
					list = append(list, v)
				}
			}
			if list == nil {
				list = []any{}
			}
			setPath(doc, op.Path, list)
		case OpDerive:
			if op.Derive == nil {
				return fmt.Errorf("derive %s: nil function", op.Path)
			}
			v, err := canonical(op.Derive(doc))
			if err != nil {
				return fmt.Errorf("derive %s: %w", op.Path, err)
			}
			setPath(doc, op.Path, v)
		default:
			return fmt.Errorf("unknown op kind %d on %s", op.Kind, op.Path)
		}
	}
	return nil
}

// compareValues orders two values of the same JSON kind.
func compareValues(a, b any) (int, bool) {
	if x, ok := number(a); ok {
		if y, ok := number(b); ok {
			return cmp.Compare(x, y), true
		}
		return 0, false
	}
	switch x := a.(type) {
	case string:
		if y, ok := b.(string); ok {
			return strings.Compare(x, y), true
		}
	case bool:
		if y, ok := b.(bool); ok {
			switch {
			case x == y:
				return 0, true
			case !x:
				return -1, true
			default:
				return 1, true
			}
		}
	}
	return 0, false
}

// compiledFilter holds a filter with its field split and value canonicalized.
type compiledFilter struct {
	path  FieldPath
	op    Operator
	value any
}

func compileFilters(filters []Filter) ([]compiledFilter, error) {
	out := make([]compiledFilter, 0, len(filters))
	for _, f := range filters {
		if f.Field == "" {
			return nil, ErrInvalidPath
		}
		v, err := canonical(f.Value)
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", f.Field, err)
		}
		switch f.Op {
		case Equal, LessOrEqual, ArrayContains:
		case ArrayContainsAny:
			if _, ok := v.([]any); !ok {
				return nil, fmt.Errorf("filter %s: %s needs a list value", f.Field, f.Op)
			}
		default:
			return nil, fmt.Errorf("filter %s: unsupported operator %q", f.Field, f.Op)
		}
		out = append(out, compiledFilter{path: strings.Split(f.Field, "."), op: f.Op, value: v})
	}
	return out, nil
}

func (f compiledFilter) match(doc Document) bool {
	field, ok := getPath(doc, f.path)
	if !ok {
		return false
	}
	switch f.op {
	case Equal:
		return reflect.DeepEqual(field, f.value)
	case LessOrEqual:
		c, ok := compareValues(field, f.value)
		return ok && c <= 0
	case ArrayContains:
		list, ok := field.([]any)
		return ok && containsValue(list, f.value)
	case ArrayContainsAny:
		list, ok := field.([]any)
		if !ok {
			return false
		}
		for _, v := range f.value.([]any) {
			if containsValue(list, v) {
				return true
			}
		}
	}
	return false
}

func matchAll(doc Document, filters []compiledFilter) bool {
	for _, f := range filters {
		if !f.match(doc) {
			return false
		}
	}
	return true
}

// finishQuery orders and limits the matching snapshots.
func finishQuery(snaps []Snapshot, q Query) []Snapshot {
	if q.OrderBy != "" {
		path := FieldPath(strings.Split(q.OrderBy, "."))
		snaps = slices.DeleteFunc(snaps, func(s Snapshot) bool {
			_, ok := getPath(s.Data, path)
			return !ok
		})
		slices.SortStableFunc(snaps, func(a, b Snapshot) int {
			va, _ := getPath(a.Data, path)
			vb, _ := getPath(b.Data, path)
			c, _ := compareValues(va, vb)
			if q.Descending {
				c = -c
			}
			if c == 0 {
				return strings.Compare(a.ID, b.ID)
			}
			return c
		})
	}
	if q.Limit > 0 && len(snaps) > q.Limit {
		snaps = snaps[:q.Limit]
	}
	return snaps
}

func cloneValue(v any) any {
	switch x := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(x))
		for k, e := range x {
			out[k] = cloneValue(e)
		}
		return out
	case Document:
		return map[string]any(cloneDocument(x))
	case []any:
		out := make([]any, len(x))
		for i, e := range x {
			out[i] = cloneValue(e)
		}
		return out
	}
	return v
}

func cloneDocument(doc Document) Document {
	out := make(Document, len(doc))
	for k, v := range doc {
		out[k] = cloneValue(v)
	}
	return out
}
