// Package docstore is the narrow document-database contract the ride core
// talks to: create/get/query/update plus per-document change subscriptions.
package docstore

import (
	"context"
	"errors"
	"reflect"
)

var (
	ErrNotFound    = errors.New("document not found")
	ErrUnavailable = errors.New("document store unavailable")
)

type Op string

const (
	OpEqual         Op = "=="
	OpLess          Op = "<"
	OpLessEq        Op = "<="
	OpGreater       Op = ">"
	OpGreaterEq     Op = ">="
	OpArrayContains Op = "array-contains"
)

type Filter struct {
	Field string
	Op    Op
	Value any
}

type Query struct {
	Collection string
	Filters    []Filter
	OrderBy    string
	Desc       bool
	Limit      int
}

type Document struct {
	ID   string
	Data map[string]any
}

// Snapshot is one push from a subscription. Doc is nil when the document does
// not exist (or was deleted); Err is set when the stream failed.
type Snapshot struct {
	Doc *Document
	Err error
}

// Unsubscribe releases a subscription. It is safe to call more than once.
type Unsubscribe func()

type Store interface {
	Create(ctx context.Context, collection, id string, fields map[string]any) error
	Get(ctx context.Context, collection, id string) (*Document, error)
	Query(ctx context.Context, q Query) ([]Document, error)
	Update(ctx context.Context, collection, id string, fields map[string]any) error
	// Subscribe delivers the current state first, then every committed change,
	// in commit order, on a goroutine owned by the store.
	Subscribe(ctx context.Context, collection, id string, fn func(Snapshot)) (Unsubscribe, error)
}

type serverTimestamp struct{}

// ServerTimestamp asks the store to stamp the field with its own clock at
// write time.
var ServerTimestamp any = serverTimestamp{}

// Compact drops nil values (including typed nil pointers) recursively; the
// backing store rejects undefined fields.
func Compact(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		if isNil(v) {
			continue
		}
		if m, ok := v.(map[string]any); ok {
			v = Compact(m)
		}
		out[k] = v
	}
	return out
}

func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Interface:
		return rv.IsNil()
	}
	return false
}
