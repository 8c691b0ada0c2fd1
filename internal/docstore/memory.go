// README: In-process document store used by tests and the GOGO_STORE=memory dev mode.
package docstore

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"
)

// MemoryStore keeps collections in maps and fans out changes to watchers.
// Each subscription gets its own delivery goroutine so pushes for one
// document arrive in commit order without blocking writers.
type MemoryStore struct {
	mu       sync.Mutex
	now      func() time.Time
	data     map[string]map[string]map[string]any
	watchers map[string]map[*watcher]struct{}
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		now:      time.Now,
		data:     make(map[string]map[string]map[string]any),
		watchers: make(map[string]map[*watcher]struct{}),
	}
}

// WithClock overrides the clock used for ServerTimestamp fields.
func (m *MemoryStore) WithClock(now func() time.Time) *MemoryStore {
	m.now = now
	return m
}

func (m *MemoryStore) Create(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	coll := m.data[collection]
	if coll == nil {
		coll = make(map[string]map[string]any)
		m.data[collection] = coll
	}
	if _, exists := coll[id]; exists {
		m.mu.Unlock()
		return fmt.Errorf("%w: %s/%s already exists", ErrUnavailable, collection, id)
	}
	doc := m.resolve(fields)
	coll[id] = doc
	ws := m.watchersLocked(collection, id)
	snap := Snapshot{Doc: &Document{ID: id, Data: deepCopy(doc)}}
	m.mu.Unlock()

	for _, w := range ws {
		w.push(snap)
	}
	return nil
}

// Set writes a document unconditionally; used to seed fixtures.
func (m *MemoryStore) Set(collection, id string, fields map[string]any) {
	m.mu.Lock()
	coll := m.data[collection]
	if coll == nil {
		coll = make(map[string]map[string]any)
		m.data[collection] = coll
	}
	doc := m.resolve(fields)
	coll[id] = doc
	ws := m.watchersLocked(collection, id)
	snap := Snapshot{Doc: &Document{ID: id, Data: deepCopy(doc)}}
	m.mu.Unlock()

	for _, w := range ws {
		w.push(snap)
	}
}

// Delete removes a document and notifies watchers with a missing snapshot.
func (m *MemoryStore) Delete(collection, id string) {
	m.mu.Lock()
	delete(m.data[collection], id)
	ws := m.watchersLocked(collection, id)
	m.mu.Unlock()

	for _, w := range ws {
		w.push(Snapshot{})
	}
}

func (m *MemoryStore) Get(_ context.Context, collection, id string) (*Document, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	doc, ok := m.data[collection][id]
	if !ok {
		return nil, ErrNotFound
	}
	return &Document{ID: id, Data: deepCopy(doc)}, nil
}

func (m *MemoryStore) Query(_ context.Context, q Query) ([]Document, error) {
	m.mu.Lock()
	var out []Document
	for id, doc := range m.data[q.Collection] {
		if matchAll(doc, q.Filters) {
			out = append(out, Document{ID: id, Data: deepCopy(doc)})
		}
	}
	m.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if q.OrderBy != "" {
			a, _ := lookup(out[i].Data, q.OrderBy)
			b, _ := lookup(out[j].Data, q.OrderBy)
			if c, ok := compare(a, b); ok && c != 0 {
				if q.Desc {
					return c > 0
				}
				return c < 0
			}
		}
		return out[i].ID < out[j].ID
	})
	if q.Limit > 0 && len(out) > q.Limit {
		out = out[:q.Limit]
	}
	return out, nil
}

func (m *MemoryStore) Update(_ context.Context, collection, id string, fields map[string]any) error {
	m.mu.Lock()
	doc, ok := m.data[collection][id]
	if !ok {
		m.mu.Unlock()
		return ErrNotFound
	}
	for path, v := range m.resolve(fields) {
		setPath(doc, path, v)
	}
	ws := m.watchersLocked(collection, id)
	snap := Snapshot{Doc: &Document{ID: id, Data: deepCopy(doc)}}
	m.mu.Unlock()

	for _, w := range ws {
		w.push(snap)
	}
	return nil
}

func (m *MemoryStore) Subscribe(_ context.Context, collection, id string, fn func(Snapshot)) (Unsubscribe, error) {
	w := newWatcher(fn)
	key := collection + "/" + id

	m.mu.Lock()
	if m.watchers[key] == nil {
		m.watchers[key] = make(map[*watcher]struct{})
	}
	m.watchers[key][w] = struct{}{}
	initial := Snapshot{}
	if doc, ok := m.data[collection][id]; ok {
		initial.Doc = &Document{ID: id, Data: deepCopy(doc)}
	}
	w.push(initial)
	m.mu.Unlock()

	go w.run()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.watchers[key], w)
			if len(m.watchers[key]) == 0 {
				delete(m.watchers, key)
			}
			m.mu.Unlock()
			w.stop()
		})
	}, nil
}

// Watchers reports how many live subscriptions target collection/id.
func (m *MemoryStore) Watchers(collection, id string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.watchers[collection+"/"+id])
}

func (m *MemoryStore) watchersLocked(collection, id string) []*watcher {
	set := m.watchers[collection+"/"+id]
	out := make([]*watcher, 0, len(set))
	for w := range set {
		out = append(out, w)
	}
	return out
}

// resolve copies fields, dropping nils and substituting server timestamps.
func (m *MemoryStore) resolve(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range Compact(fields) {
		switch val := v.(type) {
		case serverTimestamp:
			out[k] = m.now()
		case map[string]any:
			out[k] = m.resolve(val)
		default:
			out[k] = v
		}
	}
	return out
}

type watcher struct {
	mu     sync.Mutex
	cond   *sync.Cond
	queue  []Snapshot
	closed bool
	fn     func(Snapshot)
}

func newWatcher(fn func(Snapshot)) *watcher {
	w := &watcher{fn: fn}
	w.cond = sync.NewCond(&w.mu)
	return w
}

func (w *watcher) push(s Snapshot) {
	w.mu.Lock()
	if !w.closed {
		w.queue = append(w.queue, s)
		w.cond.Signal()
	}
	w.mu.Unlock()
}

func (w *watcher) run() {
	for {
		w.mu.Lock()
		for len(w.queue) == 0 && !w.closed {
			w.cond.Wait()
		}
		if w.closed {
			w.mu.Unlock()
			return
		}
		s := w.queue[0]
		w.queue = w.queue[1:]
		w.mu.Unlock()
		w.fn(s)
	}
}

func (w *watcher) stop() {
	w.mu.Lock()
	w.closed = true
	w.queue = nil
	w.cond.Broadcast()
	w.mu.Unlock()
}

func matchAll(doc map[string]any, filters []Filter) bool {
	for _, f := range filters {
		v, ok := lookup(doc, f.Field)
		if !ok {
			return false
		}
		if f.Op == OpArrayContains {
			if !arrayContains(v, f.Value) {
				return false
			}
			continue
		}
		c, ok := compare(v, f.Value)
		if !ok {
			return false
		}
		switch f.Op {
		case OpEqual:
			if c != 0 {
				return false
			}
		case OpLess:
			if c >= 0 {
				return false
			}
		case OpLessEq:
			if c > 0 {
				return false
			}
		case OpGreater:
			if c <= 0 {
				return false
			}
		case OpGreaterEq:
			if c < 0 {
				return false
			}
		default:
			return false
		}
	}
	return true
}

func arrayContains(v, want any) bool {
	switch arr := v.(type) {
	case []any:
		for _, e := range arr {
			if c, ok := compare(e, want); ok && c == 0 {
				return true
			}
		}
	case []string:
		s, ok := want.(string)
		if !ok {
			return false
		}
		for _, e := range arr {
			if e == s {
				return true
			}
		}
	}
	return false
}

func compare(a, b any) (int, bool) {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		if !ok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, ok := b.(string)
		if !ok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, ok := b.(bool)
		if !ok || av != bv {
			return 1, ok
		}
		return 0, true
	case time.Time:
		bv, ok := b.(time.Time)
		if !ok {
			return 0, false
		}
		return av.Compare(bv), true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case float32:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

func lookup(doc map[string]any, path string) (any, bool) {
	parts := strings.Split(path, ".")
	var cur any = doc
	for _, p := range parts {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		cur, ok = m[p]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

func setPath(doc map[string]any, path string, v any) {
	parts := strings.Split(path, ".")
	cur := doc
	for _, p := range parts[:len(parts)-1] {
		next, ok := cur[p].(map[string]any)
		if !ok {
			next = make(map[string]any)
			cur[p] = next
		}
		cur = next
	}
	cur[parts[len(parts)-1]] = v
}

func deepCopy(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		switch val := v.(type) {
		case map[string]any:
			out[k] = deepCopy(val)
		case []any:
			cp := make([]any, len(val))
			copy(cp, val)
			out[k] = cp
		default:
			out[k] = v
		}
	}
	return out
}

var _ Store = (*MemoryStore)(nil)
