// README: Firestore-backed document store (production).
package docstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// FirestoreStore adapts a Firestore client to Store. Every backend failure is
// wrapped with ErrUnavailable except NotFound, which maps to ErrNotFound.
type FirestoreStore struct {
	client *firestore.Client
	log    *slog.Logger
}

func NewFirestoreStore(client *firestore.Client, log *slog.Logger) *FirestoreStore {
	if log == nil {
		log = slog.Default()
	}
	return &FirestoreStore{client: client, log: log}
}

func (s *FirestoreStore) Create(ctx context.Context, collection, id string, fields map[string]any) error {
	_, err := s.client.Collection(collection).Doc(id).Create(ctx, toFirestore(Compact(fields)))
	return mapError(err, collection, id)
}

func (s *FirestoreStore) Get(ctx context.Context, collection, id string) (*Document, error) {
	snap, err := s.client.Collection(collection).Doc(id).Get(ctx)
	if err != nil {
		return nil, mapError(err, collection, id)
	}
	return &Document{ID: snap.Ref.ID, Data: snap.Data()}, nil
}

func (s *FirestoreStore) Query(ctx context.Context, q Query) ([]Document, error) {
	fq := s.client.Collection(q.Collection).Query
	for _, f := range q.Filters {
		fq = fq.Where(f.Field, string(f.Op), f.Value)
	}
	if q.OrderBy != "" {
		dir := firestore.Asc
		if q.Desc {
			dir = firestore.Desc
		}
		fq = fq.OrderBy(q.OrderBy, dir)
	}
	if q.Limit > 0 {
		fq = fq.Limit(q.Limit)
	}

	iter := fq.Documents(ctx)
	defer iter.Stop()

	var out []Document
	for {
		snap, err := iter.Next()
		if errors.Is(err, iterator.Done) {
			break
		}
		if err != nil {
			return nil, mapError(err, q.Collection, "")
		}
		out = append(out, Document{ID: snap.Ref.ID, Data: snap.Data()})
	}
	return out, nil
}

func (s *FirestoreStore) Update(ctx context.Context, collection, id string, fields map[string]any) error {
	compact := Compact(fields)
	updates := make([]firestore.Update, 0, len(compact))
	for path, v := range compact {
		updates = append(updates, firestore.Update{Path: path, Value: toFirestoreValue(v)})
	}
	if len(updates) == 0 {
		return nil
	}
	_, err := s.client.Collection(collection).Doc(id).Update(ctx, updates)
	return mapError(err, collection, id)
}

// Subscribe listens with a detached context: the listener must outlive the
// request that opened it and ends only when Unsubscribe is called.
func (s *FirestoreStore) Subscribe(_ context.Context, collection, id string, fn func(Snapshot)) (Unsubscribe, error) {
	listenCtx, cancel := context.WithCancel(context.Background())
	it := s.client.Collection(collection).Doc(id).Snapshots(listenCtx)

	go func() {
		// Stop must not race with Next, so the listener goroutine owns it.
		defer it.Stop()
		for {
			snap, err := it.Next()
			if err != nil {
				if listenCtx.Err() != nil || status.Code(err) == codes.Canceled {
					return
				}
				s.log.Warn("firestore listener stopped", "collection", collection, "id", id, "err", err)
				fn(Snapshot{Err: mapError(err, collection, id)})
				return
			}
			if !snap.Exists() {
				fn(Snapshot{})
				continue
			}
			fn(Snapshot{Doc: &Document{ID: snap.Ref.ID, Data: snap.Data()}})
		}
	}()

	var once sync.Once
	return func() {
		once.Do(cancel)
	}, nil
}

func mapError(err error, collection, id string) error {
	if err == nil {
		return nil
	}
	if status.Code(err) == codes.NotFound {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %s/%s: %v", ErrUnavailable, collection, id, err)
}

func toFirestore(fields map[string]any) map[string]any {
	out := make(map[string]any, len(fields))
	for k, v := range fields {
		out[k] = toFirestoreValue(v)
	}
	return out
}

func toFirestoreValue(v any) any {
	switch val := v.(type) {
	case serverTimestamp:
		return firestore.ServerTimestamp
	case map[string]any:
		return toFirestore(val)
	}
	return v
}

var _ Store = (*FirestoreStore)(nil)
