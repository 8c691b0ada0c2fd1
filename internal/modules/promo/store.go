// README: Promo store backed by the document store's promoCodes collection.
package promo

import (
	"context"
	"fmt"

	"gogo/internal/docstore"
)

const collection = "promoCodes"

type Store struct {
	docs docstore.Store
}

func NewStore(docs docstore.Store) *Store {
	return &Store{docs: docs}
}

// FindByCode looks a code up by its normalized (uppercase) form.
func (s *Store) FindByCode(ctx context.Context, code string) (*Code, error) {
	docs, err := s.docs.Query(ctx, docstore.Query{
		Collection: collection,
		Filters:    []docstore.Filter{{Field: "code", Op: docstore.OpEqual, Value: Normalize(code)}},
		Limit:      1,
	})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	var c Code
	if err := docstore.Decode(docs[0].Data, &c); err != nil {
		return nil, fmt.Errorf("promo %s: %w", docs[0].ID, err)
	}
	c.ID = docs[0].ID
	return &c, nil
}
