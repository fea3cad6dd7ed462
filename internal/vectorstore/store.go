package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"ragflow/internal/domain"
)

// Payload keys written for every chunk.
const (
	PayloadSource = "source"
	PayloadText   = "text"
)

// Store is the collection-scoped wrapper the workflows talk to.
type Store struct {
	backend    Backend
	collection string
	dimension  int

	mu      sync.Mutex
	ensured bool
}

// NewStore wraps backend for one collection. It does not contact the backend.
func NewStore(backend Backend, collection string, dimension int) *Store {
	return &Store{backend: backend, collection: collection, dimension: dimension}
}

// Collection returns the collection name.
func (s *Store) Collection() string { return s.collection }

// Dimension returns the vector dimension of the collection.
func (s *Store) Dimension() int { return s.dimension }

// EnsureCollection creates the collection if it does not exist. Only a
// successful call is remembered.
func (s *Store) EnsureCollection(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ensured {
		return nil
	}
	if err := s.backend.EnsureCollection(ctx, s.collection, s.dimension); err != nil {
		return fmt.Errorf("ensure collection %s: %w", s.collection, err)
	}
	s.ensured = true
	return nil
}

// Upsert writes ids[i], vectors[i], payloads[i] as one point each, overwriting
// existing ids. Inputs are validated before anything is written.
func (s *Store) Upsert(ctx context.Context, ids []string, vectors [][]float32, payloads []map[string]any) error {
	if len(ids) != len(vectors) || len(ids) != len(payloads) {
		return fmt.Errorf("%w: %d ids, %d vectors, %d payloads", domain.ErrLengthMismatch, len(ids), len(vectors), len(payloads))
	}
	if len(ids) == 0 {
		return nil
	}
	points := make([]Point, len(ids))
	for i := range ids {
		if ids[i] == "" {
			return fmt.Errorf("%w: empty id at %d", domain.ErrInvalidInput, i)
		}
		if len(vectors[i]) != s.dimension {
			return fmt.Errorf("%w: point %s has %d dimensions, collection has %d", domain.ErrDimensionMismatch, ids[i], len(vectors[i]), s.dimension)
		}
		points[i] = Point{ID: ids[i], Vector: vectors[i], Payload: payloads[i]}
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return err
	}
	return s.backend.Upsert(ctx, s.collection, points)
}

// Search returns up to topK contexts, most similar first, and the distinct
// sources among them. topK <= 0 returns an empty result without a backend call.
func (s *Store) Search(ctx context.Context, vector []float32, topK int) (domain.SearchResult, error) {
	res := domain.SearchResult{Contexts: []string{}, Sources: []string{}}
	if topK <= 0 {
		return res, nil
	}
	if len(vector) != s.dimension {
		return res, fmt.Errorf("%w: query has %d dimensions, collection has %d", domain.ErrDimensionMismatch, len(vector), s.dimension)
	}
	if err := s.EnsureCollection(ctx); err != nil {
		return res, err
	}
	hits, err := s.backend.Query(ctx, s.collection, vector, topK)
	if err != nil {
		return res, err
	}
	if len(hits) > topK {
		hits = hits[:topK]
	}
	seen := make(map[string]struct{})
	for _, h := range hits {
		text := payloadString(h.Payload, PayloadText)
		if text == "" {
			continue
		}
		res.Contexts = append(res.Contexts, text)
		src := payloadString(h.Payload, PayloadSource)
		if src == "" {
			continue
		}
		if _, ok := seen[src]; ok {
			continue
		}
		seen[src] = struct{}{}
		res.Sources = append(res.Sources, src)
	}
	return res, nil
}

// Count returns the number of points in the collection.
func (s *Store) Count(ctx context.Context) (int, error) {
	if err := s.EnsureCollection(ctx); err != nil {
		return 0, err
	}
	return s.backend.Count(ctx, s.collection)
}

// Close releases the backend.
func (s *Store) Close() error { return s.backend.Close() }

func payloadString(p map[string]any, key string) string {
	if p == nil {
		return ""
	}
	v, _ := p[key].(string)
	return v
}
