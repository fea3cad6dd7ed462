package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

// Storage is a simple in-memory vector backend using brute-force cosine similarity.
type Storage struct {
	mu          sync.RWMutex
	collections map[string]*collection
}

type collection struct {
	dimension int
	order     []string
	points    map[string]vectorstore.Point
}

func NewStorage() *Storage {
	return &Storage{collections: make(map[string]*collection)}
}

func (s *Storage) EnsureCollection(_ context.Context, name string, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("%w: invalid dimension %d", domain.ErrInvalidInput, dimension)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.collections[name]; ok {
		return nil
	}
	s.collections[name] = &collection{dimension: dimension, points: make(map[string]vectorstore.Point)}
	return nil
}

func (s *Storage) Upsert(_ context.Context, name string, points []vectorstore.Point) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.collections[name]
	if !ok {
		return fmt.Errorf("collection %s not found", name)
	}
	for _, p := range points {
		if len(p.Vector) != c.dimension {
			return domain.ErrDimensionMismatch
		}
	}
	for _, p := range points {
		if _, exists := c.points[p.ID]; !exists {
			c.order = append(c.order, p.ID)
		}
		c.points[p.ID] = vectorstore.Point{
			ID:      p.ID,
			Vector:  append([]float32(nil), p.Vector...),
			Payload: copyPayload(p.Payload),
		}
	}
	return nil
}

func (s *Storage) Query(_ context.Context, name string, vector []float32, limit int) ([]vectorstore.ScoredPoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return nil, fmt.Errorf("collection %s not found", name)
	}
	hits := make([]vectorstore.ScoredPoint, 0, len(c.order))
	for _, id := range c.order {
		p := c.points[id]
		hits = append(hits, vectorstore.ScoredPoint{ID: id, Score: vectorstore.Cosine(p.Vector, vector), Payload: copyPayload(p.Payload)})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
	if limit >= 0 && limit < len(hits) {
		hits = hits[:limit]
	}
	return hits, nil
}

func (s *Storage) Count(_ context.Context, name string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.collections[name]
	if !ok {
		return 0, nil
	}
	return len(c.points), nil
}

func (s *Storage) Close() error { return nil }

func copyPayload(p map[string]any) map[string]any {
	if p == nil {
		return nil
	}
	out := make(map[string]any, len(p))
	for k, v := range p {
		out[k] = v
	}
	return out
}
