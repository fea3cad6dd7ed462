// Package vectorstore owns the vector collection: its schema, idempotent
// writes keyed by deterministic point ids, and cosine similarity search.
package vectorstore

import "context"

// Point is one stored vector with its payload.
type Point struct {
	ID      string
	Vector  []float32
	Payload map[string]any
}

// ScoredPoint is a search hit; Score is cosine similarity, higher is closer.
type ScoredPoint struct {
	ID      string
	Score   float64
	Payload map[string]any
}

// Backend is a vector database holding named collections. Implementations
// must overwrite points with an existing id and return hits ordered by
// descending score.
type Backend interface {
	EnsureCollection(ctx context.Context, name string, dimension int) error
	Upsert(ctx context.Context, collection string, points []Point) error
	Query(ctx context.Context, collection string, vector []float32, limit int) ([]ScoredPoint, error)
	Count(ctx context.Context, collection string) (int, error)
	Close() error
}
