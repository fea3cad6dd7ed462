package memory

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

func TestStorage_UpsertOverwritesAndQueries(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))

	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 0}, Payload: map[string]any{"text": "east"}},
		{ID: "b", Vector: []float32{0, 1}, Payload: map[string]any{"text": "north"}},
	}))
	require.NoError(t, s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "a", Vector: []float32{1, 1}, Payload: map[string]any{"text": "north-east"}},
	}))

	n, err := s.Count(ctx, "docs")
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	hits, err := s.Query(ctx, "docs", []float32{0, 1}, 5)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "b", hits[0].ID)
	assert.InDelta(t, 1.0, hits[0].Score, 1e-9)
	assert.Equal(t, "north-east", hits[1].Payload["text"])

	hits, err = s.Query(ctx, "docs", []float32{0, 1}, 1)
	require.NoError(t, err)
	assert.Len(t, hits, 1)
}

func TestStorage_Errors(t *testing.T) {
	ctx := context.Background()
	s := NewStorage()
	assert.ErrorIs(t, s.EnsureCollection(ctx, "docs", 0), domain.ErrInvalidInput)

	assert.Error(t, s.Upsert(ctx, "missing", []vectorstore.Point{{ID: "x", Vector: []float32{1}}}))
	_, err := s.Query(ctx, "missing", []float32{1}, 1)
	assert.Error(t, err)

	require.NoError(t, s.EnsureCollection(ctx, "docs", 2))
	err = s.Upsert(ctx, "docs", []vectorstore.Point{
		{ID: "ok", Vector: []float32{1, 0}},
		{ID: "bad", Vector: []float32{1}},
	})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	n, _ := s.Count(ctx, "docs")
	assert.Zero(t, n, "a rejected batch must not be partially written")
}
