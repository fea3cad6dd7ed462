package vectorstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
	"ragflow/internal/vectorstore/memory"
)

// flakyBackend fails EnsureCollection a fixed number of times and records writes.
type flakyBackend struct {
	ensureFailures int
	ensureCalls    int
	upserts        int
	hits           []vectorstore.ScoredPoint
}

func (f *flakyBackend) EnsureCollection(context.Context, string, int) error {
	f.ensureCalls++
	if f.ensureFailures > 0 {
		f.ensureFailures--
		return domain.ErrStoreUnavailable
	}
	return nil
}

func (f *flakyBackend) Upsert(context.Context, string, []vectorstore.Point) error {
	f.upserts++
	return nil
}

func (f *flakyBackend) Query(context.Context, string, []float32, int) ([]vectorstore.ScoredPoint, error) {
	return f.hits, nil
}

func (f *flakyBackend) Count(context.Context, string) (int, error) { return 0, nil }
func (f *flakyBackend) Close() error                             { return nil }

func TestPointID_Deterministic(t *testing.T) {
	a := vectorstore.PointID("doc1", 0)
	assert.Equal(t, a, vectorstore.PointID("doc1", 0))
	assert.NotEqual(t, a, vectorstore.PointID("doc1", 1))
	assert.NotEqual(t, a, vectorstore.PointID("doc2", 0))

	parsed, err := uuid.Parse(a)
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(5), parsed.Version())
	// uuid5(NAMESPACE_URL, "doc1:0")
	assert.Equal(t, uuid.NewSHA1(uuid.NameSpaceURL, []byte("doc1:0")).String(), a)
}

func TestStore_UpsertLengthMismatchWritesNothing(t *testing.T) {
	b := &flakyBackend{}
	s := vectorstore.NewStore(b, "docs", 2)

	err := s.Upsert(context.Background(),
		[]string{"a", "b"},
		[][]float32{{1, 0}},
		[]map[string]any{{}, {}},
	)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrLengthMismatch)
	assert.Zero(t, b.upserts)
	assert.Zero(t, b.ensureCalls)
}

func TestStore_UpsertDimensionMismatch(t *testing.T) {
	b := &flakyBackend{}
	s := vectorstore.NewStore(b, "docs", 3)
	err := s.Upsert(context.Background(), []string{"a"}, [][]float32{{1, 0}}, []map[string]any{{}})
	assert.ErrorIs(t, err, domain.ErrDimensionMismatch)
	assert.Zero(t, b.upserts)
}

func TestStore_EnsureRetriesAfterFailure(t *testing.T) {
	b := &flakyBackend{ensureFailures: 1}
	s := vectorstore.NewStore(b, "docs", 1)
	ctx := context.Background()

	err := s.Upsert(ctx, []string{"a"}, [][]float32{{1}}, []map[string]any{{}})
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrStoreUnavailable)
	assert.Zero(t, b.upserts)

	require.NoError(t, s.Upsert(ctx, []string{"a"}, [][]float32{{1}}, []map[string]any{{}}))
	require.NoError(t, s.Upsert(ctx, []string{"a"}, [][]float32{{1}}, []map[string]any{{}}))
	assert.Equal(t, 2, b.ensureCalls)
	assert.Equal(t, 2, b.upserts)
}

func TestStore_SearchTopKZero(t *testing.T) {
	b := &flakyBackend{ensureFailures: 100}
	s := vectorstore.NewStore(b, "docs", 2)
	res, err := s.Search(context.Background(), []float32{1, 0}, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{}, res.Contexts)
	assert.Equal(t, []string{}, res.Sources)
	assert.Zero(t, b.ensureCalls)
}

func TestStore_SearchFiltersPayloads(t *testing.T) {
	b := &flakyBackend{hits: []vectorstore.ScoredPoint{
		{ID: "1", Score: 0.9, Payload: map[string]any{"text": "first", "source": "a.pdf"}},
		{ID: "2", Score: 0.8, Payload: map[string]any{"source": "b.pdf"}},
		{ID: "3", Score: 0.7, Payload: map[string]any{"text": "third", "source": "a.pdf"}},
		{ID: "4", Score: 0.6, Payload: map[string]any{"text": "fourth"}},
		{ID: "5", Score: 0.5, Payload: map[string]any{"text": 42, "source": "c.pdf"}},
		{ID: "6", Score: 0.4, Payload: nil},
	}}
	s := vectorstore.NewStore(b, "docs", 2)
	res, err := s.Search(context.Background(), []float32{1, 0}, 10)
	require.NoError(t, err)
	assert.Equal(t, []string{"first", "third", "fourth"}, res.Contexts)
	assert.Equal(t, []string{"a.pdf"}, res.Sources)
}

func TestStore_SearchOrderingAndBounds(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewStore(memory.NewStorage(), "docs", 2)
	vectors := [][]float32{{1, 0}, {0.9, 0.1}, {0.5, 0.5}, {0, 1}}
	ids := make([]string, len(vectors))
	payloads := make([]map[string]any, len(vectors))
	for i := range vectors {
		ids[i] = vectorstore.PointID("doc", i)
		payloads[i] = map[string]any{"source": "doc", "text": []string{"east", "mostly east", "diagonal", "north"}[i]}
	}
	require.NoError(t, s.Upsert(ctx, ids, vectors, payloads))

	for _, k := range []int{1, 2, 3, 4, 10} {
		res, err := s.Search(ctx, []float32{1, 0}, k)
		require.NoError(t, err)
		assert.LessOrEqual(t, len(res.Contexts), k)
		assert.Equal(t, []string{"doc"}, res.Sources)
	}
	res, err := s.Search(ctx, []float32{1, 0}, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"east", "mostly east", "diagonal", "north"}, res.Contexts)
}

func TestStore_ReingestIsIdempotent(t *testing.T) {
	ctx := context.Background()
	s := vectorstore.NewStore(memory.NewStorage(), "docs", 2)
	write := func() {
		ids := []string{vectorstore.PointID("doc1", 0), vectorstore.PointID("doc1", 1)}
		vecs := [][]float32{{1, 0}, {0, 1}}
		payloads := []map[string]any{{"source": "doc1", "text": "a"}, {"source": "doc1", "text": "b"}}
		require.NoError(t, s.Upsert(ctx, ids, vecs, payloads))
	}
	write()
	write()
	n, err := s.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestStore_SearchPropagatesBackendError(t *testing.T) {
	b := &flakyBackend{ensureFailures: 1}
	s := vectorstore.NewStore(b, "docs", 1)
	_, err := s.Search(context.Background(), []float32{1}, 3)
	assert.True(t, errors.Is(err, domain.ErrStoreUnavailable))
}
