package workflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"go.temporal.io/sdk/testsuite"
	"go.temporal.io/sdk/workflow"

	"ragflow/internal/chunker"
	"ragflow/internal/domain"
	"ragflow/internal/embedding/hashing"
	"ragflow/internal/loader"
	"ragflow/internal/vectorstore"
	"ragflow/internal/vectorstore/memory"
)

const testDim = 64

type fakeChat struct {
	mu       sync.Mutex
	content  string
	err      error
	requests []domain.ChatRequest
}

func (f *fakeChat) ModelName() string { return "fake" }

func (f *fakeChat) Chat(_ context.Context, req domain.ChatRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, req)
	if f.err != nil {
		return "", f.err
	}
	return f.content, nil
}

// countingEmbedder wraps an embedder and counts calls.
type countingEmbedder struct {
	domain.Embedder
	mu    sync.Mutex
	calls int
	err   error
}

func (c *countingEmbedder) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	if c.err != nil {
		return nil, c.err
	}
	return c.Embedder.EmbedBatch(ctx, texts)
}

type unavailableBackend struct{}

func (unavailableBackend) EnsureCollection(context.Context, string, int) error {
	return domain.ErrStoreUnavailable
}

func (unavailableBackend) Upsert(context.Context, string, []vectorstore.Point) error {
	return domain.ErrStoreUnavailable
}

func (unavailableBackend) Query(context.Context, string, []float32, int) ([]vectorstore.ScoredPoint, error) {
	return nil, domain.ErrStoreUnavailable
}

func (unavailableBackend) Count(context.Context, string) (int, error) { return 0, domain.ErrStoreUnavailable }
func (unavailableBackend) Close() error                             { return nil }

type WorkflowSuite struct {
	suite.Suite
	testsuite.WorkflowTestSuite

	env      *testsuite.TestWorkflowEnvironment
	backend  *memory.Storage
	store    *vectorstore.Store
	embedder *countingEmbedder
	chat     *fakeChat
	dir      string
}

func TestWorkflowSuite(t *testing.T) {
	suite.Run(t, new(WorkflowSuite))
}

func (s *WorkflowSuite) SetupTest() {
	s.dir = s.T().TempDir()
	s.backend = memory.NewStorage()
	s.store = vectorstore.NewStore(s.backend, "docs", testDim)
	s.embedder = &countingEmbedder{Embedder: hashing.NewEmbedder(testDim)}
	s.chat = &fakeChat{content: "  The answer.  \n"}
	s.env = s.newEnv(s.store)
}

func (s *WorkflowSuite) newEnv(store *vectorstore.Store) *testsuite.TestWorkflowEnvironment {
	env := s.NewTestWorkflowEnvironment()
	acts := NewActivities(loader.New(), chunker.NewSentenceChunker(30, 0), s.embedder, store, s.chat)
	env.RegisterWorkflowWithOptions(IngestPDFWorkflow, workflow.RegisterOptions{Name: domain.EventIngestPDF})
	env.RegisterWorkflowWithOptions(QueryPDFWorkflow, workflow.RegisterOptions{Name: domain.EventQueryPDFAI})
	env.RegisterActivity(acts)
	return env
}

func (s *WorkflowSuite) AfterTest(_, _ string) {
	s.env.AssertExpectations(s.T())
}

func (s *WorkflowSuite) writeDoc(name, text string) string {
	path := filepath.Join(s.dir, name)
	s.Require().NoError(os.WriteFile(path, []byte(text), 0o644))
	return path
}

func (s *WorkflowSuite) ingest(env *testsuite.TestWorkflowEnvironment, in IngestInput) (UpsertResult, error) {
	env.ExecuteWorkflow(domain.EventIngestPDF, in)
	s.Require().True(env.IsWorkflowCompleted())
	var out UpsertResult
	if err := env.GetWorkflowError(); err != nil {
		return out, err
	}
	s.Require().NoError(env.GetWorkflowResult(&out))
	return out, nil
}

func (s *WorkflowSuite) TestIngest_TwoChunks() {
	path := s.writeDoc("doc1.txt", "Alpha one is here. Beta two. Gamma three.")

	out, err := s.ingest(s.env, IngestInput{PDFPath: path, SourceID: "doc1"})
	s.Require().NoError(err)
	s.Equal(2, out.Ingested)

	n, err := s.store.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)

	q := make([]float32, testDim)
	q[0] = 1
	hits, err := s.backend.Query(context.Background(), "docs", q, 10)
	s.Require().NoError(err)
	ids := make([]string, len(hits))
	for i, h := range hits {
		ids[i] = h.ID
	}
	s.ElementsMatch([]string{vectorstore.PointID("doc1", 0), vectorstore.PointID("doc1", 1)}, ids)
}

func (s *WorkflowSuite) TestIngest_PDFChunksPerPage() {
	path, err := filepath.Abs(filepath.Join("..", "loader", "testdata", "three_pages.pdf"))
	s.Require().NoError(err)

	out, err := s.ingest(s.env, IngestInput{PDFPath: path, SourceID: "pages.pdf"})
	s.Require().NoError(err)
	s.Equal(2, out.Ingested)

	q, err := hashing.NewEmbedder(testDim).EmbedBatch(context.Background(), []string{"Alpha page one."})
	s.Require().NoError(err)
	res, err := s.store.Search(context.Background(), q[0], 10)
	s.Require().NoError(err)
	s.ElementsMatch([]string{"Alpha page one.", "Beta page two."}, res.Contexts)
	s.Equal([]string{"pages.pdf"}, res.Sources)
}

func (s *WorkflowSuite) TestIngest_IsIdempotent() {
	path := s.writeDoc("doc1.txt", "Alpha one is here. Beta two. Gamma three.")
	_, err := s.ingest(s.env, IngestInput{PDFPath: path, SourceID: "doc1"})
	s.Require().NoError(err)

	_, err = s.ingest(s.newEnv(s.store), IngestInput{PDFPath: path, SourceID: "doc1"})
	s.Require().NoError(err)

	n, err := s.store.Count(context.Background())
	s.Require().NoError(err)
	s.Equal(2, n)
}

func (s *WorkflowSuite) TestIngest_SourceDefaultsToPath() {
	path := s.writeDoc("notes.md", "Only one sentence here.")
	_, err := s.ingest(s.env, IngestInput{PDFPath: path})
	s.Require().NoError(err)

	q, err := s.embedder.EmbedBatch(context.Background(), []string{"sentence"})
	s.Require().NoError(err)
	res, err := s.store.Search(context.Background(), q[0], 5)
	s.Require().NoError(err)
	s.Equal([]string{path}, res.Sources)
}

func (s *WorkflowSuite) TestIngest_EmptyDocument() {
	path := s.writeDoc("empty.txt", "   \n  ")
	out, err := s.ingest(s.env, IngestInput{PDFPath: path, SourceID: "empty"})
	s.Require().NoError(err)
	s.Equal(0, out.Ingested)
	s.Zero(s.embedder.calls)
}

func (s *WorkflowSuite) TestIngest_LoadErrorIsNotRetried() {
	_, err := s.ingest(s.env, IngestInput{PDFPath: filepath.Join(s.dir, "missing.pdf")})
	s.Require().Error(err)
	s.Equal(ErrTypeLoad, ErrorType(err))
	s.Zero(s.embedder.calls)
}

func (s *WorkflowSuite) TestIngest_InvalidInput() {
	_, err := s.ingest(s.env, IngestInput{PDFPath: "  "})
	s.Require().Error(err)
	s.Equal(ErrTypeInvalidInput, ErrorType(err))
}

func (s *WorkflowSuite) TestIngest_StoreUnavailable() {
	path := s.writeDoc("doc1.txt", "Alpha one is here.")
	env := s.newEnv(vectorstore.NewStore(&unavailableBackend{}, "docs", testDim))
	_, err := s.ingest(env, IngestInput{PDFPath: path, SourceID: "doc1"})
	s.Require().Error(err)
	s.Equal(ErrTypeStoreUnavailable, ErrorType(err))
}

func (s *WorkflowSuite) query(env *testsuite.TestWorkflowEnvironment, in QueryInput) (QueryResult, error) {
	env.ExecuteWorkflow(domain.EventQueryPDFAI, in)
	s.Require().True(env.IsWorkflowCompleted())
	var out QueryResult
	if err := env.GetWorkflowError(); err != nil {
		return out, err
	}
	s.Require().NoError(env.GetWorkflowResult(&out))
	return out, nil
}

func (s *WorkflowSuite) TestQuery_UsesRetrievedContexts() {
	path := s.writeDoc("doc1.txt", "Alpha one is here. Beta two. Gamma three.")
	_, err := s.ingest(s.env, IngestInput{PDFPath: path, SourceID: "doc1"})
	s.Require().NoError(err)

	out, err := s.query(s.newEnv(s.store), QueryInput{Question: "Where is alpha?"})
	s.Require().NoError(err)
	s.Equal("The answer.", out.Answer)
	s.Equal([]string{"doc1"}, out.Sources)
	s.Equal(2, out.NumContexts)

	s.Require().Len(s.chat.requests, 1)
	req := s.chat.requests[0]
	s.Equal(1024, req.MaxTokens)
	s.InDelta(0.2, req.Temperature, 1e-9)
	s.Require().Len(req.Messages, 2)
	s.Contains(req.Messages[1].Content, "- Alpha one is here. Beta two.")
	s.Contains(req.Messages[1].Content, "Question: Where is alpha?")
}

func (s *WorkflowSuite) TestQuery_TopKZeroStillAnswers() {
	zero := 0
	out, err := s.query(s.env, QueryInput{Question: "anything?", TopK: &zero})
	s.Require().NoError(err)
	s.Equal("The answer.", out.Answer)
	s.Equal([]string{}, out.Sources)
	s.Equal(0, out.NumContexts)
	s.Zero(s.embedder.calls)
	s.Require().Len(s.chat.requests, 1)
	s.Contains(s.chat.requests[0].Messages[1].Content, "Context:\n\n\nQuestion: anything?")
}

func (s *WorkflowSuite) TestQuery_DefaultTopK() {
	var sentences string
	for _, w := range []string{"One.", "Two.", "Three.", "Four.", "Five.", "Six.", "Seven."} {
		sentences += w + " "
	}
	path := s.writeDoc("many.txt", sentences)
	env := s.NewTestWorkflowEnvironment()
	acts := NewActivities(loader.New(), chunker.NewSentenceChunker(6, 0), s.embedder, s.store, s.chat)
	env.RegisterWorkflowWithOptions(IngestPDFWorkflow, workflow.RegisterOptions{Name: domain.EventIngestPDF})
	env.RegisterActivity(acts)
	out, err := s.ingest(env, IngestInput{PDFPath: path, SourceID: "many"})
	s.Require().NoError(err)
	s.Equal(7, out.Ingested)

	res, err := s.query(s.newEnv(s.store), QueryInput{Question: "count"})
	s.Require().NoError(err)
	s.Equal(domain.DefaultTopK, res.NumContexts)
}

func (s *WorkflowSuite) TestQuery_InferenceError() {
	s.chat.err = errors.New("upstream 500")
	zero := 0
	_, err := s.query(s.env, QueryInput{Question: "q", TopK: &zero})
	s.Require().Error(err)
	s.Equal(ErrTypeInference, ErrorType(err))
	// retried by the engine, never locally
	s.Len(s.chat.requests, 3)
}

func (s *WorkflowSuite) TestQuery_EmbedError() {
	s.embedder.err = errors.New("rate limited")
	_, err := s.query(s.env, QueryInput{Question: "q"})
	s.Require().Error(err)
	s.Equal(ErrTypeEmbed, ErrorType(err))
	s.Empty(s.chat.requests)
}

func (s *WorkflowSuite) TestQuery_EmptyQuestion() {
	_, err := s.query(s.env, QueryInput{Question: ""})
	s.Require().Error(err)
	s.Equal(ErrTypeInvalidInput, ErrorType(err))
}

func TestBuildChatRequest(t *testing.T) {
	req := BuildChatRequest("What?", []string{"first", "second"})
	require.Len(t, req.Messages, 2)
	assert.Equal(t, "system", req.Messages[0].Role)
	assert.Equal(t, "You answer questions using only the provided context.", req.Messages[0].Content)
	assert.Equal(t, "user", req.Messages[1].Role)
	assert.Equal(t,
		"Use the following context to answer the question.\n\nContext:\n- first\n\n- second\n\nQuestion: What?\nAnswer concisely using the context above.",
		req.Messages[1].Content)
	assert.Equal(t, 1024, req.MaxTokens)
	assert.Equal(t, 0.2, req.Temperature)
}

func TestQueryInput_EffectiveTopK(t *testing.T) {
	assert.Equal(t, domain.DefaultTopK, QueryInput{}.EffectiveTopK())
	three := 3
	assert.Equal(t, 3, QueryInput{TopK: &three}.EffectiveTopK())
	zero := 0
	assert.Equal(t, 0, QueryInput{TopK: &zero}.EffectiveTopK())
}

func TestActivity_EmbedAndUpsertSkipsEmptyInput(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	emb := &countingEmbedder{Embedder: hashing.NewEmbedder(testDim)}
	store := vectorstore.NewStore(&unavailableBackend{}, "docs", testDim)
	acts := NewActivities(loader.New(), chunker.NewSentenceChunker(0, 0), emb, store, &fakeChat{})
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(EmbedAndUpsertActivity, ChunkAndSource{SourceID: "doc"})
	require.NoError(t, err)
	var out UpsertResult
	require.NoError(t, val.Get(&out))
	assert.Equal(t, 0, out.Ingested)
	assert.Zero(t, emb.calls)
}

func TestActivity_LoadAndChunkKeepsPagesApart(t *testing.T) {
	var ts testsuite.WorkflowTestSuite
	env := ts.NewTestActivityEnvironment()
	acts := NewActivities(pagesLoader{"First page ends here", "Second page."}, chunker.NewSentenceChunker(100, 0), nil, nil, nil)
	env.RegisterActivity(acts)

	val, err := env.ExecuteActivity(LoadAndChunkActivity, IngestInput{PDFPath: "book.pdf"})
	require.NoError(t, err)
	var out ChunkAndSource
	require.NoError(t, val.Get(&out))
	assert.Equal(t, []string{"First page ends here", "Second page."}, out.Chunks)
	assert.Equal(t, "book.pdf", out.SourceID)
}

type pagesLoader []string

func (p pagesLoader) Load(context.Context, string) ([]string, error) { return p, nil }
