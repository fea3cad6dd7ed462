package workflow

import (
	"context"
	"fmt"
	"strings"

	"go.temporal.io/sdk/activity"

	"ragflow/internal/domain"
	"ragflow/internal/vectorstore"
)

// Activity names, as registered from the Activities method set.
const (
	LoadAndChunkActivity   = "LoadAndChunk"
	EmbedAndUpsertActivity = "EmbedAndUpsert"
	EmbedAndSearchActivity = "EmbedAndSearch"
	InferActivity          = "Infer"
)

// Activities holds the side-effecting steps of both workflows.
type Activities struct {
	loader   domain.DocumentLoader
	chunker  domain.Chunker
	embedder domain.Embedder
	store    *vectorstore.Store
	chat     domain.ChatModel
}

func NewActivities(loader domain.DocumentLoader, chunker domain.Chunker, embedder domain.Embedder, store *vectorstore.Store, chat domain.ChatModel) *Activities {
	return &Activities{
		loader:   loader,
		chunker:  chunker,
		embedder: embedder,
		store:    store,
		chat:     chat,
	}
}

// LoadAndChunk extracts the document text and splits every page separately.
func (a *Activities) LoadAndChunk(ctx context.Context, in IngestInput) (*ChunkAndSource, error) {
	if err := in.Validate(); err != nil {
		return nil, appError(ErrTypeInvalidInput, err)
	}
	logger := activity.GetLogger(ctx)
	logger.Info("loading document", "path", in.PDFPath, "source", in.SourceID)

	pages, err := a.loader.Load(ctx, in.PDFPath)
	if err != nil {
		return nil, appError(ErrTypeLoad, err)
	}
	chunks := []string{}
	for _, page := range pages {
		chunks = append(chunks, a.chunker.Split(page)...)
	}
	logger.Info("document chunked", "pages", len(pages), "chunks", len(chunks))
	return &ChunkAndSource{Chunks: chunks, SourceID: in.SourceID}, nil
}

// EmbedAndUpsert embeds all chunks in one batch and writes them with
// deterministic ids, so a retried or repeated ingest overwrites in place.
func (a *Activities) EmbedAndUpsert(ctx context.Context, in ChunkAndSource) (*UpsertResult, error) {
	if len(in.Chunks) == 0 {
		return &UpsertResult{Ingested: 0}, nil
	}
	logger := activity.GetLogger(ctx)

	vectors, err := a.embedder.EmbedBatch(ctx, in.Chunks)
	if err != nil {
		return nil, appError(ErrTypeEmbed, err)
	}
	if len(vectors) != len(in.Chunks) {
		return nil, appError(ErrTypeEmbed, fmt.Errorf("%w: %d vectors for %d chunks", domain.ErrEmbed, len(vectors), len(in.Chunks)))
	}

	ids := make([]string, len(in.Chunks))
	payloads := make([]map[string]any, len(in.Chunks))
	for i, text := range in.Chunks {
		ids[i] = vectorstore.PointID(in.SourceID, i)
		payloads[i] = map[string]any{
			vectorstore.PayloadSource: in.SourceID,
			vectorstore.PayloadText:   text,
		}
	}
	if err := a.store.Upsert(ctx, ids, vectors, payloads); err != nil {
		return nil, appError(storeErrorType(err), err)
	}
	logger.Info("chunks upserted", "source", in.SourceID, "count", len(ids), "collection", a.store.Collection())
	return &UpsertResult{Ingested: len(in.Chunks)}, nil
}

// EmbedAndSearch embeds the question and returns the nearest contexts.
func (a *Activities) EmbedAndSearch(ctx context.Context, in SearchInput) (*domain.SearchResult, error) {
	empty := &domain.SearchResult{Contexts: []string{}, Sources: []string{}}
	if in.TopK <= 0 {
		return empty, nil
	}
	if strings.TrimSpace(in.Question) == "" {
		return nil, appError(ErrTypeInvalidInput, fmt.Errorf("%w: question is required", domain.ErrInvalidInput))
	}

	vectors, err := a.embedder.EmbedBatch(ctx, []string{in.Question})
	if err != nil {
		return nil, appError(ErrTypeEmbed, err)
	}
	if len(vectors) != 1 {
		return nil, appError(ErrTypeEmbed, fmt.Errorf("%w: %d vectors for one question", domain.ErrEmbed, len(vectors)))
	}

	res, err := a.store.Search(ctx, vectors[0], in.TopK)
	if err != nil {
		return nil, appError(ErrTypeSearch, fmt.Errorf("%w: %w", domain.ErrSearch, err))
	}
	activity.GetLogger(ctx).Info("search finished", "top_k", in.TopK, "contexts", len(res.Contexts), "sources", len(res.Sources))
	return &res, nil
}

// Infer makes exactly one chat call and returns the raw content.
func (a *Activities) Infer(ctx context.Context, req domain.ChatRequest) (string, error) {
	activity.GetLogger(ctx).Info("calling chat model", "model", a.chat.ModelName(), "messages", len(req.Messages))
	content, err := a.chat.Chat(ctx, req)
	if err != nil {
		return "", appError(ErrTypeInference, err)
	}
	return content, nil
}
