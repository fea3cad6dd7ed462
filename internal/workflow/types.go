package workflow

import (
	"fmt"
	"strings"

	"ragflow/internal/domain"
)

// IngestInput is the data of a rag/ingest_pdf event.
type IngestInput struct {
	PDFPath  string `json:"pdf_path"`
	SourceID string `json:"source_id,omitempty"`
}

// Validate checks the event data and fills the source id default.
func (in *IngestInput) Validate() error {
	in.PDFPath = strings.TrimSpace(in.PDFPath)
	if in.PDFPath == "" {
		return fmt.Errorf("%w: pdf_path is required", domain.ErrInvalidInput)
	}
	if strings.TrimSpace(in.SourceID) == "" {
		in.SourceID = in.PDFPath
	}
	return nil
}

// ChunkAndSource is the checkpointed output of the Loading step.
type ChunkAndSource struct {
	Chunks   []string `json:"chunks"`
	SourceID string   `json:"source_id"`
}

// UpsertResult is the output of an ingest run.
type UpsertResult struct {
	Ingested int `json:"ingested"`
}

// QueryInput is the data of a rag/query_pdf_ai event. A nil TopK means the
// default; an explicit 0 means an empty search.
type QueryInput struct {
	Question string `json:"question"`
	TopK     *int   `json:"top_k,omitempty"`
}

// Validate checks the event data.
func (in *QueryInput) Validate() error {
	if strings.TrimSpace(in.Question) == "" {
		return fmt.Errorf("%w: question is required", domain.ErrInvalidInput)
	}
	return nil
}

// EffectiveTopK resolves the optional top_k.
func (in QueryInput) EffectiveTopK() int {
	if in.TopK == nil {
		return domain.DefaultTopK
	}
	return *in.TopK
}

// SearchInput is the input of the Searching step.
type SearchInput struct {
	Question string `json:"question"`
	TopK     int    `json:"top_k"`
}

// QueryResult is the output of a query run.
type QueryResult struct {
	Answer      string   `json:"answer"`
	Sources     []string `json:"sources"`
	NumContexts int      `json:"num_contexts"`
}
