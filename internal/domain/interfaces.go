package domain

import "context"

// Event names consumed by the workflows.
const (
	EventIngestPDF  = "rag/ingest_pdf"
	EventQueryPDFAI = "rag/query_pdf_ai"
)

// DefaultTopK is used when a query event carries no top_k.
const DefaultTopK = 5

// SearchResult is what a similarity search hands to the query workflow.
// Contexts are ordered most-similar first; Sources holds distinct source ids.
type SearchResult struct {
	Contexts []string `json:"contexts"`
	Sources  []string `json:"sources"`
}

// ChatMessage is one message sent to a chat model.
type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body of a single inference call.
type ChatRequest struct {
	Messages    []ChatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

// Embedder converts texts into fixed-dimension vectors, one per input text.
type Embedder interface {
	Name() string
	Dimension() int
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

// ChatModel issues one chat-completion call and returns the raw message content.
type ChatModel interface {
	ModelName() string
	Chat(ctx context.Context, req ChatRequest) (string, error)
}

// DocumentLoader extracts the text of a document, one string per page.
type DocumentLoader interface {
	Load(ctx context.Context, path string) ([]string, error)
}

// Chunker splits extracted text into ordered chunks.
type Chunker interface {
	Split(text string) []string
}
