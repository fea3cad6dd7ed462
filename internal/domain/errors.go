package domain

import "errors"

// Pipeline errors. Adapters wrap these with fmt.Errorf("...: %w") so callers
// can classify failures with errors.Is.
var (
	// ErrInvalidInput indicates a malformed event or request.
	ErrInvalidInput = errors.New("invalid input")

	// ErrLoad indicates a source document could not be read or parsed.
	ErrLoad = errors.New("load failed")

	// ErrEmbed indicates the embedding provider failed.
	ErrEmbed = errors.New("embedding failed")

	// ErrStoreUnavailable indicates the vector database could not be reached.
	ErrStoreUnavailable = errors.New("vector store unavailable")

	// ErrSearch indicates a similarity search failed.
	ErrSearch = errors.New("search failed")

	// ErrInference indicates the language-model call failed.
	ErrInference = errors.New("inference failed")

	// ErrLengthMismatch indicates parallel upsert slices differ in length.
	ErrLengthMismatch = errors.New("ids, vectors and payloads length mismatch")

	// ErrDimensionMismatch indicates a vector does not match the collection dimension.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrTimeout indicates the front-end gave up waiting for a run.
	ErrTimeout = errors.New("timed out waiting for run output")

	// ErrRunFailed indicates the workflow engine reported a failed run.
	ErrRunFailed = errors.New("run failed")

	// ErrRunCancelled indicates the workflow engine reported a cancelled run.
	ErrRunCancelled = errors.New("run cancelled")
)
