// Package workflow defines the ingest and query pipelines as Temporal
// workflows. Each step is an activity whose result is checkpointed in the
// workflow history, so retries and replays never repeat a finished step.
package workflow

import (
	"strings"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/worker"
	"go.temporal.io/sdk/workflow"

	"ragflow/internal/domain"
)

// DefaultTaskQueue is the queue both workflows and their activities run on.
const DefaultTaskQueue = "ragflow"

var defaultActivityOptions = workflow.ActivityOptions{
	StartToCloseTimeout: 10 * time.Minute,
	RetryPolicy: &temporal.RetryPolicy{
		InitialInterval:        time.Second,
		BackoffCoefficient:     2.0,
		MaximumInterval:        time.Minute,
		MaximumAttempts:        3,
		NonRetryableErrorTypes: []string{ErrTypeLoad, ErrTypeInvalidInput},
	},
}

// Register adds both workflows, under their event names, and all activities
// to a worker.
func Register(r worker.Registry, acts *Activities) {
	r.RegisterWorkflowWithOptions(IngestPDFWorkflow, workflow.RegisterOptions{Name: domain.EventIngestPDF})
	r.RegisterWorkflowWithOptions(QueryPDFWorkflow, workflow.RegisterOptions{Name: domain.EventQueryPDFAI})
	r.RegisterActivity(acts)
}

// IngestPDFWorkflow runs Loading then Upserting.
func IngestPDFWorkflow(ctx workflow.Context, in IngestInput) (*UpsertResult, error) {
	if err := in.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	logger := workflow.GetLogger(ctx)
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	var loaded ChunkAndSource
	if err := workflow.ExecuteActivity(actCtx, LoadAndChunkActivity, in).Get(ctx, &loaded); err != nil {
		return nil, err
	}
	logger.Info("document loaded", "source", loaded.SourceID, "chunks", len(loaded.Chunks))

	var result UpsertResult
	if err := workflow.ExecuteActivity(actCtx, EmbedAndUpsertActivity, loaded).Get(ctx, &result); err != nil {
		return nil, err
	}
	logger.Info("ingest finished", "source", loaded.SourceID, "ingested", result.Ingested)
	return &result, nil
}

// QueryPDFWorkflow runs Searching then Inferring.
func QueryPDFWorkflow(ctx workflow.Context, in QueryInput) (*QueryResult, error) {
	if err := in.Validate(); err != nil {
		return nil, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeInvalidInput, err)
	}
	logger := workflow.GetLogger(ctx)
	actCtx := workflow.WithActivityOptions(ctx, defaultActivityOptions)

	search := SearchInput{Question: in.Question, TopK: in.EffectiveTopK()}
	var found domain.SearchResult
	if err := workflow.ExecuteActivity(actCtx, EmbedAndSearchActivity, search).Get(ctx, &found); err != nil {
		return nil, err
	}
	logger.Info("contexts retrieved", "top_k", search.TopK, "contexts", len(found.Contexts))

	req := BuildChatRequest(in.Question, found.Contexts)
	var content string
	if err := workflow.ExecuteActivity(actCtx, InferActivity, req).Get(ctx, &content); err != nil {
		return nil, err
	}

	sources := found.Sources
	if sources == nil {
		sources = []string{}
	}
	return &QueryResult{
		Answer:      strings.TrimSpace(content),
		Sources:     sources,
		NumContexts: len(found.Contexts),
	}, nil
}
