package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	enumspb "go.temporal.io/api/enums/v1"
	"go.temporal.io/api/serviceerror"
	"go.temporal.io/sdk/client"
)

// Engine starts workflows for events and reports their runs.
type Engine interface {
	Send(ctx context.Context, eventID, name string, input any) error
	Runs(ctx context.Context, eventID string) ([]Run, error)
}

// TemporalEngine runs every event as a Temporal workflow whose id is the
// event id and whose type is the event name.
type TemporalEngine struct {
	client    client.Client
	taskQueue string
}

func NewTemporalEngine(c client.Client, taskQueue string) *TemporalEngine {
	return &TemporalEngine{client: c, taskQueue: taskQueue}
}

func (e *TemporalEngine) Send(ctx context.Context, eventID, name string, input any) error {
	opts := client.StartWorkflowOptions{
		ID:        eventID,
		TaskQueue: e.taskQueue,
	}
	if _, err := e.client.ExecuteWorkflow(ctx, opts, name, input); err != nil {
		return fmt.Errorf("start %s for event %s: %w", name, eventID, err)
	}
	return nil
}

func (e *TemporalEngine) Runs(ctx context.Context, eventID string) ([]Run, error) {
	desc, err := e.client.DescribeWorkflowExecution(ctx, eventID, "")
	if err != nil {
		var notFound *serviceerror.NotFound
		if errors.As(err, &notFound) {
			return []Run{}, nil
		}
		return nil, fmt.Errorf("describe %s: %w", eventID, err)
	}
	info := desc.GetWorkflowExecutionInfo()
	run := Run{
		RunID:      info.GetExecution().GetRunId(),
		EventID:    eventID,
		FunctionID: info.GetType().GetName(),
		Status:     MapStatus(info.GetStatus()),
	}

	switch run.Status {
	case StatusCompleted:
		var out json.RawMessage
		if err := e.client.GetWorkflow(ctx, eventID, run.RunID).Get(ctx, &out); err != nil {
			return nil, fmt.Errorf("result of %s: %w", eventID, err)
		}
		run.Output = out
	case StatusFailed, StatusCancelled:
		if err := e.client.GetWorkflow(ctx, eventID, run.RunID).Get(ctx, nil); err != nil {
			run.Error = err.Error()
		}
	}
	return []Run{run}, nil
}

// MapStatus reduces a Temporal execution status to the reported run status.
func MapStatus(s enumspb.WorkflowExecutionStatus) string {
	switch s {
	case enumspb.WORKFLOW_EXECUTION_STATUS_COMPLETED:
		return StatusCompleted
	case enumspb.WORKFLOW_EXECUTION_STATUS_FAILED, enumspb.WORKFLOW_EXECUTION_STATUS_TIMED_OUT:
		return StatusFailed
	case enumspb.WORKFLOW_EXECUTION_STATUS_CANCELED, enumspb.WORKFLOW_EXECUTION_STATUS_TERMINATED:
		return StatusCancelled
	default:
		return StatusRunning
	}
}
