package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"ragflow/internal/domain"
	"ragflow/internal/workflow"
)

// Event is the wire form of one inbound event.
type Event struct {
	ID   string          `json:"id,omitempty"`
	Name string          `json:"name"`
	Data json.RawMessage `json:"data"`
	TS   int64           `json:"ts,omitempty"`
}

// Run is the wire form of one workflow run started by an event.
type Run struct {
	RunID      string          `json:"run_id"`
	EventID    string          `json:"event_id"`
	FunctionID string          `json:"function_id"`
	Status     string          `json:"status"`
	Output     json.RawMessage `json:"output"`
	Error      string          `json:"error,omitempty"`
}

// Reported run statuses.
const (
	StatusRunning   = "Running"
	StatusCompleted = "Completed"
	StatusFailed    = "Failed"
	StatusCancelled = "Cancelled"
)

// decodeEvents accepts a single event object or an array of them.
func decodeEvents(body []byte) ([]Event, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, fmt.Errorf("%w: empty body", domain.ErrInvalidInput)
	}
	if body[0] == '[' {
		var events []Event
		if err := json.Unmarshal(body, &events); err != nil {
			return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
		}
		if len(events) == 0 {
			return nil, fmt.Errorf("%w: no events", domain.ErrInvalidInput)
		}
		return events, nil
	}
	var ev Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}
	return []Event{ev}, nil
}

// workflowInput decodes and validates the event data for the workflow
// registered under the event name.
func workflowInput(ev Event) (any, error) {
	data := ev.Data
	if len(bytes.TrimSpace(data)) == 0 || string(bytes.TrimSpace(data)) == "null" {
		data = json.RawMessage("{}")
	}
	switch strings.TrimSpace(ev.Name) {
	case domain.EventIngestPDF:
		var in workflow.IngestInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", domain.ErrInvalidInput, ev.Name, err)
		}
		if err := in.Validate(); err != nil {
			return nil, err
		}
		return in, nil
	case domain.EventQueryPDFAI:
		var in workflow.QueryInput
		if err := json.Unmarshal(data, &in); err != nil {
			return nil, fmt.Errorf("%w: %s data: %v", domain.ErrInvalidInput, ev.Name, err)
		}
		if err := in.Validate(); err != nil {
			return nil, err
		}
		return in, nil
	default:
		return nil, fmt.Errorf("%w: unknown event %q", domain.ErrInvalidInput, ev.Name)
	}
}
