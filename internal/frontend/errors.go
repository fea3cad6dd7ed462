package frontend

import (
	"fmt"

	"ragflow/internal/domain"
)

// RunError is a run that reached a terminal non-success status.
type RunError struct {
	EventID string
	Status  string
	Message string
}

func (e *RunError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("run for event %s %s: %s", e.EventID, e.Status, e.Message)
	}
	return fmt.Sprintf("run for event %s %s", e.EventID, e.Status)
}

func (e *RunError) Is(target error) bool {
	switch target {
	case domain.ErrRunFailed:
		return e.Status == statusFailed
	case domain.ErrRunCancelled:
		return e.Status == statusCancelled
	}
	return false
}

// TimeoutError is returned when no terminal status arrived before the deadline.
type TimeoutError struct {
	EventID    string
	LastStatus string
}

func (e *TimeoutError) Error() string {
	last := e.LastStatus
	if last == "" {
		last = "none"
	}
	return fmt.Sprintf("timed out waiting for run output of event %s (last status: %s)", e.EventID, last)
}

func (e *TimeoutError) Is(target error) bool { return target == domain.ErrTimeout }
