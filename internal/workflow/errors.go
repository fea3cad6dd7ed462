package workflow

import (
	"errors"

	"go.temporal.io/sdk/temporal"

	"ragflow/internal/domain"
)

// Application error types reported by activities. The retry policy lists the
// ones that must not be retried.
const (
	ErrTypeLoad             = "LoadError"
	ErrTypeEmbed            = "EmbedError"
	ErrTypeStoreUnavailable = "StoreUnavailable"
	ErrTypeSearch           = "SearchError"
	ErrTypeInference        = "InferenceError"
	ErrTypeInvalidInput     = "InvalidInput"
)

func appError(errType string, err error) error {
	return temporal.NewApplicationErrorWithCause(err.Error(), errType, err)
}

// storeErrorType classifies a failed write.
func storeErrorType(err error) string {
	switch {
	case errors.Is(err, domain.ErrLengthMismatch),
		errors.Is(err, domain.ErrDimensionMismatch),
		errors.Is(err, domain.ErrInvalidInput):
		return ErrTypeInvalidInput
	default:
		return ErrTypeStoreUnavailable
	}
}

// ErrorType returns the application error type carried by err, or "" when
// err did not come from an activity or workflow failure.
func ErrorType(err error) string {
	var appErr *temporal.ApplicationError
	if errors.As(err, &appErr) {
		return appErr.Type()
	}
	return ""
}
