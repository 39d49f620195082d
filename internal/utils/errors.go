package utils

import (
	"errors"
	"fmt"
)

var (
	// ErrNoRouteFound means a route search finished with zero valid routes.
	ErrNoRouteFound = errors.New("no valid route found")
	// ErrNoOpportunity means the inputs did not form a comparable opportunity.
	ErrNoOpportunity = errors.New("no opportunity found")
	// ErrDataUnavailable marks failures and timeouts of external data sources.
	ErrDataUnavailable = errors.New("data unavailable")
	// ErrNoVenuesConfigured is a configuration error: the registry is empty.
	ErrNoVenuesConfigured = errors.New("no venues configured")
	// ErrOptimizationFailed marks a failed primary optimization path.
	ErrOptimizationFailed = errors.New("optimization failed")
)

// ValidationError represents an error occurring during data validation.
type ValidationError struct {
	Message string
}

// Error returns the error message string.
func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError creates a new ValidationError with a specific message.
func NewValidationError(message string) error {
	return &ValidationError{
		Message: message,
	}
}

// NewValidationErrorf creates a new ValidationError with a formatted message.
func NewValidationErrorf(format string, args ...interface{}) error {
	return &ValidationError{
		Message: fmt.Sprintf(format, args...),
	}
}

// IsValidationError reports whether err wraps a ValidationError.
func IsValidationError(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// DataUnavailableError wraps a failed call to an external data source.
type DataUnavailableError struct {
	Source string
	Err    error
}

func (e *DataUnavailableError) Error() string {
	return fmt.Sprintf("%s unavailable: %v", e.Source, e.Err)
}

// Unwrap exposes the underlying cause.
func (e *DataUnavailableError) Unwrap() error {
	return e.Err
}

// Is matches ErrDataUnavailable.
func (e *DataUnavailableError) Is(target error) bool {
	return target == ErrDataUnavailable
}

// DataUnavailable wraps err as a data source failure for source.
func DataUnavailable(source string, err error) error {
	if err == nil {
		return nil
	}
	return &DataUnavailableError{Source: source, Err: err}
}
