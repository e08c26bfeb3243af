package execution

import (
	"errors"
	"fmt"
)

// ErrPluginNotFound is returned when a plugin lookup by name fails.
var ErrPluginNotFound = errors.New("plugin not found")

// ValidationError wraps field-specific validation errors on request shape.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error on field '%s': %s", e.Field, e.Message)
}

// NewValidationError creates a new validation error.
func NewValidationError(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}

// InputValidationError reports an execution envelope failure before the
// plugin handler runs. Distinct from plugin handler faults.
type InputValidationError struct {
	Reason string
}

func (e *InputValidationError) Error() string {
	return "input validation failed: " + e.Reason
}

// OutputValidationError reports that the plugin's returned mapping violated
// the output contract.
type OutputValidationError struct {
	Plugin string
	Tool   string
	Reason string
}

func (e *OutputValidationError) Error() string {
	return fmt.Sprintf("output validation failed for %s.%s: %s", e.Plugin, e.Tool, e.Reason)
}

// PluginExecutionError wraps an error raised by a plugin's tool handler.
type PluginExecutionError struct {
	Plugin string
	Tool   string
	Err    error
}

func (e *PluginExecutionError) Error() string {
	return fmt.Sprintf("plugin %s tool %s execution failed: %v", e.Plugin, e.Tool, e.Err)
}

func (e *PluginExecutionError) Unwrap() error { return e.Err }

// JobExecutionError reports a job-lifecycle fault with the offending job id
// and the phase where it occurred.
type JobExecutionError struct {
	JobID string
	Phase string
	Err   error
}

func (e *JobExecutionError) Error() string {
	return fmt.Sprintf("job %s failed during %s: %v", e.JobID, e.Phase, e.Err)
}

func (e *JobExecutionError) Unwrap() error { return e.Err }
