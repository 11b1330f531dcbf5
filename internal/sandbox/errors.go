package sandbox

import (
	"errors"
	"fmt"
)

// Sentinel errors for execution outcome classification.
var (
	// ErrTimeout indicates the program was aborted by the wall-clock
	// ceiling or by cancellation of the caller's context.
	ErrTimeout = errors.New("execution timeout")

	// ErrRuntime indicates the program failed to compile or raised an
	// uncaught error, including references to capabilities that are not
	// exposed.
	ErrRuntime = errors.New("execution runtime failure")

	// ErrNoResult indicates the program finished without populating the
	// results slot.
	ErrNoResult = errors.New("execution produced no result")

	// ErrUnsupportedLanguage is returned by New for unknown languages.
	ErrUnsupportedLanguage = errors.New("unsupported sandbox language")
)

// ExecutionError describes a failed execution. Kind is one of ErrTimeout,
// ErrRuntime or ErrNoResult.
type ExecutionError struct {
	Kind    error
	RunID   string
	Message string
	Err     error
}

// Error returns the kind and message.
func (e *ExecutionError) Error() string {
	if e.Message == "" {
		return e.Kind.Error()
	}
	return fmt.Sprintf("%s: %s", e.Kind.Error(), e.Message)
}

// Unwrap returns the underlying runtime error.
func (e *ExecutionError) Unwrap() error {
	return e.Err
}

// Is matches the error's Kind so callers can use errors.Is(err, ErrTimeout).
func (e *ExecutionError) Is(target error) bool {
	return target == e.Kind
}
