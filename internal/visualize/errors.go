package visualize

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/tbuliHe/visualizer/internal/completion"
	"github.com/tbuliHe/visualizer/internal/extract"
	"github.com/tbuliHe/visualizer/internal/sandbox"
)

// Kind classifies a pipeline failure.
type Kind string

const (
	KindUpstreamRetryable   Kind = "upstream_retryable"
	KindUpstreamFatal       Kind = "upstream_fatal"
	KindExecutionTimeout    Kind = "execution_timeout"
	KindExecutionRuntime    Kind = "execution_runtime"
	KindExecutionNoResult   Kind = "execution_no_result"
	KindValidationMalformed Kind = "validation_malformed"
)

// Failure is the single error type returned by Service.Visualize.
type Failure struct {
	Kind Kind

	// Attempts is the number of completion attempts made.
	Attempts int

	// Details is the upstream diagnostic payload, if one was received.
	Details json.RawMessage

	Err error
}

// Error returns the kind followed by the underlying error.
func (f *Failure) Error() string {
	return fmt.Sprintf("visualize %s: %v", f.Kind, f.Err)
}

// Unwrap returns the stage error.
func (f *Failure) Unwrap() error {
	return f.Err
}

// AsFailure returns err as a *Failure, if it is one.
func AsFailure(err error) (*Failure, bool) {
	var f *Failure
	if errors.As(err, &f) {
		return f, true
	}
	return nil, false
}

// kindOf maps a stage error onto the taxonomy. Anything unrecognized is
// treated as an upstream fatal failure.
func kindOf(err error) Kind {
	switch {
	case errors.Is(err, completion.ErrRetryable):
		return KindUpstreamRetryable
	case errors.Is(err, completion.ErrFatal):
		return KindUpstreamFatal
	case errors.Is(err, sandbox.ErrTimeout):
		return KindExecutionTimeout
	case errors.Is(err, sandbox.ErrRuntime):
		return KindExecutionRuntime
	case errors.Is(err, sandbox.ErrNoResult):
		return KindExecutionNoResult
	case errors.Is(err, extract.ErrMalformed):
		return KindValidationMalformed
	default:
		return KindUpstreamFatal
	}
}
