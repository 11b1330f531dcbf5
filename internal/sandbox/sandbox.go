// Package sandbox executes untrusted, model-generated programs.
//
// Every execution gets a fresh evaluation context built from an explicit
// allow-list: the numeric namespace bound as `math`, a `results` slot that
// starts out null, and a console stub. Nothing else from the host process
// is reachable: no modules, timers, files, network or environment.
//
// A wall-clock ceiling is enforced by the runtime itself (goja interrupts,
// gopher-lua context checks), so a program that never terminates is aborted
// and reported as ErrTimeout. Contexts are never reused; the results slot is
// read back by the host after the program ends and the context is dropped.
package sandbox

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

// Language selects the runtime used to execute generated code.
type Language string

const (
	LanguageJavaScript Language = "javascript"
	LanguageLua        Language = "lua"
)

// ParseLanguage normalizes a configured language name.
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "javascript", "js":
		return LanguageJavaScript, nil
	case "lua":
		return LanguageLua, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnsupportedLanguage, s)
	}
}

// Defaults.
const (
	DefaultTimeout          = 5 * time.Second
	DefaultMaxCallStackSize = 1024
	DefaultMaxResultLength  = 10_000
	DefaultMaxConsoleLines  = 100

	maxConsoleLineBytes = 1024

	// maxNesting bounds recursion when walking arrays in elementwise math
	// and when reading the results slot back.
	maxNesting = 8

	// resultsBinding is the name generated code assigns its output to.
	resultsBinding = "results"
)

// Config configures an Executor.
type Config struct {
	// Language selects the runtime. Default: javascript.
	Language Language

	// Timeout is the wall-clock ceiling for one execution. Default: 5s.
	Timeout time.Duration

	// MaxCallStackSize bounds recursion depth inside generated code.
	MaxCallStackSize int

	// MaxResultLength is how many elements of the results slot are read
	// back. One extra element is read so the validator can tell the slot
	// was over the limit.
	MaxResultLength int

	// MaxConsoleLines bounds the per-execution console buffer.
	MaxConsoleLines int
}

func (c *Config) applyDefaults() {
	if c.Language == "" {
		c.Language = LanguageJavaScript
	}
	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	if c.MaxCallStackSize <= 0 {
		c.MaxCallStackSize = DefaultMaxCallStackSize
	}
	if c.MaxResultLength <= 0 {
		c.MaxResultLength = DefaultMaxResultLength
	}
	if c.MaxConsoleLines <= 0 {
		c.MaxConsoleLines = DefaultMaxConsoleLines
	}
}

// Result is what the host reads out of a finished execution.
type Result struct {
	RunID    string
	Language Language
	// Value is the results slot converted to plain Go values: []any for
	// sequences, map[string]any for records, float64/int64 for numbers.
	Value    any
	Console  []ConsoleEntry
	Duration time.Duration
}

// Executor runs sanitized source in a fresh isolated context.
//
// Contract:
// - Concurrency: safe for concurrent use; executions share nothing.
// - Context: cancellation or deadline aborts execution with ErrTimeout.
// - Errors: failures are *ExecutionError matching ErrTimeout, ErrRuntime or ErrNoResult.
type Executor interface {
	Execute(ctx context.Context, source string) (*Result, error)
	Language() Language
}

// New returns the Executor for cfg.Language.
func New(cfg Config) (Executor, error) {
	cfg.applyDefaults()
	switch cfg.Language {
	case LanguageJavaScript:
		return &javascriptExecutor{cfg: cfg}, nil
	case LanguageLua:
		return &luaExecutor{cfg: cfg}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedLanguage, cfg.Language)
	}
}

// isEmptySlot reports whether the read-back slot counts as never populated.
func isEmptySlot(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []any:
		return len(x) == 0
	default:
		return false
	}
}

// conclude classifies the outcome of one execution and logs it. A run that
// errored after its context expired is a timeout regardless of which error
// the runtime surfaced while unwinding.
func conclude(runCtx context.Context, lang Language, runID string, console *Console, start time.Time, value any, runErr error) (*Result, error) {
	duration := time.Since(start)
	entries := console.Entries()

	for _, e := range entries {
		log.Debug().
			Str("run_id", runID).
			Str("stream", e.Stream).
			Str("line", e.Line).
			Msg("sandbox console")
	}

	var err error
	switch {
	case runErr != nil && runCtx.Err() != nil:
		err = &ExecutionError{
			Kind:    ErrTimeout,
			RunID:   runID,
			Message: fmt.Sprintf("aborted after %s: %v", duration.Round(time.Millisecond), runCtx.Err()),
			Err:     runCtx.Err(),
		}
	case runErr != nil:
		err = &ExecutionError{Kind: ErrRuntime, RunID: runID, Message: runErr.Error(), Err: runErr}
	case isEmptySlot(value):
		err = &ExecutionError{Kind: ErrNoResult, RunID: runID, Message: resultsBinding + " was never assigned"}
	}

	event := log.Debug()
	if err != nil {
		event = log.Warn().Err(err)
	}
	event.
		Str("run_id", runID).
		Str("language", string(lang)).
		Dur("duration", duration).
		Int("console_lines", len(entries)).
		Int("console_dropped", console.Dropped()).
		Msg("sandbox execution finished")

	if err != nil {
		return nil, err
	}
	return &Result{
		RunID:    runID,
		Language: lang,
		Value:    value,
		Console:  entries,
		Duration: duration,
	}, nil
}

// recovered converts a panic escaping a runtime into an error.
func recovered(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("sandbox panic: %w", err)
	}
	return fmt.Errorf("sandbox panic: %v", r)
}
