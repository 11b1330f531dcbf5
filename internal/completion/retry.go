package completion

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog/log"

	"github.com/tbuliHe/visualizer/pkg/models"
)

// Completer performs a single completion attempt.
type Completer interface {
	Complete(ctx context.Context, req models.CompletionRequest) (string, error)
}

// Retrier re-attempts retryable failures up to a fixed attempt budget.
// Attempts are issued back to back; any other failure ends the sequence
// immediately.
type Retrier struct {
	completer   Completer
	maxAttempts int
}

// NewRetrier wraps c with an attempt budget. maxAttempts <= 0 selects
// DefaultMaxAttempts.
func NewRetrier(c Completer, maxAttempts int) *Retrier {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	return &Retrier{completer: c, maxAttempts: maxAttempts}
}

// MaxAttempts returns the attempt budget.
func (r *Retrier) MaxAttempts() int {
	return r.maxAttempts
}

// Complete runs attempts until one succeeds, one fails fatally, the budget
// is spent or ctx is done. It reports how many attempts were made. When the
// budget is spent the last retryable error is returned.
func (r *Retrier) Complete(ctx context.Context, req models.CompletionRequest) (string, int, error) {
	attempts := 0
	operation := func() (string, error) {
		attempts++
		text, err := r.completer.Complete(ctx, req)
		if err == nil {
			return text, nil
		}
		if !isRetryable(err) {
			return "", backoff.Permanent(err)
		}
		return "", err
	}

	policy := backoff.WithContext(
		backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(r.maxAttempts-1)),
		ctx,
	)
	notify := func(err error, _ time.Duration) {
		log.Warn().
			Err(err).
			Int("attempt", attempts).
			Int("max_attempts", r.maxAttempts).
			Msg("🔁 Retryable completion failure, trying again")
	}

	text, err := backoff.RetryNotifyWithData(operation, policy, notify)
	if err != nil {
		var upErr *UpstreamError
		if !errors.As(err, &upErr) {
			// Cancelled between attempts.
			err = &UpstreamError{Kind: ErrFatal, Message: "completion aborted", Err: err}
		}
		return "", attempts, err
	}
	return text, attempts, nil
}

func isRetryable(err error) bool {
	return errors.Is(err, ErrRetryable)
}
