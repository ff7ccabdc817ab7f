// Package llm abstracts the text generation backend used by the synthesis
// pipeline.
package llm

import (
	"context"
	"errors"
	"fmt"
)

// ErrMissingAPIKey indicates no generation credential was configured. The
// pipeline treats this as "skip synthesis", not as a job failure.
var ErrMissingAPIKey = errors.New("generation api key not configured")

// Params are the per-call generation knobs. Zero values fall back to the
// client's configured defaults.
type Params struct {
	Model       string
	MaxTokens   int
	Temperature *float64
	System      string
}

// Client produces a completion for a prompt.
type Client interface {
	Generate(ctx context.Context, params Params, prompt string) (string, error)
	Close()
}

// RetryableError indicates a transient failure that can be retried.
type RetryableError struct {
	StatusCode int
	Message    string
}

func (e *RetryableError) Error() string {
	return fmt.Sprintf("retryable error (status %d): %s", e.StatusCode, truncate(e.Message, 200))
}

// IsRetryable reports whether err is worth retrying with backoff.
func IsRetryable(err error) bool {
	var target *RetryableError
	return errors.As(err, &target)
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
