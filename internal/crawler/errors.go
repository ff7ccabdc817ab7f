package crawler

import (
	"errors"
	"fmt"
)

// ErrJobNotFound reports a lookup for a job ID that was never submitted.
var ErrJobNotFound = errors.New("job not found")

// ErrResultNotReady reports a result lookup for a job that has not produced
// a synthesis result yet.
var ErrResultNotReady = errors.New("result not ready")

// InvalidSeedError reports a seed URL that cannot start a crawl. It is the
// only error the engine returns before any fetch is attempted.
type InvalidSeedError struct {
	URL    string
	Reason string
}

func (e *InvalidSeedError) Error() string {
	return fmt.Sprintf("invalid seed url %q: %s", e.URL, e.Reason)
}

// IsInvalidSeed reports whether err wraps an InvalidSeedError.
func IsInvalidSeed(err error) bool {
	var target *InvalidSeedError
	return errors.As(err, &target)
}

// RenderError reports a failed fetch or render of one page. The crawl
// recovers from it: the page is skipped and never retried.
type RenderError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *RenderError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("render %s: status %d", e.URL, e.StatusCode)
	}
	return fmt.Sprintf("render %s: %v", e.URL, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }
