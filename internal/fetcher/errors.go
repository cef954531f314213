package fetcher

import (
	"errors"
	"fmt"
)

// ErrFetchFailed matches every *Error via errors.Is.
var ErrFetchFailed = errors.New("fetch failed")

// Error is returned once all attempts for a request are exhausted or the
// failure is not retryable.
type Error struct {
	URL        string
	StatusCode int
	Attempts   int
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: status %d after %d attempt(s): %v", e.URL, e.StatusCode, e.Attempts, e.Err)
	}
	return fmt.Sprintf("fetch %s: after %d attempt(s): %v", e.URL, e.Attempts, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{ErrFetchFailed, e.Err}
}
