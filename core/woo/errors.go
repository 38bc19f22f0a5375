package woo

import (
	"fmt"
	"time"
)

// ThrottleError reports that the source rejected a call for exceeding its
// rate limit. RetryAfter carries the server-suggested wait, or a default
// when the response did not include one.
type ThrottleError struct {
	RetryAfter time.Duration
	Cause      error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("throttled: retry after %v (cause: %v)", e.RetryAfter, e.Cause)
}

func (e *ThrottleError) Unwrap() error { return e.Cause }

// TransientError reports a failure that is expected to resolve on retry,
// such as a network error or a 5xx response.
type TransientError struct {
	Cause error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient source error: %v", e.Cause)
}

func (e *TransientError) Unwrap() error { return e.Cause }

// FatalError reports a client-side failure (bad auth, bad request) that
// retrying cannot fix.
type FatalError struct {
	Status int
	Body   string
}

func (e *FatalError) Error() string {
	return fmt.Sprintf("fatal source error: status %d: %s", e.Status, e.Body)
}
