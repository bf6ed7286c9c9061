package credentials

import (
	"errors"
	"fmt"
	"time"
)

// ErrClosed is returned by operations on credentials after Close. Teardown
// is explicit; closed credentials never silently no-op.
var ErrClosed = errors.New("credentials: closed")

// ThrottleError reports that the identity provider is throttling this
// credential, either directly (HTTP 429 / temporarily_unavailable) or
// indirectly (another caller holds the refresh slot past the wait
// timeout). RetryAfter carries the most recent server-supplied hint,
// clamped by the retry policy, so outer loops back off instead of
// stampeding the provider.
type ThrottleError struct {
	RetryAfter time.Duration
	Err        error
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("credentials: throttled, retry after %s: %v", e.RetryAfter, e.Err)
}

func (e *ThrottleError) Unwrap() error { return e.Err }
