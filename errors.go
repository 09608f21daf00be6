package quotagate

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors.
var (
	ErrQuotaExhausted      = errors.New("quotagate: daily quota exhausted")
	ErrRateLimited         = errors.New("quotagate: minute quota exhausted")
	ErrQueueFull           = errors.New("quotagate: queue is full")
	ErrQueueTimeout        = errors.New("quotagate: queued request timed out")
	ErrClosed              = errors.New("quotagate: manager closed")
	ErrUpstreamRateLimited = errors.New("quotagate: rate limited by upstream")
)

// QuotaError wraps ErrQuotaExhausted or ErrRateLimited with the window that
// refused admission and the time until that window resets.
type QuotaError struct {
	Err        error
	Window     Window
	RetryAfter time.Duration
}

func (e *QuotaError) Error() string {
	return fmt.Sprintf("%v (window=%s retry_after=%s)", e.Err, e.Window, e.RetryAfter)
}

func (e *QuotaError) Unwrap() error {
	return e.Err
}

// RetryAfter reports how long the caller should wait before trying again,
// if err carries that information.
func RetryAfter(err error) (time.Duration, bool) {
	var qe *QuotaError
	if errors.As(err, &qe) {
		return qe.RetryAfter, true
	}
	return 0, false
}

// IsRetryable returns true if the error is a transient budget or queue
// condition that the caller may retry later.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrQueueFull) ||
		errors.Is(err, ErrQueueTimeout) ||
		errors.Is(err, ErrUpstreamRateLimited)
}
