package quotagate

import (
	"context"
	"sync/atomic"
	"time"
)

// Operation is a deferred call to the upstream service.
type Operation func(ctx context.Context) (any, error)

// Reason explains why a fallback result was returned.
type Reason string

const (
	ReasonDailyExhausted    Reason = "DAILY_EXHAUSTED"
	ReasonUpstreamRateLimit Reason = "UPSTREAM_RATE_LIMIT"
)

// Result is the outcome of Execute.
type Result struct {
	Value      any
	IsFallback bool
	Reason     Reason
}

// ExecuteOptions configures a single Execute call.
type ExecuteOptions struct {
	// Priority is the caller's priority class (lower = more important).
	// It is reported to the Meter; immediate executions are not reordered.
	Priority int

	// Fallback produces a substitute result when quota is unavailable or
	// the upstream reports a rate limit. It never consumes quota.
	Fallback Operation

	// WaitForQuota makes Execute wait for the minute window to reset
	// instead of failing with ErrRateLimited.
	WaitForQuota bool
}

// RequestState is the lifecycle state of a queued request.
type RequestState int32

const (
	StateQueued RequestState = iota
	StateExecuting
	StateCompleted
	StateFailed
	StateTimedOut
	StateCanceled
	StateRejected
)

func (s RequestState) String() string {
	switch s {
	case StateQueued:
		return "queued"
	case StateExecuting:
		return "executing"
	case StateCompleted:
		return "completed"
	case StateFailed:
		return "failed"
	case StateTimedOut:
		return "timed_out"
	case StateCanceled:
		return "canceled"
	case StateRejected:
		return "rejected"
	default:
		return "unknown"
	}
}

// Terminal reports whether no further transition can happen.
func (s RequestState) Terminal() bool {
	return s != StateQueued && s != StateExecuting
}

// Future is the completion handle of a queued request. It is resolved
// exactly once, by the queue processor.
type Future struct {
	id    string
	state atomic.Int32
	done  chan struct{}
	value any
	err   error
}

func newFuture(id string) *Future {
	return &Future{id: id, done: make(chan struct{})}
}

// ID returns the request ID assigned at enqueue time.
func (f *Future) ID() string { return f.id }

// State returns the current lifecycle state of the request.
func (f *Future) State() RequestState { return RequestState(f.state.Load()) }

// Done returns a channel that is closed once the request is resolved.
func (f *Future) Done() <-chan struct{} { return f.done }

// Wait blocks until the request is resolved or ctx is done. Giving up on
// Wait does not dequeue the request; cancel the context passed to Enqueue
// for that.
func (f *Future) Wait(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) setState(s RequestState) { f.state.Store(int32(s)) }

// resolve must be called at most once; a second call panics on the closed
// channel.
func (f *Future) resolve(state RequestState, value any, err error) {
	f.value, f.err = value, err
	f.setState(state)
	close(f.done)
}

// queuedRequest is owned by the queue processor from enqueue until it is
// resolved.
type queuedRequest struct {
	ctx        context.Context
	op         Operation
	priority   int
	timeout    time.Duration
	enqueuedAt time.Time
	seq        uint64
	future     *Future

	// dequeued is closed when the request leaves the queue, releasing its
	// expiry watcher.
	dequeued chan struct{}
}

func (r *queuedRequest) expired(now time.Time) bool {
	return now.Sub(r.enqueuedAt) > r.timeout
}
