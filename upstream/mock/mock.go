// Package mock provides a scripted fake upstream for tests and examples.
package mock

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ineyio/quotagate"
)

// Upstream is a mock upstream service. Its Call method has the shape of a
// quotagate.Operation.
type Upstream struct {
	latency      time.Duration
	failAfter    int
	callCount    atomic.Int64
	staticErr    error
	response     any
	responseFunc func(call int64) (any, error)

	mu     sync.Mutex
	labels []string
}

// Option configures a mock Upstream.
type Option func(*Upstream)

// New creates a mock upstream with the given options.
func New(opts ...Option) *Upstream {
	u := &Upstream{response: "Hello from mock upstream"}
	for _, opt := range opts {
		opt(u)
	}
	return u
}

// WithLatency adds simulated latency to each call.
func WithLatency(d time.Duration) Option {
	return func(u *Upstream) { u.latency = d }
}

// WithFailAfter makes the upstream report a rate limit after N successful
// calls.
func WithFailAfter(n int) Option {
	return func(u *Upstream) { u.failAfter = n }
}

// WithError makes the upstream always return this error.
func WithError(err error) Option {
	return func(u *Upstream) { u.staticErr = err }
}

// WithResponse sets the value returned on success.
func WithResponse(v any) Option {
	return func(u *Upstream) { u.response = v }
}

// WithResponseFunc sets a custom response function. call is 1-based.
func WithResponseFunc(fn func(call int64) (any, error)) Option {
	return func(u *Upstream) { u.responseFunc = fn }
}

// Call performs one upstream call.
func (u *Upstream) Call(ctx context.Context) (any, error) {
	if u.latency > 0 {
		select {
		case <-time.After(u.latency):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	count := u.callCount.Add(1)

	if u.staticErr != nil {
		return nil, u.staticErr
	}

	if u.failAfter > 0 && int(count) > u.failAfter {
		return nil, quotagate.ErrUpstreamRateLimited
	}

	if u.responseFunc != nil {
		return u.responseFunc(count)
	}

	return u.response, nil
}

// Labeled returns an operation that records label in Calls order before
// delegating to Call.
func (u *Upstream) Labeled(label string) quotagate.Operation {
	return func(ctx context.Context) (any, error) {
		u.mu.Lock()
		u.labels = append(u.labels, label)
		u.mu.Unlock()
		return u.Call(ctx)
	}
}

// Calls returns the labels of labeled calls in the order they ran.
func (u *Upstream) Calls() []string {
	u.mu.Lock()
	defer u.mu.Unlock()
	return append([]string(nil), u.labels...)
}

// CallCount returns the number of calls made to the upstream.
func (u *Upstream) CallCount() int64 { return u.callCount.Load() }
