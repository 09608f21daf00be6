package quotagate

import (
	"context"
	"time"
)

// TypedOptions is ExecuteOptions with a typed fallback.
type TypedOptions[T any] struct {
	Priority     int
	Fallback     func(ctx context.Context) (T, error)
	WaitForQuota bool
}

// TypedResult is Result with a typed value.
type TypedResult[T any] struct {
	Value      T
	IsFallback bool
	Reason     Reason
}

// Execute is the typed form of Manager.Execute.
func Execute[T any](ctx context.Context, m *Manager, op func(ctx context.Context) (T, error), opts TypedOptions[T]) (TypedResult[T], error) {
	untyped := ExecuteOptions{Priority: opts.Priority, WaitForQuota: opts.WaitForQuota}
	if opts.Fallback != nil {
		untyped.Fallback = erase(opts.Fallback)
	}

	res, err := m.Execute(ctx, erase(op), untyped)
	if err != nil {
		return TypedResult[T]{}, err
	}
	value, _ := res.Value.(T)
	return TypedResult[T]{Value: value, IsFallback: res.IsFallback, Reason: res.Reason}, nil
}

// TypedFuture is a Future with a typed value.
type TypedFuture[T any] struct {
	*Future
}

// Wait blocks until the request is resolved or ctx is done.
func (f TypedFuture[T]) Wait(ctx context.Context) (T, error) {
	var zero T
	v, err := f.Future.Wait(ctx)
	if err != nil {
		return zero, err
	}
	value, _ := v.(T)
	return value, nil
}

// Enqueue is the typed form of Manager.Enqueue.
func Enqueue[T any](ctx context.Context, m *Manager, op func(ctx context.Context) (T, error), priority int, timeout time.Duration) (TypedFuture[T], error) {
	f, err := m.Enqueue(ctx, erase(op), priority, timeout)
	if err != nil {
		return TypedFuture[T]{}, err
	}
	return TypedFuture[T]{Future: f}, nil
}

func erase[T any](op func(ctx context.Context) (T, error)) Operation {
	if op == nil {
		return nil
	}
	return func(ctx context.Context) (any, error) {
		return op(ctx)
	}
}
