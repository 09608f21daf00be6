package quotagate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func queued(priority int, at time.Time) *queuedRequest {
	return &queuedRequest{priority: priority, enqueuedAt: at}
}

func TestRequestQueue_Order(t *testing.T) {
	q := newRequestQueue()
	base := time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

	late := queued(1, base.Add(time.Second))
	early := queued(1, base)
	urgent := queued(0, base.Add(time.Minute))
	sameA := queued(2, base)
	sameB := queued(2, base)

	for _, r := range []*queuedRequest{late, sameA, early, urgent, sameB} {
		q.push(r)
	}
	require.Equal(t, 5, q.len())

	head, ok := q.peek()
	require.True(t, ok)
	assert.Same(t, urgent, head)

	var got []*queuedRequest
	for {
		r, ok := q.pop()
		if !ok {
			break
		}
		got = append(got, r)
	}
	assert.Equal(t, []*queuedRequest{urgent, early, late, sameA, sameB}, got)
	assert.Zero(t, q.len())
}

func TestRequestQueue_Remove(t *testing.T) {
	q := newRequestQueue()
	now := time.Now()
	a, b, c := queued(1, now), queued(1, now), queued(1, now)
	q.push(a)
	q.push(b)
	q.push(c)

	assert.True(t, q.remove(b))
	assert.False(t, q.remove(b))
	assert.Equal(t, 2, q.len())

	assert.Equal(t, []*queuedRequest{a, c}, q.drain())
	assert.Zero(t, q.len())

	_, ok := q.peek()
	assert.False(t, ok)
}

func TestQueuedRequest_Expired(t *testing.T) {
	now := time.Now()
	r := &queuedRequest{enqueuedAt: now, timeout: time.Second}

	assert.False(t, r.expired(now.Add(time.Second)))
	assert.True(t, r.expired(now.Add(time.Second+time.Nanosecond)))
}

func TestFuture_ResolveOnce(t *testing.T) {
	f := newFuture("req-1")
	assert.Equal(t, StateQueued, f.State())

	select {
	case <-f.Done():
		t.Fatal("future resolved early")
	default:
	}

	f.resolve(StateCompleted, 42, nil)
	v, err := f.Wait(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 42, v)
	assert.Equal(t, StateCompleted, f.State())
	assert.True(t, f.State().Terminal())
	assert.Panics(t, func() { f.resolve(StateFailed, nil, nil) })
}

func TestRequestState_String(t *testing.T) {
	assert.Equal(t, "queued", StateQueued.String())
	assert.Equal(t, "timed_out", StateTimedOut.String())
	assert.Equal(t, "rejected", StateRejected.String())
	assert.Equal(t, "unknown", RequestState(99).String())
	assert.False(t, StateExecuting.Terminal())
}
