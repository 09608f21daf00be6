package quotagate

import "github.com/google/btree"

const queueDegree = 8

// requestQueue orders pending requests by priority, then enqueue time, then
// insertion sequence. It is owned by the processor goroutine and is not safe
// for concurrent use.
type requestQueue struct {
	tree *btree.BTreeG[*queuedRequest]
	seq  uint64
}

func newRequestQueue() *requestQueue {
	return &requestQueue{tree: btree.NewG(queueDegree, lessRequest)}
}

func lessRequest(a, b *queuedRequest) bool {
	if a.priority != b.priority {
		return a.priority < b.priority
	}
	if !a.enqueuedAt.Equal(b.enqueuedAt) {
		return a.enqueuedAt.Before(b.enqueuedAt)
	}
	return a.seq < b.seq
}

func (q *requestQueue) push(r *queuedRequest) {
	q.seq++
	r.seq = q.seq
	q.tree.ReplaceOrInsert(r)
}

func (q *requestQueue) peek() (*queuedRequest, bool) {
	return q.tree.Min()
}

func (q *requestQueue) pop() (*queuedRequest, bool) {
	return q.tree.DeleteMin()
}

// remove deletes r and reports whether it was still queued.
func (q *requestQueue) remove(r *queuedRequest) bool {
	_, ok := q.tree.Delete(r)
	return ok
}

func (q *requestQueue) len() int {
	return q.tree.Len()
}

// drain removes and returns every request in queue order.
func (q *requestQueue) drain() []*queuedRequest {
	out := make([]*queuedRequest, 0, q.tree.Len())
	q.tree.Ascend(func(r *queuedRequest) bool {
		out = append(out, r)
		return true
	})
	q.tree.Clear(false)
	return out
}
