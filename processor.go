package quotagate

import (
	"fmt"
	"sync/atomic"
	"time"

	"k8s.io/utils/clock"
)

type enqueueMsg struct {
	req   *queuedRequest
	reply chan error
}

type evictMsg struct {
	req   *queuedRequest
	state RequestState
	err   error
}

type execResult struct {
	req   *queuedRequest
	value any
	err   error
}

// processor is the single goroutine that owns the request queue. Enqueues,
// evictions and execution results arrive as messages, so at most one drain
// is ever in progress and at most one queued request executes at a time.
type processor struct {
	m *Manager

	enqueueCh chan enqueueMsg
	evictCh   chan evictMsg
	doneCh    chan execResult
	kickCh    chan struct{}
	quit      chan struct{}
	stopped   chan struct{}

	// Owned by run.
	queue     *requestQueue
	executing *queuedRequest
	pacing    clock.Timer
	resume    clock.Timer

	// Mirrors for Status, written only by run.
	length atomic.Int64
	busy   atomic.Bool
}

func newProcessor(m *Manager) *processor {
	return &processor{
		m:         m,
		enqueueCh: make(chan enqueueMsg),
		evictCh:   make(chan evictMsg),
		doneCh:    make(chan execResult, 1),
		kickCh:    make(chan struct{}, 1),
		quit:      make(chan struct{}),
		stopped:   make(chan struct{}),
		queue:     newRequestQueue(),
	}
}

func (p *processor) run() {
	defer close(p.stopped)

	for {
		select {
		case msg := <-p.enqueueCh:
			p.accept(msg)
		case ev := <-p.evictCh:
			p.evict(ev)
		case res := <-p.doneCh:
			p.complete(res)
		case <-timerC(p.pacing):
			p.pacing = nil
		case <-timerC(p.resume):
			p.resume = nil
		case <-p.kickCh:
		case <-p.quit:
			p.shutdown()
			return
		}
		p.drain()
	}
}

// kick asks the processor to re-check quota, e.g. after limits changed.
func (p *processor) kick() {
	select {
	case p.kickCh <- struct{}{}:
	default:
	}
}

func (p *processor) accept(msg enqueueMsg) {
	cfg := p.m.config()
	r := msg.req

	if p.queue.len() >= cfg.MaxQueueSize {
		r.future.setState(StateRejected)
		p.m.meter.OnQueue(QueueEvent{
			RequestID:   r.future.id,
			Priority:    r.priority,
			State:       StateRejected,
			QueueLength: p.queue.len(),
			Error:       ErrQueueFull,
		})
		p.m.logger.Warn("queue full, request rejected",
			"request_id", r.future.id,
			"priority", r.priority,
			"max_queue_size", cfg.MaxQueueSize,
		)
		msg.reply <- ErrQueueFull
		return
	}

	if r.timeout <= 0 {
		r.timeout = cfg.QueueTimeout
	}
	r.enqueuedAt = p.m.clock.Now()
	p.queue.push(r)
	p.length.Store(int64(p.queue.len()))

	// The timer is created before replying so that a clock advanced right
	// after Enqueue returns still fires it.
	go p.watch(r, p.m.clock.NewTimer(r.timeout))

	p.observe(r, StateQueued, nil)
	msg.reply <- nil
}

// watch evicts r when its timeout fires or its context is canceled, unless
// it leaves the queue first.
func (p *processor) watch(r *queuedRequest, timer clock.Timer) {
	defer timer.Stop()

	var ev evictMsg
	select {
	case <-timer.C():
		ev = evictMsg{req: r, state: StateTimedOut, err: timeoutError(r)}
	case <-r.ctx.Done():
		ev = evictMsg{req: r, state: StateCanceled, err: r.ctx.Err()}
	case <-r.dequeued:
		return
	}

	select {
	case p.evictCh <- ev:
	case <-r.dequeued:
	case <-p.stopped:
	}
}

func (p *processor) evict(ev evictMsg) {
	r := ev.req
	if r.future.State() != StateQueued || !p.queue.remove(r) {
		return
	}
	p.dequeue(r)
	p.finish(r, ev.state, nil, ev.err)
}

// drain starts the next queued request if quota allows. Expired and
// canceled requests at the front are resolved without consuming quota.
func (p *processor) drain() {
	if p.executing != nil || p.pacing != nil {
		return
	}

	for {
		r, ok := p.queue.peek()
		if !ok {
			return
		}

		if r.expired(p.m.clock.Now()) {
			p.queue.pop()
			p.dequeue(r)
			p.finish(r, StateTimedOut, nil, timeoutError(r))
			continue
		}
		if err := r.ctx.Err(); err != nil {
			p.queue.pop()
			p.dequeue(r)
			p.finish(r, StateCanceled, nil, err)
			continue
		}

		if err := p.m.tracker.TryConsume(); err != nil {
			p.scheduleResume()
			return
		}

		p.queue.pop()
		p.dequeue(r)
		p.start(r)
		return
	}
}

func (p *processor) start(r *queuedRequest) {
	p.executing = r
	p.busy.Store(true)
	r.future.setState(StateExecuting)
	p.observe(r, StateExecuting, nil)

	go func() {
		value, err := r.op(r.ctx)
		p.doneCh <- execResult{req: r, value: value, err: err}
	}()
}

func (p *processor) complete(res execResult) {
	p.settle(res)
	if d := p.m.config().PacingDelay; d > 0 {
		p.pacing = p.m.clock.NewTimer(d)
	}
}

func (p *processor) settle(res execResult) {
	p.executing = nil
	p.busy.Store(false)

	state := StateCompleted
	if res.err != nil {
		state = StateFailed
	}
	p.finish(res.req, state, res.value, res.err)
}

// scheduleResume arms a single wake-up for when the minute window resets.
func (p *processor) scheduleResume() {
	if p.resume != nil {
		return
	}
	st := p.m.tracker.Status()
	d := min(st.Minute.ResetsIn, minuteWindow) + p.m.config().ResumeBuffer
	p.resume = p.m.clock.NewTimer(d)

	p.m.logger.Debug("quota unavailable, queue paused",
		"resume_in", d,
		"queue_length", p.queue.len(),
		"overall", st.Overall.String(),
	)
}

func (p *processor) shutdown() {
	stopTimer(p.pacing)
	stopTimer(p.resume)
	p.pacing, p.resume = nil, nil

	if p.executing != nil {
		p.settle(<-p.doneCh)
	}
	for _, r := range p.queue.drain() {
		close(r.dequeued)
		p.finish(r, StateCanceled, nil, ErrClosed)
	}
	p.length.Store(0)
}

func (p *processor) dequeue(r *queuedRequest) {
	close(r.dequeued)
	p.length.Store(int64(p.queue.len()))
}

func (p *processor) finish(r *queuedRequest, state RequestState, value any, err error) {
	r.future.resolve(state, value, err)
	p.observe(r, state, err)
}

func (p *processor) observe(r *queuedRequest, state RequestState, err error) {
	waited := p.m.clock.Since(r.enqueuedAt)
	p.m.meter.OnQueue(QueueEvent{
		RequestID:   r.future.id,
		Priority:    r.priority,
		State:       state,
		QueueLength: p.queue.len(),
		Waited:      waited,
		Error:       err,
	})
	p.m.logger.Debug("queued request",
		"request_id", r.future.id,
		"priority", r.priority,
		"state", state.String(),
		"waited", waited,
	)
}

func timeoutError(r *queuedRequest) error {
	return fmt.Errorf("%w after %s", ErrQueueTimeout, r.timeout)
}

func timerC(t clock.Timer) <-chan time.Time {
	if t == nil {
		return nil
	}
	return t.C()
}

func stopTimer(t clock.Timer) {
	if t != nil {
		t.Stop()
	}
}
