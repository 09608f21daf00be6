package quotagate

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"k8s.io/utils/clock"
)

// Manager mediates all calls to one rate- and quota-limited upstream.
type Manager struct {
	mu  sync.RWMutex
	cfg Config

	tracker    *QuotaTracker
	clock      clock.Clock
	meter      Meter
	logger     *slog.Logger
	classifier RateLimitClassifier
	proc       *processor

	closed    atomic.Bool
	closeOnce sync.Once
}

// Option configures a Manager.
type Option func(*Manager)

// WithClock sets the clock used for windows, waits and queue timers.
func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithMeter sets the meter.
func WithMeter(mt Meter) Option {
	return func(m *Manager) { m.meter = mt }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithClassifier sets the classifier that recognises upstream rate-limit
// errors.
func WithClassifier(c RateLimitClassifier) Option {
	return func(m *Manager) { m.classifier = c }
}

// NewManager creates a Manager and starts its queue processor. Call Close to
// stop it.
func NewManager(cfg Config, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	m := &Manager{cfg: cfg}
	for _, opt := range opts {
		opt(m)
	}

	// Apply defaults after options.
	if m.clock == nil {
		m.clock = clock.RealClock{}
	}
	if m.meter == nil {
		m.meter = noopMeter{}
	}
	if m.logger == nil {
		m.logger = slog.Default()
	}
	if m.classifier == nil {
		m.classifier = DefaultClassifier{}
	}

	m.tracker = NewQuotaTracker(cfg, m.clock)
	m.proc = newProcessor(m)
	go m.proc.run()

	return m, nil
}

// Execute runs op now if quota allows.
//
// When the daily budget is gone it returns the fallback's result, or
// ErrQuotaExhausted without a fallback. When only the minute budget is gone
// it waits for the window to reset if opts.WaitForQuota is set, and fails
// with ErrRateLimited otherwise. If op fails with an upstream rate-limit
// error and a fallback is set, the fallback's result is returned instead.
// Exactly one unit of quota is consumed per call that reaches op.
func (m *Manager) Execute(ctx context.Context, op Operation, opts ExecuteOptions) (Result, error) {
	if op == nil {
		return Result{}, fmt.Errorf("quotagate: nil operation")
	}
	if m.closed.Load() {
		return Result{}, ErrClosed
	}

	ev := AdmissionEvent{RequestID: uuid.New().String(), Priority: opts.Priority}
	start := m.clock.Now()

	for {
		err := m.tracker.TryConsume()
		if err == nil {
			break
		}

		var qe *QuotaError
		if !errors.As(err, &qe) {
			return Result{}, err
		}

		if qe.Window == WindowDaily {
			ev.Waited = m.clock.Since(start)
			if opts.Fallback != nil {
				return m.fallback(ctx, opts, ReasonDailyExhausted, ev)
			}
			m.reject(ev, err)
			return Result{}, err
		}

		if !opts.WaitForQuota {
			ev.Waited = m.clock.Since(start)
			m.reject(ev, err)
			return Result{}, err
		}

		wait := min(qe.RetryAfter, minuteWindow)
		m.logger.Debug("minute quota exhausted, waiting",
			"request_id", ev.RequestID,
			"priority", opts.Priority,
			"wait", wait,
		)
		if err := m.sleep(ctx, wait); err != nil {
			ev.Waited = m.clock.Since(start)
			m.reject(ev, err)
			return Result{}, err
		}
	}
	ev.Waited = m.clock.Since(start)

	opStart := m.clock.Now()
	value, err := op(ctx)
	ev.Duration = m.clock.Since(opStart)

	if err != nil {
		if opts.Fallback != nil && m.classifier.IsRateLimit(err) {
			m.logger.Warn("upstream rate limited, using fallback",
				"request_id", ev.RequestID,
				"priority", opts.Priority,
				"error", err,
			)
			ev.Error = err
			return m.fallback(ctx, opts, ReasonUpstreamRateLimit, ev)
		}
		ev.Outcome = OutcomeFailed
		ev.Error = err
		m.meter.OnAdmission(ev)
		return Result{}, err
	}

	ev.Outcome = OutcomeExecuted
	m.meter.OnAdmission(ev)
	return Result{Value: value}, nil
}

// fallback runs opts.Fallback without consuming quota. Its error, if any, is
// returned as-is.
func (m *Manager) fallback(ctx context.Context, opts ExecuteOptions, reason Reason, ev AdmissionEvent) (Result, error) {
	fbStart := m.clock.Now()
	value, err := opts.Fallback(ctx)
	ev.Duration = m.clock.Since(fbStart)
	ev.Outcome = OutcomeFallback
	ev.Reason = reason
	if err != nil {
		ev.Error = err
	}
	m.meter.OnAdmission(ev)

	if reason == ReasonDailyExhausted {
		m.logger.Warn("daily quota exhausted, using fallback",
			"request_id", ev.RequestID,
			"priority", opts.Priority,
		)
	}

	if err != nil {
		return Result{}, err
	}
	return Result{Value: value, IsFallback: true, Reason: reason}, nil
}

func (m *Manager) reject(ev AdmissionEvent, err error) {
	ev.Outcome = OutcomeRejected
	ev.Error = err
	m.meter.OnAdmission(ev)
}

// sleep waits for d on the manager's clock. Returns ctx.Err() if ctx is done
// first.
func (m *Manager) sleep(ctx context.Context, d time.Duration) error {
	timer := m.clock.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Enqueue adds op to the priority queue and returns a Future that resolves
// with the operation's outcome once the processor runs it.
//
// Lower priority values are served first; equal priorities are served in
// enqueue order. If the queue is full Enqueue fails immediately with
// ErrQueueFull. If the request is still queued after timeout (or the
// configured QueueTimeout when timeout <= 0) the Future resolves with
// ErrQueueTimeout without running op. Canceling ctx while the request is
// queued resolves it with ctx.Err(); ctx is also passed to op.
func (m *Manager) Enqueue(ctx context.Context, op Operation, priority int, timeout time.Duration) (*Future, error) {
	if op == nil {
		return nil, fmt.Errorf("quotagate: nil operation")
	}
	if m.closed.Load() {
		return nil, ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r := &queuedRequest{
		ctx:      ctx,
		op:       op,
		priority: priority,
		timeout:  timeout,
		future:   newFuture(uuid.New().String()),
		dequeued: make(chan struct{}),
	}
	reply := make(chan error, 1)

	select {
	case m.proc.enqueueCh <- enqueueMsg{req: r, reply: reply}:
	case <-m.proc.stopped:
		return nil, ErrClosed
	}

	if err := <-reply; err != nil {
		return nil, err
	}
	return r.future, nil
}

// Status returns current quota usage and queue state. Windows whose reset
// time has passed are rolled over first.
func (m *Manager) Status() StatusReport {
	s := m.tracker.Status()
	s.QueueLength = int(m.proc.length.Load())
	s.Processing = m.proc.busy.Load()
	return s
}

// Recommendations derives advisories from the current status.
func (m *Manager) Recommendations() []Advisory {
	return Recommend(m.Status(), m.config().QueueBacklogThreshold)
}

// UpdateConfig applies a partial config update. Limits and thresholds change
// atomically; usage counters are kept. Requests already queued are not
// evicted when MaxQueueSize shrinks.
func (m *Manager) UpdateConfig(u ConfigUpdate) error {
	m.mu.Lock()
	next := m.cfg.apply(u)
	if err := next.Validate(); err != nil {
		m.mu.Unlock()
		return err
	}
	m.cfg = next
	m.tracker.setLimits(next)
	m.mu.Unlock()

	m.logger.Info("quota config updated",
		"daily_limit", next.DailyLimit,
		"minute_limit", next.MinuteLimit,
		"warning_threshold", next.WarningThreshold,
		"critical_threshold", next.CriticalThreshold,
		"max_queue_size", next.MaxQueueSize,
		"queue_timeout", next.QueueTimeout,
	)
	m.proc.kick()
	return nil
}

// Config returns a copy of the current configuration.
func (m *Manager) Config() Config {
	return m.config()
}

func (m *Manager) config() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg
}

// Close stops the queue processor. A request that is executing is allowed
// to finish; requests still queued resolve with ErrClosed. Close is safe to
// call more than once.
func (m *Manager) Close() error {
	m.closeOnce.Do(func() {
		m.closed.Store(true)
		close(m.proc.quit)
		<-m.proc.stopped
	})
	return nil
}
