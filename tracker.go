package quotagate

import (
	"sync"
	"time"

	"k8s.io/utils/clock"
)

// QuotaTracker counts consumption against a daily and a per-minute window.
//
// Windows roll over lazily: every public method first compares the clock
// against each window's reset time, so no background timer is needed.
type QuotaTracker struct {
	mu       sync.Mutex
	clock    clock.PassiveClock
	daily    quotaWindow
	minute   quotaWindow
	warning  int64
	critical int64
}

// NewQuotaTracker creates a tracker with the limits and thresholds from cfg.
// If clk is nil the real clock is used.
func NewQuotaTracker(cfg Config, clk clock.PassiveClock) *QuotaTracker {
	if clk == nil {
		clk = clock.RealClock{}
	}
	now := clk.Now()
	return &QuotaTracker{
		clock:    clk,
		daily:    newQuotaWindow(WindowDaily, cfg.DailyLimit, now),
		minute:   newQuotaWindow(WindowMinute, cfg.MinuteLimit, now),
		warning:  cfg.WarningThreshold,
		critical: cfg.CriticalThreshold,
	}
}

// Status returns a snapshot of both windows. QueueLength and Processing are
// left zero; Manager.Status fills them in.
func (t *QuotaTracker) Status() StatusReport {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.rolloverLocked(now)

	return StatusReport{
		Daily:   t.daily.status(now),
		Minute:  t.minute.status(now),
		Overall: t.overallLocked(),
	}
}

// CanAdmitNow reports whether both windows have budget left.
func (t *QuotaTracker) CanAdmitNow() bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked(t.clock.Now())
	return !t.daily.full() && !t.minute.full()
}

// RecordConsumption counts one executed request against both windows.
func (t *QuotaTracker) RecordConsumption() {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked(t.clock.Now())
	t.daily.count++
	t.minute.count++
}

// TryConsume checks both windows and, if both have budget, records one unit
// of consumption. Otherwise it returns a *QuotaError naming the window that
// refused; the daily window is checked first.
func (t *QuotaTracker) TryConsume() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	now := t.clock.Now()
	t.rolloverLocked(now)

	if t.daily.full() {
		return &QuotaError{Err: ErrQuotaExhausted, Window: WindowDaily, RetryAfter: t.daily.resetAt.Sub(now)}
	}
	if t.minute.full() {
		return &QuotaError{Err: ErrRateLimited, Window: WindowMinute, RetryAfter: t.minute.resetAt.Sub(now)}
	}

	t.daily.count++
	t.minute.count++
	return nil
}

// setLimits replaces limits and thresholds. Counters are untouched.
func (t *QuotaTracker) setLimits(cfg Config) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.rolloverLocked(t.clock.Now())
	t.daily.limit = cfg.DailyLimit
	t.minute.limit = cfg.MinuteLimit
	t.warning = cfg.WarningThreshold
	t.critical = cfg.CriticalThreshold
}

func (t *QuotaTracker) rolloverLocked(now time.Time) {
	t.daily.rollover(now)
	t.minute.rollover(now)
}

func (t *QuotaTracker) overallLocked() OverallStatus {
	remaining := t.daily.limit - t.daily.count
	switch {
	case remaining <= 0:
		return StatusExhausted
	case remaining <= t.critical:
		return StatusCritical
	case remaining <= t.warning:
		return StatusWarning
	default:
		return StatusOK
	}
}
