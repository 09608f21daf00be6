package quotagate

import "time"

const minuteWindow = time.Minute

// Window identifies one of the two quota windows.
type Window int

const (
	WindowDaily Window = iota
	WindowMinute
)

func (w Window) String() string {
	switch w {
	case WindowDaily:
		return "daily"
	case WindowMinute:
		return "minute"
	default:
		return "unknown"
	}
}

// quotaWindow is a counting window with a hard limit. It is not safe for
// concurrent use; QuotaTracker guards it.
type quotaWindow struct {
	kind    Window
	count   int64
	limit   int64
	resetAt time.Time
}

func newQuotaWindow(kind Window, limit int64, now time.Time) quotaWindow {
	w := quotaWindow{kind: kind, limit: limit}
	switch kind {
	case WindowDaily:
		w.resetAt = nextMidnightUTC(now)
	default:
		w.resetAt = now.Add(minuteWindow)
	}
	return w
}

// rollover zeroes the counter once resetAt has passed and moves resetAt to
// the next boundary after now. Returns true if a reset happened.
func (w *quotaWindow) rollover(now time.Time) bool {
	if now.Before(w.resetAt) {
		return false
	}
	w.count = 0
	switch w.kind {
	case WindowDaily:
		w.resetAt = nextMidnightUTC(now)
	default:
		// Skip whole windows that elapsed without any access.
		missed := now.Sub(w.resetAt) / minuteWindow
		w.resetAt = w.resetAt.Add((missed + 1) * minuteWindow)
	}
	return true
}

func (w *quotaWindow) remaining() int64 {
	return max(w.limit-w.count, 0)
}

func (w *quotaWindow) full() bool {
	return w.count >= w.limit
}

func (w *quotaWindow) status(now time.Time) WindowStatus {
	return WindowStatus{
		Used:      w.count,
		Limit:     w.limit,
		Remaining: w.remaining(),
		ResetsIn:  w.resetAt.Sub(now),
		ResetAt:   w.resetAt,
	}
}

func nextMidnightUTC(now time.Time) time.Time {
	now = now.UTC()
	return time.Date(now.Year(), now.Month(), now.Day()+1, 0, 0, 0, 0, time.UTC)
}
