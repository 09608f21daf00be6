package quotagate

import (
	"fmt"
	"time"
)

// OverallStatus summarizes how much of the daily budget is left.
type OverallStatus int

const (
	StatusOK OverallStatus = iota
	StatusWarning
	StatusCritical
	StatusExhausted
)

func (s OverallStatus) String() string {
	switch s {
	case StatusOK:
		return "OK"
	case StatusWarning:
		return "WARNING"
	case StatusCritical:
		return "CRITICAL"
	case StatusExhausted:
		return "EXHAUSTED"
	default:
		return "UNKNOWN"
	}
}

// WindowStatus describes one quota window.
type WindowStatus struct {
	Used      int64         `json:"used"`
	Limit     int64         `json:"limit"`
	Remaining int64         `json:"remaining"`
	ResetsIn  time.Duration `json:"resets_in"`
	ResetAt   time.Time     `json:"reset_at"`
}

// StatusReport is a point-in-time view of quota and queue state.
type StatusReport struct {
	Daily       WindowStatus  `json:"daily"`
	Minute      WindowStatus  `json:"minute"`
	Overall     OverallStatus `json:"overall"`
	QueueLength int           `json:"queue_length"`
	Processing  bool          `json:"processing"`
}

// AdvisoryLevel ranks an Advisory.
type AdvisoryLevel string

const (
	AdvisoryInfo     AdvisoryLevel = "info"
	AdvisoryWarning  AdvisoryLevel = "warning"
	AdvisoryCritical AdvisoryLevel = "critical"
)

// Advisory is a human-readable recommendation derived from a StatusReport.
type Advisory struct {
	Level   AdvisoryLevel `json:"level"`
	Message string        `json:"message"`
}

// Recommend derives advisories from a status report. backlogThreshold is the
// queue length above which a backlog advisory is emitted. A healthy report
// yields no advisories.
func Recommend(s StatusReport, backlogThreshold int) []Advisory {
	var out []Advisory

	switch s.Overall {
	case StatusExhausted:
		out = append(out, Advisory{
			Level:   AdvisoryCritical,
			Message: fmt.Sprintf("daily quota exhausted, using fallbacks (resets in %s)", s.Daily.ResetsIn.Round(time.Minute)),
		})
	case StatusCritical:
		out = append(out, Advisory{
			Level:   AdvisoryCritical,
			Message: fmt.Sprintf("daily quota critical: %d of %d requests remaining, reserve them for high-priority work", s.Daily.Remaining, s.Daily.Limit),
		})
	case StatusWarning:
		out = append(out, Advisory{
			Level:   AdvisoryWarning,
			Message: fmt.Sprintf("daily quota running low: %d of %d requests remaining", s.Daily.Remaining, s.Daily.Limit),
		})
	}

	if s.Overall != StatusExhausted && s.Minute.Remaining == 0 {
		out = append(out, Advisory{
			Level:   AdvisoryWarning,
			Message: fmt.Sprintf("minute rate limit reached, new requests wait or queue for %s", s.Minute.ResetsIn.Round(time.Second)),
		})
	}

	if s.QueueLength > backlogThreshold {
		out = append(out, Advisory{
			Level:   AdvisoryWarning,
			Message: fmt.Sprintf("queue backlog high: %d requests pending", s.QueueLength),
		})
	}

	return out
}
