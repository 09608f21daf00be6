package meter

import (
	"log/slog"

	"github.com/ineyio/quotagate"
)

// LogMeter logs admission and queue events using slog.
type LogMeter struct {
	Logger *slog.Logger
}

var _ quotagate.Meter = (*LogMeter)(nil)

// NewLogMeter creates a LogMeter with the given logger.
// If logger is nil, slog.Default() is used.
func NewLogMeter(logger *slog.Logger) *LogMeter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMeter{Logger: logger}
}

func (m *LogMeter) OnAdmission(e quotagate.AdmissionEvent) {
	switch e.Outcome {
	case quotagate.OutcomeExecuted:
		m.Logger.Info("admission",
			"request_id", e.RequestID,
			"priority", e.Priority,
			"outcome", string(e.Outcome),
			"waited_ms", e.Waited.Milliseconds(),
			"duration_ms", e.Duration.Milliseconds(),
		)
	case quotagate.OutcomeFallback:
		m.Logger.Warn("admission_fallback",
			"request_id", e.RequestID,
			"priority", e.Priority,
			"reason", string(e.Reason),
			"duration_ms", e.Duration.Milliseconds(),
			"error", e.Error,
		)
	default:
		m.Logger.Warn("admission_error",
			"request_id", e.RequestID,
			"priority", e.Priority,
			"outcome", string(e.Outcome),
			"waited_ms", e.Waited.Milliseconds(),
			"error", e.Error,
		)
	}
}

func (m *LogMeter) OnQueue(e quotagate.QueueEvent) {
	switch e.State {
	case quotagate.StateFailed, quotagate.StateTimedOut, quotagate.StateRejected:
		m.Logger.Warn("queue_error",
			"request_id", e.RequestID,
			"priority", e.Priority,
			"state", e.State.String(),
			"queue_length", e.QueueLength,
			"waited_ms", e.Waited.Milliseconds(),
			"error", e.Error,
		)
	default:
		m.Logger.Info("queue",
			"request_id", e.RequestID,
			"priority", e.Priority,
			"state", e.State.String(),
			"queue_length", e.QueueLength,
			"waited_ms", e.Waited.Milliseconds(),
		)
	}
}
