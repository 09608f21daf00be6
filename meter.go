package quotagate

import "time"

// Meter observes admission and queue events for monitoring/logging.
// Methods are called synchronously and must not block for long.
type Meter interface {
	// OnAdmission is called once per Execute call with its outcome.
	OnAdmission(event AdmissionEvent)

	// OnQueue is called on every state transition of a queued request.
	OnQueue(event QueueEvent)
}

// Outcome describes how an Execute call ended.
type Outcome string

const (
	OutcomeExecuted Outcome = "executed"
	OutcomeFailed   Outcome = "failed"
	OutcomeFallback Outcome = "fallback"
	OutcomeRejected Outcome = "rejected"
)

// AdmissionEvent describes one Execute call.
type AdmissionEvent struct {
	RequestID string
	Priority  int
	Outcome   Outcome
	Reason    Reason        // set for fallbacks
	Waited    time.Duration // time spent waiting for the minute window
	Duration  time.Duration // time spent in the operation or fallback
	Error     error
}

// QueueEvent describes a state transition of a queued request.
type QueueEvent struct {
	RequestID   string
	Priority    int
	State       RequestState
	QueueLength int
	Waited      time.Duration // time since enqueue
	Error       error
}

// noopMeter is a meter that does nothing.
type noopMeter struct{}

func (noopMeter) OnAdmission(AdmissionEvent) {}
func (noopMeter) OnQueue(QueueEvent)         {}
