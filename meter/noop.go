package meter

import "github.com/ineyio/quotagate"

// NoopMeter is a meter that does nothing.
type NoopMeter struct{}

var _ quotagate.Meter = (*NoopMeter)(nil)

func (m *NoopMeter) OnAdmission(quotagate.AdmissionEvent) {}
func (m *NoopMeter) OnQueue(quotagate.QueueEvent)         {}
