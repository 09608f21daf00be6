package prometheus_test

import (
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quotagate"
	qgprom "github.com/ineyio/quotagate/meter/prometheus"
)

func TestMeter_CountsAdmissions(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := qgprom.New(reg)
	require.NoError(t, err)

	m.OnAdmission(quotagate.AdmissionEvent{Priority: 1, Outcome: quotagate.OutcomeExecuted})
	m.OnAdmission(quotagate.AdmissionEvent{Priority: 1, Outcome: quotagate.OutcomeExecuted})
	m.OnAdmission(quotagate.AdmissionEvent{
		Priority: 2,
		Outcome:  quotagate.OutcomeFallback,
		Reason:   quotagate.ReasonDailyExhausted,
	})

	expected := `
# HELP quotagate_admissions_total Number of Execute calls by outcome, fallback reason and priority.
# TYPE quotagate_admissions_total counter
quotagate_admissions_total{outcome="executed",priority="1",reason="none"} 2
quotagate_admissions_total{outcome="fallback",priority="2",reason="DAILY_EXHAUSTED"} 1
`
	err = testutil.GatherAndCompare(reg, strings.NewReader(expected), "quotagate_admissions_total")
	assert.NoError(t, err)
}

func TestMeter_QueueEvents(t *testing.T) {
	reg := prometheus.NewRegistry()
	m, err := qgprom.New(reg, qgprom.WithNamespace("test"))
	require.NoError(t, err)

	m.OnQueue(quotagate.QueueEvent{State: quotagate.StateQueued, QueueLength: 3})
	m.OnQueue(quotagate.QueueEvent{State: quotagate.StateExecuting, QueueLength: 2, Waited: 2 * time.Second})
	m.OnQueue(quotagate.QueueEvent{State: quotagate.StateTimedOut, QueueLength: 1, Waited: 30 * time.Second})

	n, err := testutil.GatherAndCount(reg, "test_queue_wait_seconds")
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	families, err := reg.Gather()
	require.NoError(t, err)

	var found bool
	for _, mf := range families {
		if mf.GetName() == "test_queue_length" {
			found = true
			assert.Equal(t, 1.0, mf.GetMetric()[0].GetGauge().GetValue())
		}
		if mf.GetName() == "test_queue_wait_seconds" {
			assert.Equal(t, uint64(2), mf.GetMetric()[0].GetHistogram().GetSampleCount())
		}
	}
	assert.True(t, found)
}

func TestNew_DuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := qgprom.New(reg)
	require.NoError(t, err)

	_, err = qgprom.New(reg)
	assert.Error(t, err)
}
