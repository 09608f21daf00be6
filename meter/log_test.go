package meter

import (
	"bytes"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ineyio/quotagate"
)

func newBufferedMeter() (*LogMeter, *bytes.Buffer) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	return NewLogMeter(logger), &buf
}

func lastRecord(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	var rec map[string]any
	require.NoError(t, json.Unmarshal(lines[len(lines)-1], &rec))
	return rec
}

func TestLogMeter_Admission(t *testing.T) {
	m, buf := newBufferedMeter()

	m.OnAdmission(quotagate.AdmissionEvent{
		RequestID: "req-1",
		Priority:  2,
		Outcome:   quotagate.OutcomeExecuted,
		Waited:    1500 * time.Millisecond,
		Duration:  20 * time.Millisecond,
	})
	rec := lastRecord(t, buf)
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "admission", rec["msg"])
	assert.Equal(t, "req-1", rec["request_id"])
	assert.Equal(t, "executed", rec["outcome"])
	assert.EqualValues(t, 1500, rec["waited_ms"])

	m.OnAdmission(quotagate.AdmissionEvent{
		RequestID: "req-2",
		Outcome:   quotagate.OutcomeFallback,
		Reason:    quotagate.ReasonDailyExhausted,
	})
	rec = lastRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "admission_fallback", rec["msg"])
	assert.Equal(t, "DAILY_EXHAUSTED", rec["reason"])

	m.OnAdmission(quotagate.AdmissionEvent{
		RequestID: "req-3",
		Outcome:   quotagate.OutcomeRejected,
		Error:     quotagate.ErrRateLimited,
	})
	rec = lastRecord(t, buf)
	assert.Equal(t, "admission_error", rec["msg"])
	assert.Equal(t, "rejected", rec["outcome"])
	assert.Equal(t, quotagate.ErrRateLimited.Error(), rec["error"])
}

func TestLogMeter_Queue(t *testing.T) {
	m, buf := newBufferedMeter()

	m.OnQueue(quotagate.QueueEvent{RequestID: "q-1", State: quotagate.StateQueued, QueueLength: 3})
	rec := lastRecord(t, buf)
	assert.Equal(t, "INFO", rec["level"])
	assert.Equal(t, "queue", rec["msg"])
	assert.Equal(t, "queued", rec["state"])
	assert.EqualValues(t, 3, rec["queue_length"])

	m.OnQueue(quotagate.QueueEvent{
		RequestID: "q-1",
		State:     quotagate.StateTimedOut,
		Error:     errors.New("expired"),
	})
	rec = lastRecord(t, buf)
	assert.Equal(t, "WARN", rec["level"])
	assert.Equal(t, "queue_error", rec["msg"])
	assert.Equal(t, "timed_out", rec["state"])
	assert.Equal(t, "expired", rec["error"])
}

func TestNoopMeter(t *testing.T) {
	var m quotagate.Meter = &NoopMeter{}
	m.OnAdmission(quotagate.AdmissionEvent{})
	m.OnQueue(quotagate.QueueEvent{})
}
