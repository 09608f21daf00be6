// Package prometheus provides a Prometheus-backed Meter for quotagate.
package prometheus

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ineyio/quotagate"
)

// Meter exports admission and queue events as Prometheus metrics.
type Meter struct {
	admissions  *prometheus.CounterVec
	waitSeconds *prometheus.HistogramVec
	queueEvents *prometheus.CounterVec
	queueLength prometheus.Gauge
	queueWait   prometheus.Histogram
}

var _ quotagate.Meter = (*Meter)(nil)

// Option configures Meter.
type Option func(*options)

type options struct {
	namespace string
	buckets   []float64
}

// WithNamespace sets the metric namespace (default "quotagate").
func WithNamespace(ns string) Option {
	return func(o *options) { o.namespace = ns }
}

// WithBuckets sets the histogram buckets, in seconds.
func WithBuckets(b []float64) Option {
	return func(o *options) { o.buckets = b }
}

// New creates a Meter and registers its collectors with reg.
func New(reg prometheus.Registerer, opts ...Option) (*Meter, error) {
	o := options{
		namespace: "quotagate",
		buckets:   []float64{.01, .05, .1, .5, 1, 5, 15, 30, 60},
	}
	for _, opt := range opts {
		opt(&o)
	}

	m := &Meter{
		admissions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "admissions_total",
				Help:      "Number of Execute calls by outcome, fallback reason and priority.",
			},
			[]string{"outcome", "reason", "priority"}),
		waitSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "admission_wait_seconds",
				Help:      "Time Execute calls spent waiting for the minute window.",
				Buckets:   o.buckets,
			},
			[]string{"outcome"}),
		queueEvents: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: o.namespace,
				Name:      "queue_events_total",
				Help:      "Number of queued request state transitions by state.",
			},
			[]string{"state"}),
		queueLength: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: o.namespace,
				Name:      "queue_length",
				Help:      "Number of requests waiting in the queue.",
			}),
		queueWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: o.namespace,
				Name:      "queue_wait_seconds",
				Help:      "Time from enqueue until a request left the queue.",
				Buckets:   o.buckets,
			}),
	}

	for _, c := range []prometheus.Collector{m.admissions, m.waitSeconds, m.queueEvents, m.queueLength, m.queueWait} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *Meter) OnAdmission(e quotagate.AdmissionEvent) {
	reason := string(e.Reason)
	if reason == "" {
		reason = "none"
	}
	m.admissions.WithLabelValues(string(e.Outcome), reason, strconv.Itoa(e.Priority)).Inc()
	m.waitSeconds.WithLabelValues(string(e.Outcome)).Observe(e.Waited.Seconds())
}

func (m *Meter) OnQueue(e quotagate.QueueEvent) {
	m.queueEvents.WithLabelValues(e.State.String()).Inc()
	m.queueLength.Set(float64(e.QueueLength))

	// Executing, timed out and canceled are the ways out of the queue.
	switch e.State {
	case quotagate.StateExecuting, quotagate.StateTimedOut, quotagate.StateCanceled:
		m.queueWait.Observe(e.Waited.Seconds())
	}
}
