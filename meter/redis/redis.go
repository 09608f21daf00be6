// Package redis provides a Redis-backed Meter for quotagate.
//
// The meter mirrors admission outcomes and queue transitions into one Redis
// hash per UTC day, so several processes can be charted side by side. It is
// a reporting sink only: admission decisions never read from Redis.
package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ineyio/quotagate"
)

const dayLayout = "2006-01-02"

// Meter is a Redis-backed quotagate.Meter.
type Meter struct {
	client    goredis.Cmdable
	keyPrefix string
	ttl       time.Duration
	timeout   time.Duration
	logger    *slog.Logger
	now       func() time.Time
}

var _ quotagate.Meter = (*Meter)(nil)

// Option configures Meter.
type Option func(*Meter)

// WithKeyPrefix sets the Redis key prefix (default "quotagate:usage:").
func WithKeyPrefix(prefix string) Option {
	return func(m *Meter) { m.keyPrefix = prefix }
}

// WithTTL sets how long daily hashes are kept (default 7 days).
func WithTTL(ttl time.Duration) Option {
	return func(m *Meter) { m.ttl = ttl }
}

// WithTimeout bounds each Redis write (default 250ms).
func WithTimeout(d time.Duration) Option {
	return func(m *Meter) { m.timeout = d }
}

// WithLogger sets the logger used to report write failures.
func WithLogger(l *slog.Logger) Option {
	return func(m *Meter) { m.logger = l }
}

// New creates a Redis-backed meter.
// The client must be a connected *goredis.Client or *goredis.ClusterClient.
func New(client goredis.Cmdable, opts ...Option) *Meter {
	m := &Meter{
		client:    client,
		keyPrefix: "quotagate:usage:",
		ttl:       7 * 24 * time.Hour,
		timeout:   250 * time.Millisecond,
		logger:    slog.Default(),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

func (m *Meter) admissionsKey(day time.Time) string {
	return m.keyPrefix + "admissions:" + day.UTC().Format(dayLayout)
}

func (m *Meter) queueKey(day time.Time) string {
	return m.keyPrefix + "queue:" + day.UTC().Format(dayLayout)
}

func (m *Meter) OnAdmission(e quotagate.AdmissionEvent) {
	field := string(e.Outcome)
	if e.Reason != "" {
		field += ":" + string(e.Reason)
	}
	m.incr(m.admissionsKey(m.now()), field)
}

func (m *Meter) OnQueue(e quotagate.QueueEvent) {
	m.incr(m.queueKey(m.now()), e.State.String())
}

func (m *Meter) incr(key, field string) {
	ctx, cancel := context.WithTimeout(context.Background(), m.timeout)
	defer cancel()

	pipe := m.client.TxPipeline()
	pipe.HIncrBy(ctx, key, field, 1)
	pipe.Expire(ctx, key, m.ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		m.logger.Warn("quotagate: redis meter write failed", "key", key, "field", field, "error", err)
	}
}

// Admissions returns the admission counters recorded for the given day.
// Fields are outcomes, suffixed with ":REASON" for fallbacks.
func (m *Meter) Admissions(ctx context.Context, day time.Time) (map[string]int64, error) {
	return m.counts(ctx, m.admissionsKey(day))
}

// QueueTransitions returns the queue state counters recorded for the given
// day.
func (m *Meter) QueueTransitions(ctx context.Context, day time.Time) (map[string]int64, error) {
	return m.counts(ctx, m.queueKey(day))
}

func (m *Meter) counts(ctx context.Context, key string) (map[string]int64, error) {
	raw, err := m.client.HGetAll(ctx, key).Result()
	if err != nil {
		return nil, err
	}
	out := make(map[string]int64, len(raw))
	for k, v := range raw {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("quotagate: redis meter: bad counter %q in %s: %w", v, key, err)
		}
		out[k] = n
	}
	return out, nil
}
