package quotagate

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds the limits and queue settings of a Manager.
type Config struct {
	DailyLimit        int64 `yaml:"daily_limit"`
	MinuteLimit       int64 `yaml:"minute_limit"`
	WarningThreshold  int64 `yaml:"warning_threshold"`
	CriticalThreshold int64 `yaml:"critical_threshold"`

	MaxQueueSize          int           `yaml:"max_queue_size"`
	QueueTimeout          time.Duration `yaml:"queue_timeout"`
	QueueBacklogThreshold int           `yaml:"queue_backlog_threshold"`

	// PacingDelay is the pause between two queued executions.
	PacingDelay time.Duration `yaml:"pacing_delay"`
	// ResumeBuffer is added to the minute reset when the queue processor
	// schedules its next attempt.
	ResumeBuffer time.Duration `yaml:"resume_buffer"`
}

// DefaultConfig returns limits matching a typical free-tier generative AI
// key: 1500 requests per day and 15 per minute.
func DefaultConfig() Config {
	return Config{
		DailyLimit:            1500,
		MinuteLimit:           15,
		WarningThreshold:      150,
		CriticalThreshold:     30,
		MaxQueueSize:          100,
		QueueTimeout:          30 * time.Second,
		QueueBacklogThreshold: 20,
		PacingDelay:           100 * time.Millisecond,
		ResumeBuffer:          100 * time.Millisecond,
	}
}

// LoadConfig reads a YAML config file on top of DefaultConfig.
// Environment variables in the format ${VAR} are expanded before parsing.
func LoadConfig(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("quotagate: read config: %w", err)
	}

	expanded := os.ExpandEnv(string(data))

	cfg := DefaultConfig()
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return Config{}, fmt.Errorf("quotagate: parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

// Validate checks limits and thresholds for consistency.
func (c Config) Validate() error {
	if c.DailyLimit <= 0 {
		return fmt.Errorf("quotagate: config: daily_limit must be positive, got %d", c.DailyLimit)
	}
	if c.MinuteLimit <= 0 {
		return fmt.Errorf("quotagate: config: minute_limit must be positive, got %d", c.MinuteLimit)
	}
	if c.WarningThreshold < 0 || c.CriticalThreshold < 0 {
		return fmt.Errorf("quotagate: config: thresholds must not be negative")
	}
	if c.CriticalThreshold > c.WarningThreshold {
		return fmt.Errorf("quotagate: config: critical_threshold (%d) exceeds warning_threshold (%d)",
			c.CriticalThreshold, c.WarningThreshold)
	}
	if c.MaxQueueSize <= 0 {
		return fmt.Errorf("quotagate: config: max_queue_size must be positive, got %d", c.MaxQueueSize)
	}
	if c.QueueTimeout <= 0 {
		return fmt.Errorf("quotagate: config: queue_timeout must be positive, got %s", c.QueueTimeout)
	}
	if c.QueueBacklogThreshold < 0 {
		return fmt.Errorf("quotagate: config: queue_backlog_threshold must not be negative")
	}
	if c.PacingDelay < 0 || c.ResumeBuffer < 0 {
		return fmt.Errorf("quotagate: config: pacing_delay and resume_buffer must not be negative")
	}
	return nil
}

// ConfigUpdate is a partial Config. Nil fields keep their current value.
type ConfigUpdate struct {
	DailyLimit            *int64
	MinuteLimit           *int64
	WarningThreshold      *int64
	CriticalThreshold     *int64
	MaxQueueSize          *int
	QueueTimeout          *time.Duration
	QueueBacklogThreshold *int
	PacingDelay           *time.Duration
}

func (c Config) apply(u ConfigUpdate) Config {
	if u.DailyLimit != nil {
		c.DailyLimit = *u.DailyLimit
	}
	if u.MinuteLimit != nil {
		c.MinuteLimit = *u.MinuteLimit
	}
	if u.WarningThreshold != nil {
		c.WarningThreshold = *u.WarningThreshold
	}
	if u.CriticalThreshold != nil {
		c.CriticalThreshold = *u.CriticalThreshold
	}
	if u.MaxQueueSize != nil {
		c.MaxQueueSize = *u.MaxQueueSize
	}
	if u.QueueTimeout != nil {
		c.QueueTimeout = *u.QueueTimeout
	}
	if u.QueueBacklogThreshold != nil {
		c.QueueBacklogThreshold = *u.QueueBacklogThreshold
	}
	if u.PacingDelay != nil {
		c.PacingDelay = *u.PacingDelay
	}
	return c
}

// Int64Ptr returns a pointer to the given int64.
func Int64Ptr(v int64) *int64 { return &v }

// IntPtr returns a pointer to the given int.
func IntPtr(v int) *int { return &v }

// DurationPtr returns a pointer to the given duration.
func DurationPtr(v time.Duration) *time.Duration { return &v }
