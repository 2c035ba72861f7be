package config

import "time"

// LifecycleConfig holds credential expiry monitor configuration.
//
// The 20h TTL is a client-side assumption carried over from the original
// session behavior; the server never reports a real expiry, so the monitor
// schedules proactive refresh prompts against this approximation.
type LifecycleConfig struct {
	TTLHours          int `json:"ttl_hours,omitempty"`
	WarningWindowMins int `json:"warning_window_mins,omitempty"`
	CheckIntervalMins int `json:"check_interval_mins,omitempty"`
	RemindDelayMins   int `json:"remind_delay_mins,omitempty"`
}

// DefaultLifecycleConfig returns sensible defaults.
func DefaultLifecycleConfig() *LifecycleConfig {
	return &LifecycleConfig{
		TTLHours:          20,
		WarningWindowMins: 120,
		CheckIntervalMins: 30,
		RemindDelayMins:   60,
	}
}

// TTL is the assumed credential lifetime.
func (c *LifecycleConfig) TTL() time.Duration {
	if c.TTLHours <= 0 {
		return 20 * time.Hour
	}
	return time.Duration(c.TTLHours) * time.Hour
}

// WarningWindow is how long before expiry the monitor starts warning.
func (c *LifecycleConfig) WarningWindow() time.Duration {
	if c.WarningWindowMins <= 0 {
		return 2 * time.Hour
	}
	return time.Duration(c.WarningWindowMins) * time.Minute
}

// CheckInterval is the periodic tick.
func (c *LifecycleConfig) CheckInterval() time.Duration {
	if c.CheckIntervalMins <= 0 {
		return 30 * time.Minute
	}
	return time.Duration(c.CheckIntervalMins) * time.Minute
}

// RemindDelay is the one-shot re-check delay after "remind me later".
func (c *LifecycleConfig) RemindDelay() time.Duration {
	if c.RemindDelayMins <= 0 {
		return time.Hour
	}
	return time.Duration(c.RemindDelayMins) * time.Minute
}
