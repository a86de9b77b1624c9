package reconcile

import "time"

// Activity summarizes how busy the tracked prospects are; it selects the
// polling cadence.
type Activity int

const (
	// ActivityIdle means no tracked job is queued or processing.
	ActivityIdle Activity = iota
	// ActivityQueued means jobs are waiting but none is processing.
	ActivityQueued
	// ActivityProcessing means a job is actively being worked.
	ActivityProcessing
)

// PollConfig holds the adaptive polling bounds.
type PollConfig struct {
	Fast    time.Duration // while a job is processing
	Medium  time.Duration // while jobs are only queued
	IdleMin time.Duration // idle floor
	IdleMax time.Duration // idle backoff ceiling
}

// DefaultPollConfig returns the production cadence.
func DefaultPollConfig() PollConfig {
	return PollConfig{
		Fast:    time.Second,
		Medium:  2 * time.Second,
		IdleMin: 5 * time.Second,
		IdleMax: 30 * time.Second,
	}
}

// PollingInterval returns the next poll delay for the given activity level.
// While idle, the interval doubles for each full idle minute elapsed, capped
// at IdleMax, so a dashboard left open overnight settles at the ceiling.
func PollingInterval(cfg PollConfig, activity Activity, idleFor time.Duration) time.Duration {
	switch activity {
	case ActivityProcessing:
		return cfg.Fast
	case ActivityQueued:
		return cfg.Medium
	}

	interval := cfg.IdleMin
	for elapsed := time.Minute; elapsed <= idleFor && interval < cfg.IdleMax; elapsed += time.Minute {
		interval *= 2
	}
	if interval > cfg.IdleMax {
		interval = cfg.IdleMax
	}
	return interval
}
