package domain

import "time"

// BackoffPolicy computes retry delays: base * 2^retryCount, capped.
// One explicit policy instead of ad hoc timers scattered around call
// sites, so it can be tested in isolation.
type BackoffPolicy struct {
	Base time.Duration
	Max  time.Duration
}

// DefaultBackoff is used when no policy is configured.
var DefaultBackoff = BackoffPolicy{Base: 30 * time.Second, Max: time.Hour}

// NextDelay returns the delay before attempt retryCount+1.
// retryCount is the number of failures so far (0 for the first retry).
func (p BackoffPolicy) NextDelay(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	// Shift overflow guard: beyond 62 doublings everything caps anyway.
	if retryCount > 62 {
		return p.Max
	}
	delay := p.Base << uint(retryCount)
	if delay <= 0 || delay > p.Max {
		return p.Max
	}
	return delay
}
