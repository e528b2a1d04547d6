package egress

import (
	"context"
	"time"
)

// Rate describes a token bucket: a steady refill rate and the maximum
// number of tokens the bucket can hold.
type Rate struct {
	TokensPerMinute float64 `json:"tokensPerMinute" yaml:"tokensPerMinute"`
	BurstCapacity   int     `json:"burstCapacity" yaml:"burstCapacity"`
}

// Validate returns an error if the rate cannot describe a bucket.
func (r Rate) Validate() error {
	if r.TokensPerMinute <= 0 {
		return Errorf(EINVALID, "tokens per minute must be positive")
	}
	if r.BurstCapacity <= 0 {
		return Errorf(EINVALID, "burst capacity must be positive")
	}
	return nil
}

// Quota caps usage over long windows, independent of the bucket.
// A zero limit means unlimited.
type Quota struct {
	Daily   int64 `json:"daily" yaml:"daily"`
	Monthly int64 `json:"monthly" yaml:"monthly"`
}

// Quota windows. They restart when the window has elapsed since the last
// reset, not on a calendar boundary.
const (
	DailyWindow   = 24 * time.Hour
	MonthlyWindow = 30 * 24 * time.Hour
)

// Usage is a point-in-time view of a key's bucket and quota counters.
type Usage struct {
	Tokens           float64
	Capacity         float64
	DailyUsed        int64
	MonthlyUsed      int64
	LastDailyReset   time.Time
	LastMonthlyReset time.Time

	// QuotaExhausted is true when the next acquire would be refused by the
	// quota regardless of available tokens.
	QuotaExhausted bool
}

// RateLimiter enforces per-key throughput and quotas.
// Keys are provider names or hosts.
type RateLimiter interface {
	// Acquire takes tokens without blocking.
	// Returns false when tokens are insufficient or a quota is exhausted.
	// Unconfigured keys always succeed. A non-positive charge never does.
	Acquire(key string, tokens int) bool

	// WaitForToken blocks until the tokens are granted or maxWait elapses.
	// Returns false on timeout, quota exhaustion, or context cancellation.
	WaitForToken(ctx context.Context, key string, tokens int, maxWait time.Duration) bool

	// Usage reports the bucket and quota state of a key.
	// The bool result is false if the key is not configured.
	Usage(key string) (Usage, bool)
}
