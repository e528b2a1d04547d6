// Package ratelimit provides per-key token buckets with daily and monthly
// quotas, built on golang.org/x/time/rate.
package ratelimit

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/fwojciec/egress"
	"golang.org/x/time/rate"
)

var _ egress.RateLimiter = (*Limiter)(nil)

// DefaultSweepInterval is how often Run evicts idle buckets.
const DefaultSweepInterval = 60 * time.Second

// Limiter enforces per-key token buckets and quotas.
// Keys that were never configured pass through unrestricted so that a new
// provider or host is never hard-failed by missing configuration.
// It is safe for concurrent use by multiple goroutines.
type Limiter struct {
	mu      sync.Mutex
	configs map[string]bucketConfig
	buckets map[string]*bucket

	now    func() time.Time
	logger *slog.Logger
}

type bucketConfig struct {
	rate  egress.Rate
	quota *egress.Quota
}

// bucket is the mutable state of one key. Its mutex serializes refill,
// quota accounting and token consumption.
type bucket struct {
	mu      sync.Mutex
	cfg     bucketConfig
	limiter *rate.Limiter

	dailyUsed        int64
	monthlyUsed      int64
	lastDailyReset   time.Time
	lastMonthlyReset time.Time
	lastUsed         time.Time
}

// Option configures a Limiter.
type Option func(*Limiter)

// WithLogger sets the logger used for rejection warnings.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Limiter) {
		l.logger = logger
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(l *Limiter) {
		l.now = now
	}
}

// NewLimiter creates a Limiter with no configured keys.
func NewLimiter(opts ...Option) *Limiter {
	l := &Limiter{
		configs: make(map[string]bucketConfig),
		buckets: make(map[string]*bucket),
		now:     time.Now,
		logger:  slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Configure sets the bucket and optional quota of a key.
// Reconfiguring a key keeps its quota counters.
func (l *Limiter) Configure(key string, r egress.Rate, quota *egress.Quota) error {
	if key == "" {
		return egress.Errorf(egress.EINVALID, "rate limit key required")
	}
	if err := r.Validate(); err != nil {
		return err
	}
	if quota != nil && (quota.Daily < 0 || quota.Monthly < 0) {
		return egress.Errorf(egress.EINVALID, "quota limits must not be negative")
	}

	cfg := bucketConfig{rate: r, quota: quota}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.configs[key] = cfg
	if b, ok := l.buckets[key]; ok {
		now := l.now()
		b.mu.Lock()
		b.cfg = cfg
		b.limiter.SetLimitAt(now, perSecond(r))
		b.limiter.SetBurstAt(now, r.BurstCapacity)
		b.mu.Unlock()
	}
	return nil
}

// ApplyPolicies configures every key of the registry that carries a rate.
func (l *Limiter) ApplyPolicies(reg *egress.PolicyRegistry) error {
	for _, key := range reg.Keys() {
		p := reg.Lookup(key)
		if p.Rate == nil {
			continue
		}
		if err := l.Configure(key, *p.Rate, p.Quota); err != nil {
			return err
		}
	}
	return nil
}

// Acquire takes tokens from the key's bucket without blocking.
// The quota is checked before the bucket: an exhausted quota refuses the
// request even when tokens are available. A non-positive charge is refused.
func (l *Limiter) Acquire(key string, tokens int) bool {
	if tokens <= 0 {
		return false
	}
	b := l.bucket(key)
	if b == nil {
		return true
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.resetWindows(now)
	if b.quotaExceeded(tokens) {
		l.logger.Warn("quota exceeded", "key", key, "tokens", tokens,
			"daily", b.dailyUsed, "monthly", b.monthlyUsed)
		return false
	}
	if !b.limiter.AllowN(now, tokens) {
		l.logger.Warn("rate limit exceeded", "key", key, "tokens", tokens)
		return false
	}
	b.consume(tokens, now)
	return true
}

// WaitForToken blocks until tokens are granted, maxWait elapses, or ctx is done.
// Rather than polling, it reserves the tokens up front and sleeps exactly
// until the reservation matures; a reservation that cannot mature within
// maxWait is returned to the bucket immediately. A non-positive charge is
// refused.
func (l *Limiter) WaitForToken(ctx context.Context, key string, tokens int, maxWait time.Duration) bool {
	if tokens <= 0 {
		return false
	}
	b := l.bucket(key)
	if b == nil {
		return true
	}

	b.mu.Lock()
	now := l.now()
	b.resetWindows(now)
	if b.quotaExceeded(tokens) {
		b.mu.Unlock()
		l.logger.Warn("quota exceeded", "key", key, "tokens", tokens)
		return false
	}
	r := b.limiter.ReserveN(now, tokens)
	if !r.OK() {
		b.mu.Unlock()
		l.logger.Warn("rate limit exceeded", "key", key, "tokens", tokens, "burst", b.cfg.rate.BurstCapacity)
		return false
	}
	delay := r.DelayFrom(now)
	if delay > maxWait {
		r.CancelAt(now)
		b.mu.Unlock()
		l.logger.Warn("rate limit exceeded", "key", key, "tokens", tokens, "wait", delay)
		return false
	}
	b.consume(tokens, now)
	b.mu.Unlock()

	if delay == 0 {
		return true
	}

	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		b.mu.Lock()
		r.CancelAt(l.now())
		b.refund(tokens)
		b.mu.Unlock()
		return false
	}
}

// Usage reports the lazily refilled bucket and the quota counters of a key.
// Tokens reported are never negative, even while reservations made by
// WaitForToken are pending.
func (l *Limiter) Usage(key string) (egress.Usage, bool) {
	b := l.bucket(key)
	if b == nil {
		return egress.Usage{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	now := l.now()
	b.resetWindows(now)
	return egress.Usage{
		Tokens:           max(0, b.limiter.TokensAt(now)),
		Capacity:         float64(b.limiter.Burst()),
		DailyUsed:        b.dailyUsed,
		MonthlyUsed:      b.monthlyUsed,
		LastDailyReset:   b.lastDailyReset,
		LastMonthlyReset: b.lastMonthlyReset,
		QuotaExhausted:   b.quotaExceeded(1),
	}, true
}

// Sweep evicts buckets that have been idle for longer than idle and whose
// state equals a freshly created bucket: full tokens and no quota to track.
// Evicted buckets are recreated lazily from their configuration.
// Returns the number of evicted buckets.
func (l *Limiter) Sweep(idle time.Duration) int {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	evicted := 0
	for key, b := range l.buckets {
		b.mu.Lock()
		stale := now.Sub(b.lastUsed) > idle &&
			b.cfg.quota == nil &&
			b.limiter.TokensAt(now) >= float64(b.limiter.Burst())
		b.mu.Unlock()
		if stale {
			delete(l.buckets, key)
			evicted++
		}
	}
	return evicted
}

// Run sweeps idle buckets every interval until ctx is canceled.
func (l *Limiter) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := l.Sweep(interval); n > 0 {
				l.logger.Debug("swept idle buckets", "count", n)
			}
		}
	}
}

// bucket returns the state of a configured key, creating it on first use.
// Returns nil for unconfigured keys.
func (l *Limiter) bucket(key string) *bucket {
	l.mu.Lock()
	defer l.mu.Unlock()

	if b, ok := l.buckets[key]; ok {
		return b
	}
	cfg, ok := l.configs[key]
	if !ok {
		return nil
	}
	now := l.now()
	b := &bucket{
		cfg:              cfg,
		limiter:          rate.NewLimiter(perSecond(cfg.rate), cfg.rate.BurstCapacity),
		lastDailyReset:   now,
		lastMonthlyReset: now,
		lastUsed:         now,
	}
	// rate.NewLimiter starts full; anchor its clock to ours.
	b.limiter.SetBurstAt(now, cfg.rate.BurstCapacity)
	l.buckets[key] = b
	return b
}

// resetWindows restarts quota windows that have fully elapsed.
func (b *bucket) resetWindows(now time.Time) {
	if now.Sub(b.lastDailyReset) >= egress.DailyWindow {
		b.dailyUsed = 0
		b.lastDailyReset = now
	}
	if now.Sub(b.lastMonthlyReset) >= egress.MonthlyWindow {
		b.monthlyUsed = 0
		b.lastMonthlyReset = now
	}
}

func (b *bucket) quotaExceeded(tokens int) bool {
	q := b.cfg.quota
	if q == nil {
		return false
	}
	n := int64(tokens)
	if q.Daily > 0 && b.dailyUsed+n > q.Daily {
		return true
	}
	if q.Monthly > 0 && b.monthlyUsed+n > q.Monthly {
		return true
	}
	return false
}

func (b *bucket) consume(tokens int, now time.Time) {
	b.dailyUsed += int64(tokens)
	b.monthlyUsed += int64(tokens)
	b.lastUsed = now
}

func (b *bucket) refund(tokens int) {
	b.dailyUsed = max(0, b.dailyUsed-int64(tokens))
	b.monthlyUsed = max(0, b.monthlyUsed-int64(tokens))
}

func perSecond(r egress.Rate) rate.Limit {
	return rate.Limit(r.TokensPerMinute / 60)
}
