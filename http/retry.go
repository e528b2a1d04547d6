package http

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"net/http"
	"strconv"
	"time"

	"github.com/fwojciec/egress"
)

// RetryConfig controls FetchWithRetry.
type RetryConfig struct {
	// MaxRetries is the number of retries after the first attempt.
	MaxRetries int

	// BaseDelay is the backoff ceiling of the first retry. It doubles
	// with every further retry.
	BaseDelay time.Duration

	// MaxDelay caps every wait, including Retry-After.
	MaxDelay time.Duration

	// Logger, if set, receives one line per retry.
	Logger *slog.Logger
}

// DefaultRetryConfig returns 3 retries with delays starting at 1s capped at 30s.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries: 3,
		BaseDelay:  1 * time.Second,
		MaxDelay:   30 * time.Second,
	}
}

// FetchWithRetry performs req with f, retrying transient failures with
// exponential backoff and full jitter. Transient failures are 429, 5xx,
// network errors and timeouts; anything else is returned as-is.
//
// A Retry-After header on a 429 response replaces the computed delay when
// it does not exceed MaxDelay.
func FetchWithRetry(ctx context.Context, f egress.Fetcher, req *egress.Request, cfg RetryConfig) (*egress.Response, error) {
	var (
		resp *egress.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = f.Fetch(ctx, req)
		if err == nil || !retryable(err) || attempt >= cfg.MaxRetries {
			return resp, err
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}

		delay := cfg.Backoff(attempt)
		if d, ok := retryAfter(resp); ok && (cfg.MaxDelay <= 0 || d <= cfg.MaxDelay) {
			delay = d
		}
		if cfg.Logger != nil {
			cfg.Logger.Info("retrying fetch",
				"url", req.URL,
				"attempt", attempt+2,
				"delay", delay,
				"err", err,
			)
		}
		if err := sleep(ctx, delay); err != nil {
			return nil, err
		}
	}
}

// RetryingFetcher is an egress.Fetcher that applies FetchWithRetry to
// every request.
type RetryingFetcher struct {
	next egress.Fetcher
	cfg  RetryConfig
}

var _ egress.Fetcher = (*RetryingFetcher)(nil)

// NewRetryingFetcher wraps next with cfg.
func NewRetryingFetcher(next egress.Fetcher, cfg RetryConfig) *RetryingFetcher {
	return &RetryingFetcher{next: next, cfg: cfg}
}

// Fetch performs req, retrying transient failures.
func (f *RetryingFetcher) Fetch(ctx context.Context, req *egress.Request) (*egress.Response, error) {
	return FetchWithRetry(ctx, f.next, req, f.cfg)
}

func retryable(err error) bool {
	switch egress.ErrorCode(err) {
	case egress.ETRANSIENT, egress.ETIMEOUT:
		return true
	default:
		return false
	}
}

// Backoff returns a uniformly random delay in
// [0, min(MaxDelay, BaseDelay*2^attempt)]. Without MaxDelay the ceiling
// stops doubling before it would overflow.
func (cfg RetryConfig) Backoff(attempt int) time.Duration {
	if cfg.BaseDelay <= 0 {
		return 0
	}
	ceiling := cfg.BaseDelay
	for range attempt {
		if ceiling > math.MaxInt64/2 {
			break
		}
		ceiling *= 2
		if cfg.MaxDelay > 0 && ceiling >= cfg.MaxDelay {
			break
		}
	}
	if cfg.MaxDelay > 0 && ceiling > cfg.MaxDelay {
		ceiling = cfg.MaxDelay
	}
	return rand.N(ceiling + 1)
}

// retryAfter parses the Retry-After header of a 429 response, in either
// delta-seconds or HTTP-date form.
func retryAfter(resp *egress.Response) (time.Duration, bool) {
	if resp == nil || resp.StatusCode != http.StatusTooManyRequests {
		return 0, false
	}
	v := resp.Header.Get("Retry-After")
	if v == "" {
		return 0, false
	}
	if secs, err := strconv.Atoi(v); err == nil && secs >= 0 {
		return time.Duration(secs) * time.Second, true
	}
	if t, err := http.ParseTime(v); err == nil {
		return max(0, time.Until(t)), true
	}
	return 0, false
}
