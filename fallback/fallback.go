// Package fallback tries interchangeable backends in order until one succeeds.
//
// The router in this package knows nothing about resilience policy. Each
// attempt is wrapped by the caller, typically with Wrap, before it is
// handed to Do.
package fallback

import (
	"context"
	"log/slog"

	"github.com/fwojciec/egress"
)

// Attempt is one candidate backend call.
type Attempt[T any] struct {
	// Name identifies the backend in logs and in the aggregated error.
	Name string
	Call func(ctx context.Context) (T, error)
}

type config struct {
	maxRetries int
	logger     *slog.Logger
}

// Option configures Do.
type Option func(*config)

// WithMaxRetries repeats the whole ordered pass up to n more times
// when every backend failed. Defaults to 0.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = max(0, n)
	}
}

// WithLogger logs each failed attempt at warn level.
func WithLogger(logger *slog.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// Do invokes the attempts strictly in order. The first success
// short-circuits the remainder. When every attempt fails, Do returns an
// EUNAVAILABLE error naming the last failure and wrapping it.
// Cancellation of ctx stops the pass and returns ctx.Err().
func Do[T any](ctx context.Context, attempts []Attempt[T], opts ...Option) (T, error) {
	cfg := config{logger: slog.New(slog.DiscardHandler)}
	for _, opt := range opts {
		opt(&cfg)
	}

	var zero T
	if len(attempts) == 0 {
		return zero, egress.Errorf(egress.EUNAVAILABLE, "no backends configured")
	}

	var lastErr error
	var lastName string
	for pass := 0; pass <= cfg.maxRetries; pass++ {
		for _, attempt := range attempts {
			if err := ctx.Err(); err != nil {
				return zero, err
			}

			v, err := attempt.Call(ctx)
			if err == nil {
				return v, nil
			}

			lastErr, lastName = err, attempt.Name
			cfg.logger.Warn("backend failed",
				"backend", attempt.Name,
				"pass", pass+1,
				"code", egress.ErrorCode(err),
				"err", err,
			)
		}
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, egress.Wrapf(lastErr, egress.EUNAVAILABLE,
		"all %d backends failed, last was %s", len(attempts), lastName)
}
