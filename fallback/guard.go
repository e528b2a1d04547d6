package fallback

import (
	"context"
	"errors"
	"time"

	"github.com/fwojciec/egress"
)

// Guard describes the resilience wrapping of one backend.
// Zero-valued fields disable the corresponding protection.
type Guard struct {
	Limiter egress.RateLimiter
	Breaker egress.CircuitBreaker

	// Tokens taken from the limiter per call. Defaults to 1.
	Tokens int

	// MaxWait lets the call wait for tokens. Zero means a non-blocking acquire.
	MaxWait time.Duration

	// Timeout bounds the call. Zero means no timeout beyond ctx.
	Timeout time.Duration
}

// Wrap turns call into an Attempt protected, in order, by the rate limiter,
// the circuit breaker of key, and a hard timeout.
//
// A refused token yields ERATELIMIT, or EQUOTA when the key's quota is
// exhausted; both are returned before the breaker is consulted, so they do
// not count as backend failures. A timeout yields ETIMEOUT and does.
func Wrap[T any](g Guard, key string, call func(ctx context.Context) (T, error)) Attempt[T] {
	return Attempt[T]{
		Name: key,
		Call: func(ctx context.Context) (T, error) {
			var zero T

			if g.Limiter != nil {
				if err := acquire(ctx, g, key); err != nil {
					return zero, err
				}
			}

			var result T
			run := func(ctx context.Context) error {
				v, err := Within(ctx, g.Timeout, key, call)
				result = v
				return err
			}

			var err error
			if g.Breaker != nil {
				err = g.Breaker.Execute(ctx, key, run)
			} else {
				err = run(ctx)
			}
			if err != nil {
				return zero, err
			}
			return result, nil
		},
	}
}

func acquire(ctx context.Context, g Guard, key string) error {
	tokens := max(1, g.Tokens)

	var ok bool
	if g.MaxWait > 0 {
		ok = g.Limiter.WaitForToken(ctx, key, tokens, g.MaxWait)
	} else {
		ok = g.Limiter.Acquire(key, tokens)
	}
	if ok {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if usage, configured := g.Limiter.Usage(key); configured && usage.QuotaExhausted {
		return egress.Errorf(egress.EQUOTA, "quota exceeded for %s", key)
	}
	return egress.Errorf(egress.ERATELIMIT, "rate limit exceeded for %s", key)
}

// Within runs call with a hard deadline of d. When the deadline passes
// first, the call is abandoned (its context is canceled but it is not
// awaited) and an ETIMEOUT error is returned. Cancellation of the parent
// ctx returns ctx.Err() instead.
func Within[T any](ctx context.Context, d time.Duration, name string, call func(ctx context.Context) (T, error)) (T, error) {
	if d <= 0 {
		return call(ctx)
	}

	tctx, cancel := context.WithTimeout(ctx, d)
	defer cancel()

	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := call(tctx)
		ch <- result{v: v, err: err}
	}()

	var zero T
	select {
	case r := <-ch:
		if r.err != nil && errors.Is(tctx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			return zero, egress.Wrapf(r.err, egress.ETIMEOUT, "%s timed out after %v", name, d)
		}
		return r.v, r.err
	case <-tctx.Done():
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		return zero, egress.Errorf(egress.ETIMEOUT, "%s timed out after %v", name, d)
	}
}
