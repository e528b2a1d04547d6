package mock

import (
	"context"
	"time"

	"github.com/fwojciec/egress"
)

var _ egress.Completer = (*Completer)(nil)

// Completer is a mock implementation of egress.Completer.
type Completer struct {
	NameFn     func() string
	CompleteFn func(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error)
}

func (c *Completer) Name() string {
	return c.NameFn()
}

func (c *Completer) Complete(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error) {
	return c.CompleteFn(ctx, req)
}

var _ egress.RateLimiter = (*RateLimiter)(nil)

// RateLimiter is a mock implementation of egress.RateLimiter.
type RateLimiter struct {
	AcquireFn      func(key string, tokens int) bool
	WaitForTokenFn func(ctx context.Context, key string, tokens int, maxWait time.Duration) bool
	UsageFn        func(key string) (egress.Usage, bool)
}

func (l *RateLimiter) Acquire(key string, tokens int) bool {
	return l.AcquireFn(key, tokens)
}

func (l *RateLimiter) WaitForToken(ctx context.Context, key string, tokens int, maxWait time.Duration) bool {
	return l.WaitForTokenFn(ctx, key, tokens, maxWait)
}

func (l *RateLimiter) Usage(key string) (egress.Usage, bool) {
	return l.UsageFn(key)
}

var _ egress.CircuitBreaker = (*CircuitBreaker)(nil)

// CircuitBreaker is a mock implementation of egress.CircuitBreaker.
type CircuitBreaker struct {
	ExecuteFn func(ctx context.Context, key string, fn func(ctx context.Context) error) error
	StateFn   func(key string) egress.CircuitState
}

func (b *CircuitBreaker) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return b.ExecuteFn(ctx, key, fn)
}

func (b *CircuitBreaker) State(key string) egress.CircuitState {
	return b.StateFn(key)
}

var _ egress.TokenCounter = (*TokenCounter)(nil)

// TokenCounter is a mock implementation of egress.TokenCounter.
type TokenCounter struct {
	CountTokensFn func(ctx context.Context, text string) (int, error)
}

func (c *TokenCounter) CountTokens(ctx context.Context, text string) (int, error) {
	return c.CountTokensFn(ctx, text)
}
