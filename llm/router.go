// Package llm routes completions across interchangeable providers.
//
// Each provider call is guarded by its rate limit, circuit breaker and
// timeout, and providers are tried in their configured order.
package llm

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/fallback"
)

// DefaultTimeout bounds a provider call when no policy sets a timeout.
const DefaultTimeout = 60 * time.Second

// Name is the key the router reports as its own provider name.
const Name = "router"

var _ egress.Completer = (*Router)(nil)

// Router implements egress.Completer by falling back across providers.
type Router struct {
	providers  []egress.Completer
	limiter    egress.RateLimiter
	breaker    egress.CircuitBreaker
	policies   *egress.PolicyRegistry
	counter    egress.TokenCounter
	maxWait    time.Duration
	maxRetries int
	logger     *slog.Logger
}

// Option configures a Router.
type Option func(*Router)

// WithLimiter charges each provider call against the limiter under the
// provider's name.
func WithLimiter(l egress.RateLimiter) Option {
	return func(r *Router) {
		r.limiter = l
	}
}

// WithBreaker isolates provider failures in the breaker under the
// provider's name.
func WithBreaker(b egress.CircuitBreaker) Option {
	return func(r *Router) {
		r.breaker = b
	}
}

// WithPolicies supplies per-provider timeouts.
func WithPolicies(reg *egress.PolicyRegistry) Option {
	return func(r *Router) {
		r.policies = reg
	}
}

// WithTokenCounter counts prompt tokens for providers whose policy sets
// ChargeTokens. Other providers are charged one token per call.
func WithTokenCounter(tc egress.TokenCounter) Option {
	return func(r *Router) {
		r.counter = tc
	}
}

// WithMaxWait lets a call wait up to d for rate limit tokens.
func WithMaxWait(d time.Duration) Option {
	return func(r *Router) {
		r.maxWait = d
	}
}

// WithMaxRetries repeats the provider pass up to n more times.
func WithMaxRetries(n int) Option {
	return func(r *Router) {
		r.maxRetries = n
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Router) {
		r.logger = logger
	}
}

// NewRouter creates a Router that tries providers in order.
func NewRouter(providers []egress.Completer, opts ...Option) *Router {
	r := &Router{
		providers: providers,
		logger:    slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Name returns the router key.
func (r *Router) Name() string {
	return Name
}

// Complete returns the first successful completion. The Provider field of
// the result names the provider that served it.
func (r *Router) Complete(ctx context.Context, req *egress.CompletionRequest) (*egress.Completion, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	count := r.promptTokens(ctx, req)
	attempts := make([]fallback.Attempt[*egress.Completion], 0, len(r.providers))
	for _, p := range r.providers {
		guard := fallback.Guard{
			Limiter: r.limiter,
			Breaker: r.breaker,
			Tokens:  r.charge(p.Name(), count),
			MaxWait: r.maxWait,
			Timeout: r.timeout(p.Name()),
		}
		attempts = append(attempts, fallback.Wrap(guard, p.Name(), func(ctx context.Context) (*egress.Completion, error) {
			c, err := p.Complete(ctx, req)
			if err != nil {
				return nil, err
			}
			c.Provider = p.Name()
			return c, nil
		}))
	}

	return fallback.Do(ctx, attempts,
		fallback.WithMaxRetries(r.maxRetries),
		fallback.WithLogger(r.logger),
	)
}

func (r *Router) timeout(provider string) time.Duration {
	if d := r.policies.Lookup(provider).Timeout; d > 0 {
		return d
	}
	return DefaultTimeout
}

// promptTokens returns a lazy prompt token count shared by all providers.
func (r *Router) promptTokens(ctx context.Context, req *egress.CompletionRequest) func() int {
	n := 0
	return func() int {
		if n > 0 {
			return n
		}
		n = 1
		if r.counter == nil {
			return n
		}
		c, err := r.counter.CountTokens(ctx, req.System+"\n"+req.Prompt)
		if err != nil {
			r.logger.Warn("token count failed", "err", err)
			return n
		}
		n = max(1, c)
		return n
	}
}

// charge is the number of limiter tokens a call to provider costs.
func (r *Router) charge(provider string, count func() int) int {
	p := r.policies.Lookup(provider)
	if !p.ChargeTokens {
		return 1
	}
	n := count()
	if p.Rate != nil && n > p.Rate.BurstCapacity {
		r.logger.Debug("token charge clamped to burst", "provider", provider, "tokens", n, "burst", p.Rate.BurstCapacity)
		n = p.Rate.BurstCapacity
	}
	return n
}
