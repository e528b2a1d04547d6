// Package breaker provides per-key circuit breakers.
package breaker

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/fwojciec/egress"
)

var _ egress.CircuitBreaker = (*Registry)(nil)

// StateChangeFunc is called after a circuit changes state.
type StateChangeFunc func(key string, from, to egress.CircuitState)

// Stats is a snapshot of one circuit.
type Stats struct {
	Key                 string
	State               egress.CircuitState
	ConsecutiveFailures int
	OpenedAt            time.Time
}

// Breaker is the circuit of a single key.
//
// While CLOSED every call runs. After FailureThreshold consecutive failures
// the circuit opens and calls fail fast with ECIRCUITOPEN. Once
// ResetTimeout has elapsed the circuit is HALF_OPEN and admits exactly one
// probe; other callers are rejected until the probe finishes. A successful
// probe closes the circuit, a failed one reopens it with a fresh timer.
type Breaker struct {
	mu       sync.Mutex
	key      string
	cfg      egress.BreakerConfig
	state    egress.CircuitState
	failures int
	openedAt time.Time
	probing  bool

	now      func() time.Time
	onChange StateChangeFunc
}

func newBreaker(key string, cfg egress.BreakerConfig, now func() time.Time, onChange StateChangeFunc) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = egress.DefaultFailureThreshold
	}
	if cfg.ResetTimeout <= 0 {
		cfg.ResetTimeout = egress.DefaultResetTimeout
	}
	return &Breaker{
		key:      key,
		cfg:      cfg,
		state:    egress.CircuitClosed,
		now:      now,
		onChange: onChange,
	}
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func(ctx context.Context) error) error {
	probe, err := b.before()
	if err != nil {
		return err
	}
	err = fn(ctx)
	b.after(ctx, probe, err)
	return err
}

// State returns the current state, moving an expired OPEN circuit to HALF_OPEN.
func (b *Breaker) State() egress.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireOpen()
	return b.state
}

// Stats returns a snapshot of the circuit.
func (b *Breaker) Stats() Stats {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.expireOpen()
	return Stats{
		Key:                 b.key,
		State:               b.state,
		ConsecutiveFailures: b.failures,
		OpenedAt:            b.openedAt,
	}
}

// Reset closes the circuit.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.probing = false
	b.transitionTo(egress.CircuitClosed)
}

// before decides whether a call may proceed. probe is true when the call
// is the single HALF_OPEN probe.
func (b *Breaker) before() (probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.expireOpen()

	switch b.state {
	case egress.CircuitOpen:
		remaining := b.cfg.ResetTimeout - b.now().Sub(b.openedAt)
		return false, egress.Errorf(egress.ECIRCUITOPEN,
			"circuit breaker OPEN for %s: retry after %v", b.key, remaining.Round(time.Millisecond))
	case egress.CircuitHalfOpen:
		if b.probing {
			return false, egress.Errorf(egress.ECIRCUITOPEN,
				"circuit breaker OPEN for %s: probe in flight", b.key)
		}
		b.probing = true
		return true, nil
	default:
		return false, nil
	}
}

// after records the outcome of a call.
func (b *Breaker) after(ctx context.Context, probe bool, err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if probe {
		b.probing = false
	}

	// The caller gave up or ran out of time; that says nothing about the
	// backend.
	if err != nil && ctx.Err() != nil {
		return
	}

	switch b.state {
	case egress.CircuitHalfOpen:
		if !probe {
			return
		}
		if err != nil {
			b.open()
			return
		}
		b.transitionTo(egress.CircuitClosed)
	case egress.CircuitClosed:
		if err == nil {
			b.failures = 0
			return
		}
		b.failures++
		if b.failures >= b.cfg.FailureThreshold {
			b.open()
		}
	case egress.CircuitOpen:
		// Result of a call admitted before the circuit opened.
	}
}

func (b *Breaker) expireOpen() {
	if b.state == egress.CircuitOpen && b.now().Sub(b.openedAt) >= b.cfg.ResetTimeout {
		b.transitionTo(egress.CircuitHalfOpen)
	}
}

func (b *Breaker) open() {
	b.openedAt = b.now()
	b.transitionTo(egress.CircuitOpen)
}

func (b *Breaker) transitionTo(state egress.CircuitState) {
	if b.state == state {
		return
	}
	from := b.state
	b.state = state
	if state == egress.CircuitClosed {
		b.failures = 0
		b.openedAt = time.Time{}
	}
	if b.onChange != nil {
		b.onChange(b.key, from, state)
	}
}

// Registry holds one Breaker per key. A failing key never affects another.
// It is safe for concurrent use by multiple goroutines.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker

	defaults egress.BreakerConfig
	policies *egress.PolicyRegistry
	now      func() time.Time
	onChange StateChangeFunc
	logger   *slog.Logger
}

// Option configures a Registry.
type Option func(*Registry)

// WithDefaults sets the configuration of keys without a policy.
func WithDefaults(cfg egress.BreakerConfig) Option {
	return func(r *Registry) {
		r.defaults = cfg
	}
}

// WithPolicies supplies per-key breaker configuration.
func WithPolicies(reg *egress.PolicyRegistry) Option {
	return func(r *Registry) {
		r.policies = reg
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(r *Registry) {
		r.now = now
	}
}

// WithStateChange registers a callback invoked on every transition.
// It runs while the circuit's lock is held and must not call back into it.
func WithStateChange(fn StateChangeFunc) Option {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// WithLogger sets the logger used to report transitions.
func WithLogger(logger *slog.Logger) Option {
	return func(r *Registry) {
		r.logger = logger
	}
}

// NewRegistry creates an empty Registry.
func NewRegistry(opts ...Option) *Registry {
	r := &Registry{
		breakers: make(map[string]*Breaker),
		defaults: egress.DefaultBreakerConfig(),
		now:      time.Now,
		logger:   slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Get returns the breaker for key, creating it on first use.
func (r *Registry) Get(key string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[key]; ok {
		return b
	}
	cfg := r.defaults
	if p := r.policies.Lookup(key); p.Breaker != nil {
		cfg = *p.Breaker
	}
	b := newBreaker(key, cfg, r.now, r.stateChanged)
	r.breakers[key] = b
	return b
}

// Execute runs fn through the breaker of key.
func (r *Registry) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	return r.Get(key).Execute(ctx, fn)
}

// State returns the state of key's circuit. Unknown keys are CLOSED.
func (r *Registry) State(key string) egress.CircuitState {
	r.mu.Lock()
	b, ok := r.breakers[key]
	r.mu.Unlock()
	if !ok {
		return egress.CircuitClosed
	}
	return b.State()
}

// Snapshot returns the stats of every known circuit, sorted by key.
func (r *Registry) Snapshot() []Stats {
	r.mu.Lock()
	breakers := make([]*Breaker, 0, len(r.breakers))
	for _, b := range r.breakers {
		breakers = append(breakers, b)
	}
	r.mu.Unlock()

	stats := make([]Stats, 0, len(breakers))
	for _, b := range breakers {
		stats = append(stats, b.Stats())
	}
	sort.Slice(stats, func(i, j int) bool { return stats[i].Key < stats[j].Key })
	return stats
}

func (r *Registry) stateChanged(key string, from, to egress.CircuitState) {
	level := slog.LevelInfo
	if to == egress.CircuitOpen {
		level = slog.LevelWarn
	}
	r.logger.Log(context.Background(), level, "circuit state change",
		"key", key, "from", from.String(), "to", to.String())
	if r.onChange != nil {
		r.onChange(key, from, to)
	}
}
