package egress

import (
	"context"
	"time"
)

// CircuitState is the state of a circuit breaker.
type CircuitState int

// Circuit breaker states.
const (
	CircuitClosed CircuitState = iota
	CircuitOpen
	CircuitHalfOpen
)

// String returns the conventional upper-case name of the state.
func (s CircuitState) String() string {
	switch s {
	case CircuitClosed:
		return "CLOSED"
	case CircuitOpen:
		return "OPEN"
	case CircuitHalfOpen:
		return "HALF_OPEN"
	default:
		return "UNKNOWN"
	}
}

// BreakerConfig configures a circuit breaker.
type BreakerConfig struct {
	// FailureThreshold is the number of consecutive failures that opens the circuit.
	FailureThreshold int `json:"failureThreshold" yaml:"failureThreshold"`

	// ResetTimeout is how long the circuit stays open before admitting a probe.
	ResetTimeout time.Duration `json:"resetTimeout" yaml:"resetTimeout"`
}

// Default circuit breaker settings.
const (
	DefaultFailureThreshold = 5
	DefaultResetTimeout     = 30 * time.Second
)

// DefaultBreakerConfig returns the breaker settings used for keys without a policy.
func DefaultBreakerConfig() BreakerConfig {
	return BreakerConfig{
		FailureThreshold: DefaultFailureThreshold,
		ResetTimeout:     DefaultResetTimeout,
	}
}

// CircuitBreaker isolates failures per key.
type CircuitBreaker interface {
	// Execute runs fn unless the key's circuit is open.
	// Returns ECIRCUITOPEN without calling fn when the circuit rejects the call.
	Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error

	// State returns the current state of the key's circuit.
	State(key string) CircuitState
}
