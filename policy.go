package egress

import (
	"sort"
	"time"
)

// Policy is the resilience configuration of one protected key.
// Nil fields fall back to the registry default.
type Policy struct {
	Rate    *Rate          `json:"rate,omitempty" yaml:"rate,omitempty"`
	Quota   *Quota         `json:"quota,omitempty" yaml:"quota,omitempty"`
	Breaker *BreakerConfig `json:"breaker,omitempty" yaml:"breaker,omitempty"`
	Timeout time.Duration  `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// ChargeTokens charges the rate limiter the counted prompt tokens of a
	// completion instead of one token per call. The charge is clamped to
	// the bucket's burst capacity.
	ChargeTokens bool `json:"chargeTokens,omitempty" yaml:"chargeTokens,omitempty"`
}

// Validate returns an error if the policy contains invalid fields.
func (p *Policy) Validate() error {
	if p.Rate != nil {
		if err := p.Rate.Validate(); err != nil {
			return err
		}
	}
	if p.Quota != nil && (p.Quota.Daily < 0 || p.Quota.Monthly < 0) {
		return Errorf(EINVALID, "quota limits must not be negative")
	}
	if p.Breaker != nil {
		if p.Breaker.FailureThreshold <= 0 {
			return Errorf(EINVALID, "breaker failure threshold must be positive")
		}
		if p.Breaker.ResetTimeout <= 0 {
			return Errorf(EINVALID, "breaker reset timeout must be positive")
		}
	}
	if p.Timeout < 0 {
		return Errorf(EINVALID, "timeout must not be negative")
	}
	return nil
}

// PolicyRegistry holds the policies of all protected keys.
// It is loaded once at startup and read concurrently afterwards.
type PolicyRegistry struct {
	Default  Policy            `json:"default" yaml:"default"`
	Policies map[string]Policy `json:"policies" yaml:"policies"`
}

// Validate returns an error if any policy is invalid.
func (r *PolicyRegistry) Validate() error {
	if err := r.Default.Validate(); err != nil {
		return Errorf(EINVALID, "default policy: %s", ErrorMessage(err))
	}
	for _, key := range r.Keys() {
		p := r.Policies[key]
		if err := p.Validate(); err != nil {
			return Errorf(EINVALID, "policy %q: %s", key, ErrorMessage(err))
		}
	}
	return nil
}

// Lookup returns the effective policy for key: its own fields where set,
// the default policy elsewhere.
func (r *PolicyRegistry) Lookup(key string) Policy {
	if r == nil {
		return Policy{}
	}
	p, ok := r.Policies[key]
	if !ok {
		return r.Default
	}
	if p.Rate == nil {
		p.Rate = r.Default.Rate
	}
	if p.Quota == nil {
		p.Quota = r.Default.Quota
	}
	if p.Breaker == nil {
		p.Breaker = r.Default.Breaker
	}
	if p.Timeout == 0 {
		p.Timeout = r.Default.Timeout
	}
	p.ChargeTokens = p.ChargeTokens || r.Default.ChargeTokens
	return p
}

// Keys returns the explicitly configured keys in sorted order.
func (r *PolicyRegistry) Keys() []string {
	if r == nil {
		return nil
	}
	keys := make([]string, 0, len(r.Policies))
	for k := range r.Policies {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
