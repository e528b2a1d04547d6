// Package yaml loads the declarative policy registry from YAML.
//
// Example:
//
//	default:
//	  breaker:
//	    failureThreshold: 5
//	    resetTimeout: 30s
//	  timeout: 60s
//	policies:
//	  gemini:
//	    rate:
//	      tokensPerMinute: 60
//	      burstCapacity: 10
//	    quota:
//	      daily: 1000
//	    chargeTokens: false
//	  docs.example.com:
//	    rate:
//	      tokensPerMinute: 30
//	      burstCapacity: 1
package yaml

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/fwojciec/egress"
	"gopkg.in/yaml.v3"
)

// LoadPolicies reads and validates the policy registry at path.
func LoadPolicies(path string) (*egress.PolicyRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read policy file %s: %w", path, err)
	}
	return DecodePolicies(bytes.NewReader(data))
}

// DecodePolicies parses and validates a policy registry. Unknown fields
// are rejected so that typos do not silently disable a limit. An empty
// document yields an empty registry.
func DecodePolicies(r io.Reader) (*egress.PolicyRegistry, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var reg egress.PolicyRegistry
	if err := dec.Decode(&reg); err != nil && !errors.Is(err, io.EOF) {
		return nil, egress.Errorf(egress.EINVALID, "parse policies: %v", err)
	}
	if reg.Policies == nil {
		reg.Policies = make(map[string]egress.Policy)
	}
	if err := reg.Validate(); err != nil {
		return nil, err
	}
	return &reg, nil
}

// EncodePolicies writes reg as YAML.
func EncodePolicies(w io.Writer, reg *egress.PolicyRegistry) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(reg); err != nil {
		return fmt.Errorf("encode policies: %w", err)
	}
	return enc.Close()
}
