package main

import (
	"github.com/fwojciec/egress/yaml"
)

// Run executes the policies command.
func (c *PoliciesCmd) Run(deps *Dependencies) error {
	return yaml.EncodePolicies(deps.Stdout, deps.Policies)
}
