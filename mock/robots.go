package mock

import (
	"context"

	"github.com/fwojciec/egress"
)

var _ egress.RobotsChecker = (*RobotsChecker)(nil)

// RobotsChecker is a mock implementation of egress.RobotsChecker.
type RobotsChecker struct {
	IsAllowedFn func(ctx context.Context, rawURL string) (egress.RobotsDecision, error)
}

func (r *RobotsChecker) IsAllowed(ctx context.Context, rawURL string) (egress.RobotsDecision, error) {
	return r.IsAllowedFn(ctx, rawURL)
}
