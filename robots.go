package egress

import (
	"context"
	"time"
)

// RobotsDecision is the outcome of evaluating a URL against robots.txt.
type RobotsDecision struct {
	Allowed    bool
	CrawlDelay time.Duration
}

// RobotsChecker evaluates URLs against the robots.txt of their origin.
type RobotsChecker interface {
	// IsAllowed reports whether the configured user agent may fetch the URL
	// and the crawl delay that applies to its host.
	// Unreachable or broken robots.txt files allow everything.
	// Returns EINVALID if the URL cannot be parsed.
	IsAllowed(ctx context.Context, rawURL string) (RobotsDecision, error)
}
