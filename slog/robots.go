package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/egress"
)

// Ensure LoggingRobots implements egress.RobotsChecker.
var _ egress.RobotsChecker = (*LoggingRobots)(nil)

// LoggingRobots wraps a RobotsChecker with debug logging.
type LoggingRobots struct {
	next   egress.RobotsChecker
	logger *slog.Logger
}

// NewLoggingRobots creates a new LoggingRobots.
func NewLoggingRobots(next egress.RobotsChecker, logger *slog.Logger) *LoggingRobots {
	return &LoggingRobots{next: next, logger: logger}
}

// IsAllowed logs the decision and delegates to the wrapped checker.
// Blocked URLs are logged at info level, allowed ones at debug.
func (r *LoggingRobots) IsAllowed(ctx context.Context, url string) (d egress.RobotsDecision, err error) {
	defer func(begin time.Time) {
		level := slog.LevelDebug
		if err != nil || !d.Allowed {
			level = slog.LevelInfo
		}
		r.logger.Log(ctx, level, "robots check",
			"url", url,
			"allowed", d.Allowed,
			"crawlDelay", d.CrawlDelay,
			"duration", time.Since(begin),
			"err", err,
		)
	}(time.Now())
	return r.next.IsAllowed(ctx, url)
}
