package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/egress"
)

// Ensure LoggingCompleter implements egress.Completer.
var _ egress.Completer = (*LoggingCompleter)(nil)

// LoggingCompleter wraps a Completer with logging.
// Prompts are not logged, only their size.
type LoggingCompleter struct {
	next   egress.Completer
	logger *slog.Logger
}

// NewLoggingCompleter creates a new LoggingCompleter.
func NewLoggingCompleter(next egress.Completer, logger *slog.Logger) *LoggingCompleter {
	return &LoggingCompleter{next: next, logger: logger}
}

// Name delegates to the wrapped completer.
func (c *LoggingCompleter) Name() string {
	return c.next.Name()
}

// Complete logs the completion and delegates to the wrapped completer.
func (c *LoggingCompleter) Complete(ctx context.Context, req *egress.CompletionRequest) (out *egress.Completion, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"completer", c.next.Name(),
			"promptBytes", len(req.Prompt),
			"duration", time.Since(begin),
		}
		if out != nil {
			attrs = append(attrs, "provider", out.Provider, "requestID", out.RequestID, "bytes", len(out.Text))
		}
		if err != nil {
			attrs = append(attrs, "code", egress.ErrorCode(err), "err", err)
		}
		c.logger.Info("complete", attrs...)
	}(time.Now())
	return c.next.Complete(ctx, req)
}
