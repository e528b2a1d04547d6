package slog

import (
	"context"
	"log/slog"
	"time"

	"github.com/fwojciec/egress"
)

// Ensure LoggingSitemapService implements egress.SitemapService.
var _ egress.SitemapService = (*LoggingSitemapService)(nil)

// LoggingSitemapService wraps a SitemapService with logging.
type LoggingSitemapService struct {
	next   egress.SitemapService
	logger *slog.Logger
}

// NewLoggingSitemapService creates a new LoggingSitemapService.
func NewLoggingSitemapService(next egress.SitemapService, logger *slog.Logger) *LoggingSitemapService {
	return &LoggingSitemapService{next: next, logger: logger}
}

// DiscoverURLs delegates to the wrapped service. Successful discovery is
// logged at debug level; a failure is a warning since the crawl continues
// from its seed.
func (s *LoggingSitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *egress.URLFilter) (urls []string, err error) {
	defer func(begin time.Time) {
		attrs := []any{
			"url", baseURL,
			"filtered", filter != nil,
			"count", len(urls),
			"duration", time.Since(begin),
		}
		if err != nil {
			s.logger.Warn("sitemap discovery", append(attrs, "err", err)...)
			return
		}
		s.logger.Debug("sitemap discovery", attrs...)
	}(time.Now())
	return s.next.DiscoverURLs(ctx, baseURL, filter)
}
