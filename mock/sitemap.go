package mock

import (
	"context"

	"github.com/fwojciec/egress"
)

var _ egress.SitemapService = (*SitemapService)(nil)

// SitemapService is a mock implementation of egress.SitemapService.
type SitemapService struct {
	DiscoverURLsFn func(ctx context.Context, baseURL string, filter *egress.URLFilter) ([]string, error)
}

func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *egress.URLFilter) ([]string, error) {
	return s.DiscoverURLsFn(ctx, baseURL, filter)
}
