package mock

import (
	"github.com/fwojciec/egress"
)

var _ egress.LinkExtractor = (*LinkExtractor)(nil)

// LinkExtractor is a mock implementation of egress.LinkExtractor.
type LinkExtractor struct {
	ExtractLinksFn func(html string, baseURL string) ([]egress.DiscoveredLink, error)
}

func (e *LinkExtractor) ExtractLinks(html string, baseURL string) ([]egress.DiscoveredLink, error) {
	return e.ExtractLinksFn(html, baseURL)
}
