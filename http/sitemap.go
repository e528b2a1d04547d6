package http

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
	"strings"

	"github.com/beevik/etree"
	"github.com/fwojciec/egress"
)

// Ensure SitemapService implements egress.SitemapService.
var _ egress.SitemapService = (*SitemapService)(nil)

// SitemapLocator lists the sitemaps an origin declares.
// robots.Service satisfies it through the Sitemap directives of robots.txt.
type SitemapLocator interface {
	Sitemaps(ctx context.Context, rawURL string) ([]string, error)
}

// SitemapService discovers page URLs from sitemaps. Sitemap documents are
// fetched through an egress.Fetcher, so a PoliteFetcher applies the same
// robots, pacing and timeout rules as for pages.
type SitemapService struct {
	fetcher egress.Fetcher
	locator SitemapLocator
}

// NewSitemapService creates a SitemapService. A nil locator means only
// /sitemap.xml is tried.
func NewSitemapService(fetcher egress.Fetcher, locator SitemapLocator) *SitemapService {
	return &SitemapService{fetcher: fetcher, locator: locator}
}

// DiscoverURLs finds all page URLs listed in a site's sitemaps.
// Returns an empty slice (not nil) if no sitemaps are found.
//
// When baseURL has a non-root path (e.g., https://example.com/docs/),
// only URLs under that path are returned.
func (s *SitemapService) DiscoverURLs(ctx context.Context, baseURL string, filter *egress.URLFilter) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	base, err := url.Parse(baseURL)
	if err != nil || base.Host == "" {
		return nil, egress.Errorf(egress.EINVALID, "invalid base URL %q", baseURL)
	}

	pathPrefix := base.Path
	if pathPrefix == "/" {
		pathPrefix = ""
	}
	root := *base
	root.Path, root.RawQuery, root.Fragment = "", "", ""

	sitemapURLs, err := s.findSitemapURLs(ctx, &root)
	if err != nil {
		return nil, err
	}

	urls := []string{}
	seenSitemaps := make(map[string]bool)
	seenURLs := make(map[string]bool)
	for _, sitemapURL := range sitemapURLs {
		found, err := s.processSitemap(ctx, sitemapURL, seenSitemaps)
		if err != nil {
			return nil, err
		}
		for _, u := range found {
			if seenURLs[u] {
				continue
			}
			seenURLs[u] = true
			if pathPrefix != "" && !matchesPathPrefix(u, pathPrefix) {
				continue
			}
			if !filter.Match(u) {
				continue
			}
			urls = append(urls, u)
		}
	}
	return urls, nil
}

// matchesPathPrefix reports whether the path of rawURL lies under prefix,
// respecting path boundaries: /docs matches /docs/intro but not /documentation.
func matchesPathPrefix(rawURL, prefix string) bool {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	prefix = strings.TrimSuffix(prefix, "/")
	return parsed.Path == prefix || strings.HasPrefix(parsed.Path, prefix+"/")
}

// findSitemapURLs asks the locator first and falls back to /sitemap.xml.
func (s *SitemapService) findSitemapURLs(ctx context.Context, root *url.URL) ([]string, error) {
	if s.locator != nil {
		sitemaps, err := s.locator.Sitemaps(ctx, root.String()+"/")
		if err == nil && len(sitemaps) > 0 {
			return sitemaps, nil
		}
	}

	sitemapURL := root.ResolveReference(&url.URL{Path: "/sitemap.xml"}).String()
	resp, err := s.fetcher.Fetch(ctx, &egress.Request{URL: sitemapURL, Method: http.MethodHead})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, nil
	}
	return []string{sitemapURL}, nil
}

// processSitemap fetches and parses a sitemap, handling both urlset and sitemapindex.
func (s *SitemapService) processSitemap(ctx context.Context, sitemapURL string, seen map[string]bool) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if seen[sitemapURL] {
		return nil, nil
	}
	seen[sitemapURL] = true

	resp, err := s.fetcher.Fetch(ctx, &egress.Request{URL: sitemapURL})
	if err != nil {
		return nil, err
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(bytes.NewReader(resp.Body)); err != nil {
		return nil, egress.Wrapf(err, egress.EINVALID, "parsing sitemap %s", sitemapURL)
	}
	root := doc.Root()
	if root == nil {
		return nil, egress.Errorf(egress.EINVALID, "empty sitemap %s", sitemapURL)
	}

	if root.Tag == "sitemapindex" {
		var all []string
		for _, loc := range locs(root, "sitemap") {
			urls, err := s.processSitemap(ctx, loc, seen)
			if err != nil {
				return nil, err
			}
			all = append(all, urls...)
		}
		return all, nil
	}
	return locs(root, "url"), nil
}

// locs returns the trimmed <loc> text of every child element named tag.
func locs(root *etree.Element, tag string) []string {
	var out []string
	for _, el := range root.SelectElements(tag) {
		loc := el.SelectElement("loc")
		if loc == nil {
			continue
		}
		if u := strings.TrimSpace(loc.Text()); u != "" {
			out = append(out, u)
		}
	}
	return out
}
