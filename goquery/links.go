// Package goquery extracts links from fetched HTML using CSS selectors.
package goquery

import (
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/fwojciec/egress"
)

// Ensure LinkExtractor implements egress.LinkExtractor.
var _ egress.LinkExtractor = (*LinkExtractor)(nil)

// regions are scanned in order; a URL keeps the source of the first region
// it appears in.
var regions = []struct {
	selector string
	source   string
}{
	{".toc a[href], .table-of-contents a[href], .sidebar a[href], aside a[href]", "toc"},
	{"nav a[href], [role=\"navigation\"] a[href], .nav a[href], .menu a[href], .navbar a[href]", "nav"},
	{"main a[href], article a[href], .content a[href], .doc-content a[href]", "content"},
	{"footer a[href], .footer a[href]", "footer"},
	{"a[href]", "body"},
}

// LinkExtractor finds same-host links in a page. Every anchor in the page is
// reported once; the Source field names the page region it was found in.
type LinkExtractor struct{}

// NewLinkExtractor creates a new LinkExtractor.
func NewLinkExtractor() *LinkExtractor {
	return &LinkExtractor{}
}

// ExtractLinks parses HTML and returns the same-host links it contains,
// resolved against baseURL (or the page's <base href>), with fragments removed.
// Links to the page itself and non-HTTP links are skipped.
func (e *LinkExtractor) ExtractLinks(html string, baseURL string) ([]egress.DiscoveredLink, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, egress.Errorf(egress.EINVALID, "invalid base URL: %v", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, egress.Errorf(egress.EINVALID, "failed to parse HTML: %v", err)
	}

	resolveBase := base
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(href); err == nil {
			resolveBase = base.ResolveReference(ref)
		}
	}

	seen := make(map[string]bool)
	var links []egress.DiscoveredLink
	for _, r := range regions {
		doc.Find(r.selector).Each(func(_ int, sel *goquery.Selection) {
			href, _ := sel.Attr("href")
			if href == "" || isNonHTTPLink(href) {
				return
			}
			resolved := resolveURL(resolveBase, base, href)
			if resolved == "" || seen[resolved] || !isSameHost(base, resolved) {
				return
			}
			seen[resolved] = true
			links = append(links, egress.DiscoveredLink{
				URL:    resolved,
				Text:   strings.Join(strings.Fields(sel.Text()), " "),
				Source: r.source,
			})
		})
	}
	return links, nil
}

// resolveURL resolves href against resolveBase and strips the fragment.
// Links that point back at page are dropped.
func resolveURL(resolveBase, page *url.URL, href string) string {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		return ""
	}
	resolved := resolveBase.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	resolved.Fragment = ""
	resolved.RawFragment = ""

	self := *page
	self.Fragment = ""
	self.RawFragment = ""
	if resolved.String() == self.String() {
		return ""
	}
	return resolved.String()
}

// isSameHost uses exact host matching; subdomains are different hosts.
func isSameHost(base *url.URL, resolved string) bool {
	u, err := url.Parse(resolved)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, base.Host)
}

func isNonHTTPLink(href string) bool {
	href = strings.ToLower(strings.TrimSpace(href))
	return strings.HasPrefix(href, "javascript:") ||
		strings.HasPrefix(href, "mailto:") ||
		strings.HasPrefix(href, "tel:") ||
		strings.HasPrefix(href, "data:")
}
