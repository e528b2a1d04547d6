package egress

// DiscoveredLink is a URL found on a fetched page.
type DiscoveredLink struct {
	URL    string
	Text   string
	Source string // "nav", "toc", "content", "footer", "body"
}

// Edge is a hyperlink observed during a crawl.
type Edge struct {
	From string
	To   string
}

// LinkExtractor extracts links from HTML.
type LinkExtractor interface {
	// ExtractLinks parses HTML and returns same-host links.
	// The baseURL is used to resolve relative URLs.
	ExtractLinks(html string, baseURL string) ([]DiscoveredLink, error)
}

// ScoredURL is a crawl candidate ranked by the link graph.
type ScoredURL struct {
	URL       string
	InDegree  int
	OutDegree int
	Depth     int
	Semantic  int // 1 if the URL looks like documentation, else 0
	Score     float64
}

// URLFrontier manages a crawl queue with deduplication.
type URLFrontier interface {
	// Push adds a candidate to the frontier.
	// Returns false if the URL has already been seen.
	Push(candidate ScoredURL) bool

	// Pop returns the highest scoring candidate.
	// Returns false if the frontier is empty.
	Pop() (ScoredURL, bool)

	// Len returns the number of URLs in the queue.
	Len() int

	// Seen returns true if the URL has been processed or queued.
	Seen(url string) bool
}
