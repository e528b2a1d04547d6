// Package crawl provides polite, ranked crawling of documentation sites.
// A Session fetches pages through an egress.Fetcher, skips unchanged and
// duplicate content, and follows links in link graph order.
package crawl

import (
	"context"
	"log/slog"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/egress"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Frontier sizing and session defaults.
const (
	frontierExpectedURLs      = 10000
	frontierFalsePositiveRate = 0.01

	DefaultMaxPages    = 100
	DefaultConcurrency = 4
	DefaultRevisitTTL  = 24 * time.Hour
)

// Session crawls a single site. Only Fetcher is required.
type Session struct {
	Fetcher  egress.Fetcher
	Links    egress.LinkExtractor
	Dedup    egress.ContentDeduplicator
	Revisit  egress.RevisitPolicy
	Sitemaps egress.SitemapService
	Filter   *egress.URLFilter

	// Store receives the body of every non-duplicate page. The caller
	// commits or aborts it after Run.
	Store egress.PageStore

	MaxPages    int
	Concurrency int
	RevisitTTL  time.Duration

	Logger   *slog.Logger
	Progress ProgressFunc
}

// SessionResult summarizes a crawl.
type SessionResult struct {
	ID string

	Fetched     int
	Duplicates  int
	NotModified int
	Skipped     int // not due for revisit, never requested
	Blocked     int
	Failed      int

	Pages []Page

	// DuplicateOf maps a duplicate page to the URL first seen with its content.
	DuplicateOf map[string]string

	// Frontier lists discovered but unvisited URLs, best first.
	Frontier []egress.ScoredURL
}

// Page is a successfully fetched, non-duplicate page.
type Page struct {
	URL        string
	StatusCode int
	Bytes      int
	Links      int
	Score      float64
}

// ProgressEvent reports progress during a crawl.
type ProgressEvent struct {
	Type      ProgressType
	Completed int
	URL       string
	Error     error
}

// ProgressType indicates the type of progress event.
type ProgressType int

const (
	ProgressFetched ProgressType = iota
	ProgressSkipped
	ProgressFailed
	ProgressFinished
)

// ProgressFunc is a callback for reporting crawl progress.
type ProgressFunc func(event ProgressEvent)

type outcome int

const (
	outcomeFetched outcome = iota
	outcomeDuplicate
	outcomeNotModified
	outcomeSkipped
	outcomeBlocked
	outcomeFailed
)

// Run crawls from seedURL, staying on its host and visiting at most
// MaxPages URLs. Pages are visited in batches of Concurrency; after each
// batch the link graph is re-ranked and the best candidates go next.
//
// A canceled ctx stops the crawl and returns the partial result with
// ctx.Err().
func (s *Session) Run(ctx context.Context, seedURL string) (*SessionResult, error) {
	seed, err := url.Parse(seedURL)
	if err != nil || seed.Host == "" {
		return nil, egress.Errorf(egress.EINVALID, "invalid seed URL %q", seedURL)
	}
	host := strings.ToLower(seed.Host)

	logger := s.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	maxPages := s.MaxPages
	if maxPages <= 0 {
		maxPages = DefaultMaxPages
	}
	concurrency := s.Concurrency
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}

	result := &SessionResult{
		ID:          uuid.NewString(),
		DuplicateOf: make(map[string]string),
	}
	logger = logger.With("session", result.ID)
	logger.Info("crawl started", "seed", seedURL, "maxPages", maxPages)

	graph := NewLinkGraph()
	graph.AddRoot(seedURL)
	frontier := NewFrontier(frontierExpectedURLs, frontierFalsePositiveRate)
	frontier.Push(egress.ScoredURL{URL: seedURL})

	if s.Sitemaps != nil {
		urls, err := s.Sitemaps.DiscoverURLs(ctx, seedURL, s.Filter)
		if err != nil {
			logger.Warn("sitemap discovery failed", "err", err)
		}
		for _, u := range urls {
			if inScope(u, host) {
				graph.AddCandidate(u)
			}
		}
		s.enqueue(graph, frontier)
	}

	var mu sync.Mutex
	record := func(p *Page, u string, o outcome, err error, original string) {
		mu.Lock()
		defer mu.Unlock()
		ev := ProgressEvent{URL: u, Error: err}
		switch o {
		case outcomeFetched:
			result.Fetched++
			result.Pages = append(result.Pages, *p)
			ev.Type = ProgressFetched
		case outcomeDuplicate:
			result.Fetched++
			result.Duplicates++
			result.DuplicateOf[u] = original
			ev.Type = ProgressSkipped
		case outcomeNotModified:
			result.NotModified++
			ev.Type = ProgressSkipped
		case outcomeSkipped:
			result.Skipped++
			ev.Type = ProgressSkipped
		case outcomeBlocked:
			result.Blocked++
			ev.Type = ProgressSkipped
		case outcomeFailed:
			result.Failed++
			ev.Type = ProgressFailed
		}
		ev.Completed = result.Fetched + result.NotModified + result.Skipped + result.Blocked + result.Failed
		if s.Progress != nil {
			s.Progress(ev)
		}
	}

	dispatched := 0
	for dispatched < maxPages {
		var batch []egress.ScoredURL
		for len(batch) < concurrency && dispatched+len(batch) < maxPages {
			c, ok := frontier.Pop()
			if !ok {
				break
			}
			batch = append(batch, c)
		}
		if len(batch) == 0 {
			break
		}
		dispatched += len(batch)

		g, gctx := errgroup.WithContext(ctx)
		for _, c := range batch {
			g.Go(func() error {
				return s.visit(gctx, c, host, graph, record)
			})
		}
		if err := g.Wait(); err != nil {
			result.Frontier = drain(frontier)
			return result, err
		}
		if err := ctx.Err(); err != nil {
			result.Frontier = drain(frontier)
			return result, err
		}

		s.enqueue(graph, frontier)
	}

	seen, fp := frontier.SeenCount()
	result.Frontier = drain(frontier)
	logger.Info("crawl finished",
		"seen", seen,
		"seenFalsePositiveRate", fp,
		"fetched", result.Fetched,
		"duplicates", result.Duplicates,
		"notModified", result.NotModified,
		"blocked", result.Blocked,
		"failed", result.Failed,
	)
	if s.Progress != nil {
		s.Progress(ProgressEvent{Type: ProgressFinished, Completed: dispatched})
	}
	return result, nil
}

// visit processes one URL. Only context errors are returned; everything
// else is recorded as an outcome.
func (s *Session) visit(
	ctx context.Context,
	c egress.ScoredURL,
	host string,
	graph *LinkGraph,
	record func(*Page, string, outcome, error, string),
) error {
	u := c.URL
	if s.Revisit != nil && !s.Revisit.Due(ctx, u) {
		record(nil, u, outcomeSkipped, nil, "")
		return nil
	}

	resp, err := s.Fetcher.Fetch(ctx, &egress.Request{URL: u})
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if egress.ErrorCode(err) == egress.EROBOTSBLOCKED {
			record(nil, u, outcomeBlocked, err, "")
			return nil
		}
		record(nil, u, outcomeFailed, err, "")
		return nil
	}

	if s.Revisit != nil {
		ttl := s.RevisitTTL
		if ttl <= 0 {
			ttl = DefaultRevisitTTL
		}
		// A failed store write only costs a conditional request later.
		_ = s.Revisit.UpdateFromResponse(ctx, u, resp.Header, ttl)
	}

	if resp.NotModified {
		record(nil, u, outcomeNotModified, nil, "")
		return nil
	}

	body := string(resp.Body)
	if s.Dedup != nil {
		if original, dup := s.Dedup.IsDuplicate(u, body); dup {
			record(nil, u, outcomeDuplicate, nil, original)
			return nil
		}
	}

	if s.Store != nil {
		if err := s.Store.SavePage(ctx, u, resp.Body); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			record(nil, u, outcomeFailed, err, "")
			return nil
		}
	}

	page := &Page{URL: u, StatusCode: resp.StatusCode, Bytes: len(resp.Body), Score: c.Score}
	if s.Links != nil {
		links, err := s.Links.ExtractLinks(body, u)
		if err == nil {
			for _, l := range links {
				if !inScope(l.URL, host) || !s.Filter.Match(l.URL) {
					continue
				}
				graph.AddEdge(u, l.URL)
				page.Links++
			}
		}
	}
	record(page, u, outcomeFetched, nil, "")
	return nil
}

// enqueue pushes newly ranked candidates and refreshes queued scores.
func (s *Session) enqueue(graph *LinkGraph, frontier *Frontier) {
	ranked := graph.Prioritize(0)
	for _, r := range ranked {
		frontier.Push(r)
	}
	frontier.Rescore(ranked)
}

func drain(f *Frontier) []egress.ScoredURL {
	var out []egress.ScoredURL
	for {
		c, ok := f.Pop()
		if !ok {
			return out
		}
		out = append(out, c)
	}
}

func inScope(rawURL, host string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	return strings.EqualFold(u.Host, host)
}
