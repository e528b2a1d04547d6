// Package robots implements robots.txt compliance with a per-origin cache.
package robots

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/egress"
	"golang.org/x/sync/singleflight"
)

const (
	// DefaultUserAgent identifies the crawler to servers.
	DefaultUserAgent = "egressbot/1.0"

	// DefaultTTL is how long fetched rules stay cached.
	DefaultTTL = 10 * time.Minute

	// DefaultFetchTimeout bounds a single robots.txt request.
	DefaultFetchTimeout = 5 * time.Second

	maxBodyBytes = 512 * 1024
	robotsPath   = "/robots.txt"
)

var _ egress.RobotsChecker = (*Service)(nil)

type entry struct {
	rules     *Rules
	group     *Group
	expiresAt time.Time
}

// Service answers robots.txt questions for any URL. Rules are fetched lazily
// per origin and cached. When robots.txt cannot be fetched, or the server
// answers with a non-2xx status, the origin is treated as allowing everything.
//
// Service is safe for concurrent use. Concurrent misses for the same origin
// share one fetch.
type Service struct {
	client       *http.Client
	userAgent    string
	ttl          time.Duration
	fetchTimeout time.Duration
	now          func() time.Time
	logger       *slog.Logger

	mu    sync.RWMutex
	cache map[string]*entry
	group singleflight.Group
}

// Option configures a Service.
type Option func(*Service)

// WithHTTPClient sets the client used to fetch robots.txt.
func WithHTTPClient(c *http.Client) Option {
	return func(s *Service) {
		s.client = c
	}
}

// WithUserAgent sets the user agent sent with requests and used for group selection.
func WithUserAgent(ua string) Option {
	return func(s *Service) {
		s.userAgent = ua
	}
}

// WithTTL sets how long rules are cached. Defaults to DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(s *Service) {
		s.ttl = d
	}
}

// WithFetchTimeout bounds each robots.txt request. Defaults to DefaultFetchTimeout.
func WithFetchTimeout(d time.Duration) Option {
	return func(s *Service) {
		s.fetchTimeout = d
	}
}

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// WithLogger sets the logger for fetch failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// NewService creates a Service.
func NewService(opts ...Option) *Service {
	s := &Service{
		client:       http.DefaultClient,
		userAgent:    DefaultUserAgent,
		ttl:          DefaultTTL,
		fetchTimeout: DefaultFetchTimeout,
		now:          time.Now,
		logger:       slog.New(slog.DiscardHandler),
		cache:        make(map[string]*entry),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// IsAllowed reports whether rawURL may be crawled and the crawl delay
// requested for its origin. The only error is an unusable URL.
func (s *Service) IsAllowed(ctx context.Context, rawURL string) (egress.RobotsDecision, error) {
	u, origin, err := parseOrigin(rawURL)
	if err != nil {
		return egress.RobotsDecision{}, err
	}
	if u.Path == robotsPath {
		return egress.RobotsDecision{Allowed: true}, nil
	}

	e := s.lookup(ctx, origin)
	path := u.EscapedPath()
	if u.RawQuery != "" {
		path += "?" + u.RawQuery
	}

	var delay time.Duration
	if e.group != nil {
		delay = e.group.CrawlDelay
	}
	return egress.RobotsDecision{
		Allowed:    e.group.Allowed(path),
		CrawlDelay: delay,
	}, nil
}

// Sitemaps returns the Sitemap directives declared by the origin of rawURL.
func (s *Service) Sitemaps(ctx context.Context, rawURL string) ([]string, error) {
	_, origin, err := parseOrigin(rawURL)
	if err != nil {
		return nil, err
	}
	e := s.lookup(ctx, origin)
	if e.rules == nil {
		return nil, nil
	}
	return append([]string(nil), e.rules.Sitemaps...), nil
}

// Prime installs rules for origin from text without touching the network.
// Primed rules expire like fetched ones.
func (s *Service) Prime(origin, text string) error {
	_, key, err := parseOrigin(origin)
	if err != nil {
		return err
	}
	s.store(key, Parse(text))
	return nil
}

// Invalidate drops the cached rules of origin.
func (s *Service) Invalidate(origin string) {
	_, key, err := parseOrigin(origin)
	if err != nil {
		return
	}
	s.mu.Lock()
	delete(s.cache, key)
	s.mu.Unlock()
}

func (s *Service) lookup(ctx context.Context, origin string) *entry {
	s.mu.RLock()
	e, ok := s.cache[origin]
	s.mu.RUnlock()
	if ok && s.now().Before(e.expiresAt) {
		return e
	}

	v, _, _ := s.group.Do(origin, func() (any, error) {
		// Another caller may have refreshed the entry while we waited.
		s.mu.RLock()
		e, ok := s.cache[origin]
		s.mu.RUnlock()
		if ok && s.now().Before(e.expiresAt) {
			return e, nil
		}
		return s.store(origin, s.fetch(ctx, origin)), nil
	})
	return v.(*entry)
}

func (s *Service) store(origin string, rules *Rules) *entry {
	e := &entry{
		rules:     rules,
		group:     rules.Group(s.userAgent),
		expiresAt: s.now().Add(s.ttl),
	}
	s.mu.Lock()
	s.cache[origin] = e
	s.mu.Unlock()
	return e
}

// fetch downloads and parses robots.txt. Any failure yields nil rules,
// which allow everything.
func (s *Service) fetch(ctx context.Context, origin string) *Rules {
	// The fetch is shared by every waiter, so it must not die with the
	// first caller's context.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.fetchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, origin+robotsPath, nil)
	if err != nil {
		return nil
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.client.Do(req)
	if err != nil {
		s.logger.Warn("robots fetch failed, allowing all", "origin", origin, "err", err)
		return nil
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		s.logger.Debug("robots unavailable, allowing all", "origin", origin, "status", resp.StatusCode)
		return nil
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		s.logger.Warn("robots read failed, allowing all", "origin", origin, "err", err)
		return nil
	}
	return Parse(string(body))
}

func parseOrigin(rawURL string) (*url.URL, string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, "", egress.Wrapf(err, egress.EINVALID, "robots: parse url %q", rawURL)
	}
	if u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return nil, "", egress.Errorf(egress.EINVALID, "robots: not an absolute http url: %q", rawURL)
	}
	origin := fmt.Sprintf("%s://%s", strings.ToLower(u.Scheme), strings.ToLower(u.Host))
	return u, origin, nil
}
