// Package http implements polite, robots-aware outbound HTTP for egress.
package http

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/egress"
	"golang.org/x/sync/semaphore"
	"golang.org/x/time/rate"
)

const (
	// DefaultFetchTimeout bounds a single request including the body read.
	DefaultFetchTimeout = 8 * time.Second

	// DefaultHostRate is the sustained request rate allowed per host.
	DefaultHostRate = rate.Limit(1)

	// DefaultHostConcurrency is the number of in-flight requests allowed per host.
	DefaultHostConcurrency = 2

	// DefaultUserAgent identifies the crawler to servers.
	DefaultUserAgent = "egressbot/1.0"

	// DefaultMaxBodyBytes caps how much of a response body is read.
	DefaultMaxBodyBytes = 10 << 20

	// DefaultLimiterWait bounds the wait for a host token from a configured
	// rate limiter.
	DefaultLimiterWait = time.Minute

	// DefaultSweepInterval is how often Run drops idle host state.
	DefaultSweepInterval = 60 * time.Second
)

// Ensure PoliteFetcher implements egress.Fetcher at compile time.
var _ egress.Fetcher = (*PoliteFetcher)(nil)

type hostState struct {
	limiter  *rate.Limiter
	sem      *semaphore.Weighted
	lastUsed time.Time
}

// PoliteFetcher fetches URLs while honoring robots.txt, per-host pacing and a
// per-host concurrency ceiling. Every request runs under a hard timeout.
//
// Optional collaborators are nil-safe: without a robots checker every URL is
// allowed, without a breaker hosts are never short-circuited.
type PoliteFetcher struct {
	client      *http.Client
	userAgent   string
	timeout     time.Duration
	hostRate    rate.Limit
	concurrency int64
	maxBody     int64

	limiter     egress.RateLimiter
	limiterWait time.Duration

	robots   egress.RobotsChecker
	revisit  egress.RevisitPolicy
	breakers egress.CircuitBreaker
	observer egress.FetchObserver
	logger   *slog.Logger
	now      func() time.Time

	mu    sync.Mutex
	hosts map[string]*hostState
}

// Option configures a PoliteFetcher.
type Option func(*PoliteFetcher)

// WithHTTPClient sets the underlying client.
func WithHTTPClient(c *http.Client) Option {
	return func(f *PoliteFetcher) {
		f.client = c
	}
}

// WithTimeout sets the per-request timeout.
// Defaults to DefaultFetchTimeout (8s) if not specified.
func WithTimeout(d time.Duration) Option {
	return func(f *PoliteFetcher) {
		f.timeout = d
	}
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(f *PoliteFetcher) {
		f.userAgent = ua
	}
}

// WithHostRate sets requests per second allowed per host.
func WithHostRate(r rate.Limit) Option {
	return func(f *PoliteFetcher) {
		f.hostRate = r
	}
}

// WithLimiter paces hosts the limiter has a policy for, keyed by host.
// The limiter's rate and quota replace the built-in host rate for those
// hosts; other hosts keep the built-in bucket.
func WithLimiter(l egress.RateLimiter) Option {
	return func(f *PoliteFetcher) {
		f.limiter = l
	}
}

// WithLimiterWait bounds how long a fetch waits for a token from the
// limiter set by WithLimiter.
func WithLimiterWait(d time.Duration) Option {
	return func(f *PoliteFetcher) {
		f.limiterWait = d
	}
}

// WithHostConcurrency sets the maximum in-flight requests per host.
func WithHostConcurrency(n int) Option {
	return func(f *PoliteFetcher) {
		f.concurrency = int64(max(1, n))
	}
}

// WithMaxBodyBytes caps the bytes read from a response body.
func WithMaxBodyBytes(n int64) Option {
	return func(f *PoliteFetcher) {
		f.maxBody = n
	}
}

// WithRobots enables robots.txt checks.
func WithRobots(r egress.RobotsChecker) Option {
	return func(f *PoliteFetcher) {
		f.robots = r
	}
}

// WithRevisitPolicy adds conditional request headers to GET requests.
func WithRevisitPolicy(p egress.RevisitPolicy) Option {
	return func(f *PoliteFetcher) {
		f.revisit = p
	}
}

// WithBreaker guards each host with a circuit keyed by host name.
func WithBreaker(b egress.CircuitBreaker) Option {
	return func(f *PoliteFetcher) {
		f.breakers = b
	}
}

// WithObserver records latency and outcome of every fetch.
func WithObserver(o egress.FetchObserver) Option {
	return func(f *PoliteFetcher) {
		f.observer = o
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(f *PoliteFetcher) {
		f.logger = logger
	}
}

// NewPoliteFetcher creates a PoliteFetcher.
func NewPoliteFetcher(opts ...Option) *PoliteFetcher {
	f := &PoliteFetcher{
		client:      http.DefaultClient,
		userAgent:   DefaultUserAgent,
		timeout:     DefaultFetchTimeout,
		hostRate:    DefaultHostRate,
		concurrency: DefaultHostConcurrency,
		maxBody:     DefaultMaxBodyBytes,
		limiterWait: DefaultLimiterWait,
		logger:      slog.New(slog.DiscardHandler),
		now:         time.Now,
		hosts:       make(map[string]*hostState),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Fetch performs req politely.
//
// A URL disallowed by robots.txt fails with EROBOTSBLOCKED before any
// network activity. A request exceeding the timeout fails with ETIMEOUT.
// A 304 answer returns a response with NotModified set. Responses with
// status >= 400 are returned together with an ETRANSIENT (429, 5xx) or
// EPERMANENT error.
func (f *PoliteFetcher) Fetch(ctx context.Context, req *egress.Request) (*egress.Response, error) {
	method := req.Method
	if method == "" {
		method = http.MethodGet
	}

	u, err := url.Parse(req.URL)
	if err != nil || u.Host == "" {
		return nil, egress.Errorf(egress.EINVALID, "invalid fetch url %q", req.URL)
	}
	host := strings.ToLower(u.Host)

	start := f.now()
	resp, outcome, err := f.fetch(ctx, host, method, req)
	if f.observer != nil && outcome != "" {
		f.observer.ObserveFetch(host, method, outcome, f.now().Sub(start))
	}
	return resp, err
}

func (f *PoliteFetcher) fetch(ctx context.Context, host, method string, req *egress.Request) (*egress.Response, egress.FetchOutcome, error) {
	var delay time.Duration
	if f.robots != nil {
		d, err := f.robots.IsAllowed(ctx, req.URL)
		if err != nil {
			return nil, "", err
		}
		if !d.Allowed {
			return nil, egress.OutcomeBlocked, egress.Errorf(egress.EROBOTSBLOCKED, "blocked by robots.txt: %s", req.URL)
		}
		delay = d.CrawlDelay
	}

	hs := f.host(host)
	if err := f.pace(ctx, host, hs); err != nil {
		return nil, outcomeOf(nil, err), err
	}
	if err := hs.sem.Acquire(ctx, 1); err != nil {
		return nil, "", err
	}
	defer hs.sem.Release(1)

	if delay > 0 {
		if err := sleep(ctx, delay); err != nil {
			return nil, "", err
		}
	}

	var resp *egress.Response
	var classified error
	call := func(ctx context.Context) error {
		var err error
		resp, err = f.do(ctx, method, req)
		if err != nil {
			return err
		}
		classified = classify(resp)
		// A permanent 4xx says nothing about host health.
		if egress.ErrorCode(classified) == egress.ETRANSIENT {
			return classified
		}
		return nil
	}

	var err error
	if f.breakers != nil {
		err = f.breakers.Execute(ctx, host, call)
	} else {
		err = call(ctx)
	}
	if err == nil {
		err = classified
	}
	return resp, outcomeOf(resp, err), err
}

// pace waits for the host's turn. Hosts with a limiter policy are charged
// one token there; a refusal fails with ERATELIMIT or EQUOTA.
func (f *PoliteFetcher) pace(ctx context.Context, host string, hs *hostState) error {
	if f.limiter != nil {
		if _, configured := f.limiter.Usage(host); configured {
			if f.limiter.WaitForToken(ctx, host, 1, f.limiterWait) {
				return nil
			}
			if err := ctx.Err(); err != nil {
				return err
			}
			if usage, _ := f.limiter.Usage(host); usage.QuotaExhausted {
				return egress.Errorf(egress.EQUOTA, "quota exceeded for %s", host)
			}
			return egress.Errorf(egress.ERATELIMIT, "rate limit exceeded for %s", host)
		}
	}
	return hs.limiter.Wait(ctx)
}

// do sends a single request under the fetch timeout and reads the body.
func (f *PoliteFetcher) do(ctx context.Context, method string, req *egress.Request) (*egress.Response, error) {
	tctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	hreq, err := http.NewRequestWithContext(tctx, method, req.URL, nil)
	if err != nil {
		return nil, egress.Wrapf(err, egress.EINVALID, "creating request")
	}
	for k, vs := range req.Header {
		hreq.Header[k] = append([]string(nil), vs...)
	}
	if hreq.Header.Get("User-Agent") == "" {
		hreq.Header.Set("User-Agent", f.userAgent)
	}
	if f.revisit != nil && method == http.MethodGet {
		for k, vs := range f.revisit.ConditionalHeaders(ctx, req.URL) {
			if hreq.Header.Get(k) == "" {
				hreq.Header[k] = vs
			}
		}
	}

	start := f.now()
	hresp, err := f.client.Do(hreq)
	if err != nil {
		return nil, f.transportError(ctx, tctx, req.URL, err)
	}
	defer hresp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(hresp.Body, f.maxBody))
	if err != nil {
		return nil, f.transportError(ctx, tctx, req.URL, err)
	}

	return &egress.Response{
		URL:         req.URL,
		StatusCode:  hresp.StatusCode,
		Header:      hresp.Header,
		Body:        body,
		Duration:    f.now().Sub(start),
		NotModified: hresp.StatusCode == http.StatusNotModified,
	}, nil
}

func (f *PoliteFetcher) transportError(ctx, tctx context.Context, rawURL string, err error) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if errors.Is(tctx.Err(), context.DeadlineExceeded) {
		return egress.Wrapf(err, egress.ETIMEOUT, "fetch %s timed out after %v", rawURL, f.timeout)
	}
	return egress.Wrapf(err, egress.ETRANSIENT, "fetch %s", rawURL)
}

// HeadOrGet issues a HEAD request and falls back to GET when HEAD fails
// for any reason other than a robots block or cancellation.
func (f *PoliteFetcher) HeadOrGet(ctx context.Context, rawURL string) (*egress.Response, error) {
	resp, err := f.Fetch(ctx, &egress.Request{URL: rawURL, Method: http.MethodHead})
	if err == nil {
		return resp, nil
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if code := egress.ErrorCode(err); code == egress.EROBOTSBLOCKED || code == egress.EINVALID {
		return resp, err
	}
	f.logger.Debug("HEAD failed, falling back to GET", "url", rawURL, "err", err)
	return f.Fetch(ctx, &egress.Request{URL: rawURL, Method: http.MethodGet})
}

// Sweep drops pacing state of hosts idle for longer than idle and
// returns the number removed. Hosts with requests in flight are kept.
func (f *PoliteFetcher) Sweep(idle time.Duration) int {
	f.mu.Lock()
	defer f.mu.Unlock()

	cutoff := f.now().Add(-idle)
	removed := 0
	for host, hs := range f.hosts {
		if hs.lastUsed.After(cutoff) {
			continue
		}
		if !hs.sem.TryAcquire(f.concurrency) {
			continue
		}
		hs.sem.Release(f.concurrency)
		delete(f.hosts, host)
		removed++
	}
	return removed
}

// Run sweeps host state idle for longer than interval, every interval,
// until ctx is canceled.
func (f *PoliteFetcher) Run(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := f.Sweep(interval); n > 0 {
				f.logger.Debug("swept idle hosts", "count", n)
			}
		}
	}
}

// Hosts returns the number of hosts with pacing state.
func (f *PoliteFetcher) Hosts() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.hosts)
}

func (f *PoliteFetcher) host(host string) *hostState {
	f.mu.Lock()
	defer f.mu.Unlock()

	hs, ok := f.hosts[host]
	if !ok {
		hs = &hostState{
			limiter: rate.NewLimiter(f.hostRate, 1),
			sem:     semaphore.NewWeighted(f.concurrency),
		}
		f.hosts[host] = hs
	}
	hs.lastUsed = f.now()
	return hs
}

// classify maps a response status to the outbound error taxonomy.
func classify(resp *egress.Response) error {
	switch {
	case resp.StatusCode < 400:
		return nil
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
		return egress.Errorf(egress.ETRANSIENT, "HTTP %d for %s", resp.StatusCode, resp.URL)
	default:
		return egress.Errorf(egress.EPERMANENT, "HTTP %d for %s", resp.StatusCode, resp.URL)
	}
}

func outcomeOf(resp *egress.Response, err error) egress.FetchOutcome {
	switch egress.ErrorCode(err) {
	case "":
		if resp != nil && resp.NotModified {
			return egress.OutcomeNotModified
		}
		return egress.OutcomeOK
	case egress.ETIMEOUT:
		return egress.OutcomeTimeout
	case egress.ECIRCUITOPEN:
		return egress.OutcomeCircuitOpen
	case egress.ERATELIMIT, egress.EQUOTA:
		return egress.OutcomeRateLimited
	case egress.EPERMANENT:
		return egress.OutcomePermanent
	case egress.ETRANSIENT:
		if resp == nil {
			return egress.OutcomeNetwork
		}
		return egress.OutcomeTransient
	default:
		return ""
	}
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
