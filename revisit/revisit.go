// Package revisit decides when pages need refetching and supplies the
// validators for conditional requests.
package revisit

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/fwojciec/egress"
)

// DefaultTTL applies when UpdateFromResponse is given no TTL.
const DefaultTTL = 24 * time.Hour

var _ egress.RevisitPolicy = (*Policy)(nil)

// Policy keeps ETag and Last-Modified validators per URL in a RevisitStore.
// Store failures are logged and treated as "nothing known".
type Policy struct {
	store  egress.RevisitStore
	now    func() time.Time
	logger *slog.Logger
}

// Option configures a Policy.
type Option func(*Policy)

// WithClock replaces time.Now. Intended for tests.
func WithClock(now func() time.Time) Option {
	return func(p *Policy) {
		p.now = now
	}
}

// WithLogger sets the logger for store failures.
func WithLogger(logger *slog.Logger) Option {
	return func(p *Policy) {
		p.logger = logger
	}
}

// NewPolicy creates a Policy over store. A nil store uses a MemoryStore.
func NewPolicy(store egress.RevisitStore, opts ...Option) *Policy {
	p := &Policy{
		store:  store,
		now:    time.Now,
		logger: slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.store == nil {
		p.store = NewMemoryStore(WithStoreClock(p.now))
	}
	return p
}

// ConditionalHeaders returns If-None-Match and If-Modified-Since built from
// the stored validators. The header is empty when nothing is stored.
func (p *Policy) ConditionalHeaders(ctx context.Context, url string) http.Header {
	h := http.Header{}
	info := p.find(ctx, url)
	if info == nil {
		return h
	}
	if info.ETag != "" {
		h.Set("If-None-Match", info.ETag)
	}
	if info.LastModified != "" {
		h.Set("If-Modified-Since", info.LastModified)
	}
	return h
}

// UpdateFromResponse stores the ETag and Last-Modified of a response and
// marks the URL as seen now. On a 304 the server may omit validators; the
// previous ones are kept in that case.
func (p *Policy) UpdateFromResponse(ctx context.Context, url string, header http.Header, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	info := &egress.RevisitInfo{
		URL:          url,
		ETag:         header.Get("ETag"),
		LastModified: header.Get("Last-Modified"),
		LastSeen:     p.now(),
		TTL:          ttl,
	}
	if info.ETag == "" || info.LastModified == "" {
		if prev := p.find(ctx, url); prev != nil {
			if info.ETag == "" {
				info.ETag = prev.ETag
			}
			if info.LastModified == "" {
				info.LastModified = prev.LastModified
			}
		}
	}
	if err := p.store.SaveRevisit(ctx, info); err != nil {
		p.logger.Warn("revisit save failed", "url", url, "err", err)
		return err
	}
	return nil
}

// ShouldRevisit reports whether a page with this record is due: when no
// record exists or more than TTL has passed since it was last seen.
func (p *Policy) ShouldRevisit(info *egress.RevisitInfo) bool {
	if info == nil {
		return true
	}
	return p.now().Sub(info.LastSeen) > info.TTL
}

// Due reports whether url should be fetched again.
func (p *Policy) Due(ctx context.Context, url string) bool {
	return p.ShouldRevisit(p.find(ctx, url))
}

func (p *Policy) find(ctx context.Context, url string) *egress.RevisitInfo {
	info, err := p.store.FindRevisit(ctx, url)
	if err != nil {
		if egress.ErrorCode(err) != egress.ENOTFOUND {
			p.logger.Warn("revisit lookup failed", "url", url, "err", err)
		}
		return nil
	}
	return info
}
