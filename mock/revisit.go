package mock

import (
	"context"
	"net/http"
	"time"

	"github.com/fwojciec/egress"
)

var _ egress.RevisitStore = (*RevisitStore)(nil)

// RevisitStore is a mock implementation of egress.RevisitStore.
type RevisitStore struct {
	FindRevisitFn   func(ctx context.Context, url string) (*egress.RevisitInfo, error)
	SaveRevisitFn   func(ctx context.Context, info *egress.RevisitInfo) error
	DeleteRevisitFn func(ctx context.Context, url string) error
}

func (s *RevisitStore) FindRevisit(ctx context.Context, url string) (*egress.RevisitInfo, error) {
	return s.FindRevisitFn(ctx, url)
}

func (s *RevisitStore) SaveRevisit(ctx context.Context, info *egress.RevisitInfo) error {
	return s.SaveRevisitFn(ctx, info)
}

func (s *RevisitStore) DeleteRevisit(ctx context.Context, url string) error {
	return s.DeleteRevisitFn(ctx, url)
}

var _ egress.RevisitPolicy = (*RevisitPolicy)(nil)

// RevisitPolicy is a mock implementation of egress.RevisitPolicy.
type RevisitPolicy struct {
	ConditionalHeadersFn func(ctx context.Context, url string) http.Header
	UpdateFromResponseFn func(ctx context.Context, url string, header http.Header, ttl time.Duration) error
	DueFn                func(ctx context.Context, url string) bool
}

func (p *RevisitPolicy) ConditionalHeaders(ctx context.Context, url string) http.Header {
	return p.ConditionalHeadersFn(ctx, url)
}

func (p *RevisitPolicy) UpdateFromResponse(ctx context.Context, url string, header http.Header, ttl time.Duration) error {
	return p.UpdateFromResponseFn(ctx, url, header, ttl)
}

func (p *RevisitPolicy) Due(ctx context.Context, url string) bool {
	return p.DueFn(ctx, url)
}

var _ egress.ContentDeduplicator = (*ContentDeduplicator)(nil)

// ContentDeduplicator is a mock implementation of egress.ContentDeduplicator.
type ContentDeduplicator struct {
	IsDuplicateFn     func(url, html string) (string, bool)
	HasProcessedURLFn func(url string) bool
}

func (d *ContentDeduplicator) IsDuplicate(url, html string) (string, bool) {
	return d.IsDuplicateFn(url, html)
}

func (d *ContentDeduplicator) HasProcessedURL(url string) bool {
	return d.HasProcessedURLFn(url)
}
