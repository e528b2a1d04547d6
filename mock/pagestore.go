package mock

import (
	"context"

	"github.com/fwojciec/egress"
)

var _ egress.PageStore = (*PageStore)(nil)

// PageStore is a mock implementation of egress.PageStore.
type PageStore struct {
	SavePageFn func(ctx context.Context, url string, body []byte) error
	CommitFn   func() error
	AbortFn    func() error
}

func (s *PageStore) SavePage(ctx context.Context, url string, body []byte) error {
	return s.SavePageFn(ctx, url, body)
}

func (s *PageStore) Commit() error {
	return s.CommitFn()
}

func (s *PageStore) Abort() error {
	return s.AbortFn()
}
