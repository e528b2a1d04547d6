package mock

import (
	"context"
	"time"

	"github.com/fwojciec/egress"
)

var _ egress.Fetcher = (*Fetcher)(nil)

// Fetcher is a mock implementation of egress.Fetcher.
type Fetcher struct {
	FetchFn func(ctx context.Context, req *egress.Request) (*egress.Response, error)
}

func (f *Fetcher) Fetch(ctx context.Context, req *egress.Request) (*egress.Response, error) {
	return f.FetchFn(ctx, req)
}

var _ egress.FetchObserver = (*FetchObserver)(nil)

// FetchObserver is a mock implementation of egress.FetchObserver.
type FetchObserver struct {
	ObserveFetchFn func(host, method string, outcome egress.FetchOutcome, d time.Duration)
}

func (o *FetchObserver) ObserveFetch(host, method string, outcome egress.FetchOutcome, d time.Duration) {
	o.ObserveFetchFn(host, method, outcome, d)
}
