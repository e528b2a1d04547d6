package egress

import "context"

// PageStore persists the bodies of crawled pages with atomic semantics.
// SavePage writes to a pending location; Commit makes the whole crawl
// visible at once; Abort discards it.
type PageStore interface {
	SavePage(ctx context.Context, url string, body []byte) error
	Commit() error
	Abort() error
}
