package crawl

import (
	"container/heap"
	"sync"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/bloom"
)

// Compile-time interface verification.
var _ egress.URLFrontier = (*Frontier)(nil)

// Frontier is an in-memory URL frontier ordered by link graph score, with
// Bloom filter deduplication. It is safe for concurrent use by multiple
// goroutines.
type Frontier struct {
	mu    sync.Mutex
	seen  *bloom.Filter
	queue *scoredHeap
}

// NewFrontier creates a new Frontier sized for n expected URLs
// with the given false positive rate for deduplication.
func NewFrontier(n uint, fpRate float64) *Frontier {
	h := &scoredHeap{}
	heap.Init(h)
	return &Frontier{
		seen:  bloom.NewFilter(n, fpRate),
		queue: h,
	}
}

// Push adds a candidate to the frontier.
// Returns false if the URL has already been seen.
// URLs are normalized before deduplication, so URLs differing only by
// fragment, host case or trailing slash are duplicates.
func (f *Frontier) Push(candidate egress.ScoredURL) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	candidate.URL = NormalizeURL(candidate.URL)
	if f.seen.TestAndAdd(candidate.URL) {
		return false
	}
	heap.Push(f.queue, candidate)
	return true
}

// Pop returns the highest scoring candidate.
// The bool result is false if the frontier is empty.
func (f *Frontier) Pop() (egress.ScoredURL, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.queue.Len() == 0 {
		return egress.ScoredURL{}, false
	}
	c, _ := heap.Pop(f.queue).(egress.ScoredURL)
	return c, true
}

// Rescore replaces the scores of queued candidates found in ranked and
// restores heap order. Unknown URLs are ignored.
func (f *Frontier) Rescore(ranked []egress.ScoredURL) {
	byURL := make(map[string]egress.ScoredURL, len(ranked))
	for _, r := range ranked {
		byURL[NormalizeURL(r.URL)] = r
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for i, q := range *f.queue {
		if r, ok := byURL[q.URL]; ok {
			r.URL = q.URL
			(*f.queue)[i] = r
		}
	}
	heap.Init(f.queue)
}

// Len returns the number of URLs in the queue.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queue.Len()
}

// Seen returns true if the URL has been processed or queued.
func (f *Frontier) Seen(rawURL string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen.Test(NormalizeURL(rawURL))
}

// SeenCount returns the number of distinct URLs ever accepted and the
// estimated chance that a new URL is wrongly rejected as seen.
func (f *Frontier) SeenCount() (uint, float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.seen.Added(), f.seen.FalsePositiveRate()
}

// scoredHeap is a max-heap on Score; equal scores pop in URL order.
type scoredHeap []egress.ScoredURL

func (h scoredHeap) Len() int { return len(h) }

func (h scoredHeap) Less(i, j int) bool {
	if h[i].Score != h[j].Score {
		return h[i].Score > h[j].Score
	}
	return h[i].URL < h[j].URL
}

func (h scoredHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *scoredHeap) Push(x any) {
	c, _ := x.(egress.ScoredURL)
	*h = append(*h, c)
}

func (h *scoredHeap) Pop() any {
	old := *h
	n := len(old)
	x := old[n-1]
	*h = old[0 : n-1]
	return x
}
