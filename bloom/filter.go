// Package bloom tracks the URLs a crawl has already queued.
package bloom

import (
	"math"

	"github.com/bits-and-blooms/bloom/v3"
)

// Filter is a Bloom filter over URL strings. A URL reported as unseen was
// never added; a URL reported as seen may be a false positive.
// Filter is not safe for concurrent use.
type Filter struct {
	f     *bloom.BloomFilter
	added uint
}

// NewFilter creates a filter sized for n expected URLs at the given false
// positive rate.
func NewFilter(n uint, fpRate float64) *Filter {
	return &Filter{
		f: bloom.NewWithEstimates(n, fpRate),
	}
}

// TestAndAdd reports whether url may have been added before and adds it.
func (f *Filter) TestAndAdd(url string) bool {
	if f.f.TestAndAddString(url) {
		return true
	}
	f.added++
	return false
}

// Test reports whether url may have been added.
func (f *Filter) Test(url string) bool {
	return f.f.TestString(url)
}

// Added returns the number of URLs that TestAndAdd accepted as new.
func (f *Filter) Added() uint {
	return f.added
}

// FalsePositiveRate estimates the probability that an unseen URL currently
// tests as seen, given how many URLs have been added.
func (f *Filter) FalsePositiveRate() float64 {
	m := float64(f.f.Cap())
	k := float64(f.f.K())
	n := float64(f.added)
	return math.Pow(1-math.Exp(-k*n/m), k)
}
