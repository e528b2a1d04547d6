package bloom_test

import (
	"fmt"
	"testing"

	"github.com/fwojciec/egress/bloom"
	"github.com/stretchr/testify/assert"
)

func TestFilter_TestAndAdd(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)

	assert.False(t, f.Test("https://example.com/page1"))
	assert.False(t, f.TestAndAdd("https://example.com/page1"))
	assert.True(t, f.Test("https://example.com/page1"))
	assert.True(t, f.TestAndAdd("https://example.com/page1"))
	assert.False(t, f.Test("https://example.com/page2"))
}

func TestFilter_Added(t *testing.T) {
	t.Parallel()

	f := bloom.NewFilter(1000, 0.01)
	assert.Zero(t, f.Added())

	f.TestAndAdd("https://example.com/a")
	f.TestAndAdd("https://example.com/b")
	f.TestAndAdd("https://example.com/a")

	assert.Equal(t, uint(2), f.Added())
}

func TestFilter_FalsePositiveRate(t *testing.T) {
	t.Parallel()

	const (
		numItems   = 10000
		fpRate     = 0.01
		testProbes = 10000
	)

	f := bloom.NewFilter(numItems, fpRate)
	assert.Zero(t, f.FalsePositiveRate())

	for i := range numItems {
		f.TestAndAdd(fmt.Sprintf("https://example.com/added/%d", i))
	}

	falsePositives := 0
	for i := range testProbes {
		if f.Test(fmt.Sprintf("https://example.com/notadded/%d", i)) {
			falsePositives++
		}
	}

	// Allow 2x the target to absorb statistical variance.
	actual := float64(falsePositives) / float64(testProbes)
	assert.Less(t, actual, 2*fpRate, "observed false positive rate %f", actual)
	assert.InDelta(t, fpRate, f.FalsePositiveRate(), fpRate)
}
