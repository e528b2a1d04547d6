package crawl_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/crawl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrontier_Push_rejects_duplicate_URLs(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)

	assert.True(t, f.Push(egress.ScoredURL{URL: "https://example.com/docs/page1"}), "first push should succeed")
	assert.False(t, f.Push(egress.ScoredURL{URL: "https://example.com/docs/page1"}), "duplicate URL should be rejected")
	assert.False(t, f.Push(egress.ScoredURL{URL: "https://EXAMPLE.com/docs/page1/#top"}), "normalized duplicate should be rejected")
}

func TestFrontier_Pop_returns_highest_score_first(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)

	f.Push(egress.ScoredURL{URL: "https://example.com/footer", Score: 0.1})
	f.Push(egress.ScoredURL{URL: "https://example.com/nav", Score: 1.5})
	f.Push(egress.ScoredURL{URL: "https://example.com/b", Score: 0.9})
	f.Push(egress.ScoredURL{URL: "https://example.com/a", Score: 0.9})

	var got []string
	for {
		c, ok := f.Pop()
		if !ok {
			break
		}
		got = append(got, c.URL)
	}
	assert.Equal(t, []string{
		"https://example.com/nav",
		"https://example.com/a",
		"https://example.com/b",
		"https://example.com/footer",
	}, got)
}

func TestFrontier_Rescore_reorders_queue(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)
	f.Push(egress.ScoredURL{URL: "https://example.com/a", Score: 2})
	f.Push(egress.ScoredURL{URL: "https://example.com/b", Score: 1})

	f.Rescore([]egress.ScoredURL{
		{URL: "https://example.com/b", Score: 3, InDegree: 4},
		{URL: "https://example.com/unknown", Score: 9},
	})

	c, ok := f.Pop()
	require.True(t, ok)
	assert.Equal(t, "https://example.com/b", c.URL)
	assert.Equal(t, 4, c.InDegree)
	assert.Equal(t, 1, f.Len())
}

func TestFrontier_Len_tracks_queue_size(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)
	assert.Equal(t, 0, f.Len(), "new frontier should be empty")

	f.Push(egress.ScoredURL{URL: "https://example.com/a"})
	f.Push(egress.ScoredURL{URL: "https://example.com/b"})
	assert.Equal(t, 2, f.Len())

	f.Pop()
	f.Pop()
	assert.Equal(t, 0, f.Len())
}

func TestFrontier_Seen_tracks_all_pushed_URLs(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)
	assert.False(t, f.Seen("https://example.com/page"), "unseen URL should return false")

	f.Push(egress.ScoredURL{URL: "https://example.com/page"})
	f.Pop()
	assert.True(t, f.Seen("https://example.com/page"), "popped URL should still be seen")
	assert.True(t, f.Seen("https://example.com/page#section"))
}

func TestFrontier_SeenCount(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(1000, 0.01)
	f.Push(egress.ScoredURL{URL: "https://example.com/a"})
	f.Push(egress.ScoredURL{URL: "https://example.com/a/"})
	f.Push(egress.ScoredURL{URL: "https://example.com/b"})

	seen, fp := f.SeenCount()

	assert.Equal(t, uint(2), seen)
	assert.Greater(t, fp, 0.0)
	assert.Less(t, fp, 0.01)
}

func TestFrontier_concurrent_access(t *testing.T) {
	t.Parallel()

	f := crawl.NewFrontier(10000, 0.01)

	const numGoroutines = 10
	const numOpsPerGoroutine = 100

	var wg sync.WaitGroup
	wg.Add(numGoroutines * 2)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			for j := 0; j < numOpsPerGoroutine; j++ {
				f.Push(egress.ScoredURL{URL: fmt.Sprintf("https://example.com/%d/%d", id, j), Score: float64(j)})
			}
		}(i)
	}
	for i := 0; i < numGoroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < numOpsPerGoroutine; j++ {
				f.Pop()
				f.Len()
			}
		}()
	}
	wg.Wait()

	for i := 0; i < numGoroutines; i++ {
		for j := 0; j < numOpsPerGoroutine; j++ {
			url := fmt.Sprintf("https://example.com/%d/%d", i, j)
			assert.True(t, f.Seen(url), "pushed URL %s should be seen", url)
		}
	}
}
