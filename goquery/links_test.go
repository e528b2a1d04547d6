package goquery_test

import (
	"testing"

	"github.com/fwojciec/egress"
	"github.com/fwojciec/egress/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLinkExtractor_ExtractLinks(t *testing.T) {
	t.Parallel()

	t.Run("labels regions and keeps first occurrence", func(t *testing.T) {
		t.Parallel()

		html := `<html><body>
<nav><a href="/docs/intro">Intro</a><a href="/docs/api">API</a></nav>
<aside class="sidebar"><a href="/docs/api">API   Reference</a></aside>
<main><a href="guide">Guide</a><a href="/docs/intro#install">Install</a></main>
<footer><a href="/about">About</a></footer>
<div><a href="/loose">Loose</a></div>
</body></html>`

		links, err := goquery.NewLinkExtractor().ExtractLinks(html, "https://example.com/docs/")
		require.NoError(t, err)

		assert.Equal(t, []egress.DiscoveredLink{
			{URL: "https://example.com/docs/api", Text: "API Reference", Source: "toc"},
			{URL: "https://example.com/docs/intro", Text: "Intro", Source: "nav"},
			{URL: "https://example.com/docs/guide", Text: "Guide", Source: "content"},
			{URL: "https://example.com/about", Text: "About", Source: "footer"},
			{URL: "https://example.com/loose", Text: "Loose", Source: "body"},
		}, links)
	})

	t.Run("skips external, self and non-http links", func(t *testing.T) {
		t.Parallel()

		html := `<a href="https://other.com/x">x</a>
<a href="https://sub.example.com/y">y</a>
<a href="#top">top</a>
<a href="mailto:a@example.com">mail</a>
<a href="javascript:void(0)">js</a>
<a href="ftp://example.com/file">ftp</a>
<a href="/ok">ok</a>`

		links, err := goquery.NewLinkExtractor().ExtractLinks(html, "https://example.com/page")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "https://example.com/ok", links[0].URL)
	})

	t.Run("honours base href", func(t *testing.T) {
		t.Parallel()

		html := `<html><head><base href="/v2/"></head><body><a href="start">s</a></body></html>`

		links, err := goquery.NewLinkExtractor().ExtractLinks(html, "https://example.com/index.html")
		require.NoError(t, err)
		require.Len(t, links, 1)
		assert.Equal(t, "https://example.com/v2/start", links[0].URL)
	})

	t.Run("rejects invalid base url", func(t *testing.T) {
		t.Parallel()

		_, err := goquery.NewLinkExtractor().ExtractLinks("<a href='/x'>x</a>", "://bad")
		assert.Equal(t, egress.EINVALID, egress.ErrorCode(err))
	})
}
