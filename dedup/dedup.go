// Package dedup detects pages whose content was already seen under another URL.
package dedup

import (
	"crypto/sha256"
	"encoding/hex"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fwojciec/egress"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"golang.org/x/net/html"
)

const (
	// DefaultCapacity is the number of content hashes remembered.
	DefaultCapacity = 10000

	// DefaultTTL is how long a content hash is remembered.
	DefaultTTL = 24 * time.Hour
)

var _ egress.ContentDeduplicator = (*Deduplicator)(nil)

// HashEntry records the first URL seen with a content hash.
type HashEntry struct {
	Hash      string
	URL       string
	Timestamp time.Time
}

// Deduplicator compares pages by a hash of their normalized HTML.
// It is safe for concurrent use.
type Deduplicator struct {
	mu        sync.Mutex
	hashes    *expirable.LRU[string, HashEntry]
	urlToHash map[string]string
	now       func() time.Time
}

// Option configures a Deduplicator.
type Option func(*config)

type config struct {
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// WithCapacity sets how many hashes are kept. Defaults to DefaultCapacity.
func WithCapacity(n int) Option {
	return func(c *config) {
		c.capacity = n
	}
}

// WithTTL sets how long hashes are kept. Defaults to DefaultTTL.
func WithTTL(d time.Duration) Option {
	return func(c *config) {
		c.ttl = d
	}
}

// WithClock replaces time.Now for entry timestamps.
func WithClock(now func() time.Time) Option {
	return func(c *config) {
		c.now = now
	}
}

// New creates a Deduplicator.
func New(opts ...Option) *Deduplicator {
	cfg := config{capacity: DefaultCapacity, ttl: DefaultTTL, now: time.Now}
	for _, opt := range opts {
		opt(&cfg)
	}
	return &Deduplicator{
		hashes:    expirable.NewLRU[string, HashEntry](cfg.capacity, nil, cfg.ttl),
		urlToHash: make(map[string]string),
		now:       cfg.now,
	}
}

// IsDuplicate records url and reports whether the same normalized content
// was first seen under a different URL, returning that URL. A duplicate hit
// leaves the remembered entry untouched.
func (d *Deduplicator) IsDuplicate(url, rawHTML string) (string, bool) {
	h := Hash(rawHTML)

	d.mu.Lock()
	defer d.mu.Unlock()

	d.urlToHash[url] = h
	if e, ok := d.hashes.Peek(h); ok {
		if e.URL == url {
			return "", false
		}
		return e.URL, true
	}
	d.hashes.Add(h, HashEntry{Hash: h, URL: url, Timestamp: d.now()})
	return "", false
}

// HasProcessedURL reports whether url was ever passed to IsDuplicate.
func (d *Deduplicator) HasProcessedURL(url string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.urlToHash[url]
	return ok
}

// DuplicateGroups returns, per content hash shared by two or more URLs,
// the URLs carrying it. The first URL seen with the content comes first
// when it is still remembered; the rest are sorted.
func (d *Deduplicator) DuplicateGroups() map[string][]string {
	d.mu.Lock()
	defer d.mu.Unlock()

	byHash := make(map[string][]string)
	for u, h := range d.urlToHash {
		byHash[h] = append(byHash[h], u)
	}

	groups := make(map[string][]string)
	for h, urls := range byHash {
		if len(urls) < 2 {
			continue
		}
		sort.Strings(urls)
		if e, ok := d.hashes.Peek(h); ok {
			for i, u := range urls {
				if u == e.URL {
					copy(urls[1:i+1], urls[:i])
					urls[0] = e.URL
					break
				}
			}
		}
		groups[h] = urls
	}
	return groups
}

// Len returns the number of remembered content hashes.
func (d *Deduplicator) Len() int {
	return d.hashes.Len()
}

// Hash returns the hex SHA-256 of the normalized form of rawHTML.
func Hash(rawHTML string) string {
	sum := sha256.Sum256([]byte(Normalize(rawHTML)))
	return hex.EncodeToString(sum[:])
}

// Normalize reduces HTML to a canonical form: comments, <script> and <style>
// elements, style attributes and data-* attributes are removed, runs of
// whitespace collapse to one space, and everything is lowercased.
func Normalize(rawHTML string) string {
	var b strings.Builder
	z := html.NewTokenizer(strings.NewReader(rawHTML))
	skip := ""
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			// io.EOF, or malformed input: keep what was tokenized so far.
			break
		}
		tok := z.Token()
		if skip != "" {
			if tt == html.EndTagToken && tok.Data == skip {
				skip = ""
			}
			continue
		}

		switch tt {
		case html.CommentToken, html.DoctypeToken:
		case html.StartTagToken, html.SelfClosingTagToken:
			if tok.Data == "script" || tok.Data == "style" {
				if tt == html.StartTagToken {
					skip = tok.Data
				}
				continue
			}
			b.WriteString(" <")
			b.WriteString(tok.Data)
			for _, a := range tok.Attr {
				key := strings.ToLower(a.Key)
				if key == "style" || strings.HasPrefix(key, "data-") {
					continue
				}
				b.WriteString(" ")
				b.WriteString(key)
				b.WriteString(`="`)
				b.WriteString(a.Val)
				b.WriteString(`"`)
			}
			b.WriteString("> ")
		case html.EndTagToken:
			b.WriteString(" </")
			b.WriteString(tok.Data)
			b.WriteString("> ")
		case html.TextToken:
			b.WriteString(tok.Data)
		}
	}
	return strings.ToLower(strings.Join(strings.Fields(b.String()), " "))
}
