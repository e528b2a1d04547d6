package egress

// ContentDeduplicator detects pages whose content was already seen under
// another URL.
type ContentDeduplicator interface {
	// IsDuplicate records the page and reports whether its normalized
	// content was first seen under a different URL, returning that URL.
	IsDuplicate(url string, html string) (original string, duplicate bool)

	// HasProcessedURL reports whether the URL was ever passed to IsDuplicate.
	HasProcessedURL(url string) bool
}
