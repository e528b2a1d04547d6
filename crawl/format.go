package crawl

import (
	"fmt"
	"strings"
)

// TruncateURL shortens a URL for display, keeping its informative tail.
func TruncateURL(url string, maxLen int) string {
	switch {
	case maxLen <= 0:
		return ""
	case len(url) <= maxLen:
		return url
	case maxLen < 4:
		return url[:maxLen]
	}
	return "..." + url[len(url)-maxLen+3:]
}

// FormatBytes formats bytes in human-readable form.
func FormatBytes(bytes int) string {
	const (
		KB = 1024
		MB = KB * 1024
	)
	switch {
	case bytes >= MB:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(MB))
	case bytes >= KB:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(KB))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}

// FormatSummary renders the outcome counters of a session on one line.
// Zero counters other than fetched are omitted.
func FormatSummary(r *SessionResult) string {
	bytes := 0
	for _, p := range r.Pages {
		bytes += p.Bytes
	}
	parts := []string{fmt.Sprintf("%d fetched (%s)", r.Fetched, FormatBytes(bytes))}
	for _, c := range []struct {
		n     int
		label string
	}{
		{r.Duplicates, "duplicate"},
		{r.NotModified, "not modified"},
		{r.Skipped, "not due"},
		{r.Blocked, "blocked by robots.txt"},
		{r.Failed, "failed"},
	} {
		if c.n > 0 {
			parts = append(parts, fmt.Sprintf("%d %s", c.n, c.label))
		}
	}
	return strings.Join(parts, ", ")
}
