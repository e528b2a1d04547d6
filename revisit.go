package egress

import (
	"context"
	"net/http"
	"time"
)

// RevisitInfo holds the cache validators last seen for a URL.
type RevisitInfo struct {
	URL          string        `json:"url"`
	ETag         string        `json:"etag,omitempty"`
	LastModified string        `json:"lastModified,omitempty"`
	LastSeen     time.Time     `json:"lastSeen"`
	TTL          time.Duration `json:"ttl"`
}

// Validate returns an error if the record contains invalid fields.
func (i *RevisitInfo) Validate() error {
	if i.URL == "" {
		return Errorf(EINVALID, "revisit URL required")
	}
	if i.TTL < 0 {
		return Errorf(EINVALID, "revisit TTL must not be negative")
	}
	return nil
}

// RevisitStore persists revisit records.
type RevisitStore interface {
	// FindRevisit returns the record for a URL.
	// Returns ENOTFOUND if no live record exists.
	FindRevisit(ctx context.Context, url string) (*RevisitInfo, error)

	// SaveRevisit creates or replaces the record for info.URL.
	SaveRevisit(ctx context.Context, info *RevisitInfo) error

	// DeleteRevisit removes the record for a URL. Missing records are not an error.
	DeleteRevisit(ctx context.Context, url string) error
}

// RevisitPolicy decides when and how to refetch a URL.
type RevisitPolicy interface {
	// ConditionalHeaders returns If-None-Match / If-Modified-Since for the URL.
	// The header is empty when nothing is known about the URL.
	ConditionalHeaders(ctx context.Context, url string) http.Header

	// UpdateFromResponse stores the validators found in a response header.
	UpdateFromResponse(ctx context.Context, url string, header http.Header, ttl time.Duration) error

	// Due reports whether the URL should be fetched again.
	Due(ctx context.Context, url string) bool
}
