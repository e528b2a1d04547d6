package egress

import (
	"context"
	"net/http"
	"time"
)

// Request describes an outbound HTTP request made on behalf of the crawler.
type Request struct {
	URL    string
	Method string // defaults to GET
	Header http.Header
}

// Response is a fully-read HTTP response.
type Response struct {
	URL        string
	StatusCode int
	Header     http.Header
	Body       []byte
	Duration   time.Duration

	// NotModified is true for a 304 answer to a conditional request.
	// Callers should skip re-processing.
	NotModified bool
}

// Fetcher performs outbound HTTP requests.
type Fetcher interface {
	// Fetch performs the request.
	// Responses with status >= 400 are returned along with a classified
	// error (ETRANSIENT or EPERMANENT).
	Fetch(ctx context.Context, req *Request) (*Response, error)
}

// FetchOutcome labels the result of a fetch for metrics.
type FetchOutcome string

// Fetch outcomes.
const (
	OutcomeOK          FetchOutcome = "ok"
	OutcomeNotModified FetchOutcome = "not_modified"
	OutcomeBlocked     FetchOutcome = "blocked"
	OutcomeTransient   FetchOutcome = "transient"
	OutcomePermanent   FetchOutcome = "permanent"
	OutcomeTimeout     FetchOutcome = "timeout"
	OutcomeNetwork     FetchOutcome = "network"
	OutcomeCircuitOpen FetchOutcome = "circuit_open"
	OutcomeRateLimited FetchOutcome = "rate_limited"
)

// FetchObserver records latency and outcome of outbound fetches.
type FetchObserver interface {
	ObserveFetch(host, method string, outcome FetchOutcome, d time.Duration)
}
