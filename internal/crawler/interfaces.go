package crawler

import (
	"context"
)

// Crawler defines the main crawling interface
type Crawler interface {
	Run(ctx context.Context) (CrawlStats, error)
	Close() error
}

// Fetcher performs a single GET. Failures are reported as *FetchError.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchResult, error)
}

// Policy answers robots.txt allow/disallow queries
type Policy interface {
	IsAllowed(ctx context.Context, url string) bool
}

// LinkExtractor returns in-scope absolute links of an HTML body
type LinkExtractor interface {
	Extract(baseURL string, body []byte) ([]string, error)
}

// EventSink consumes per-page events in dequeue order
type EventSink interface {
	Consume(ctx context.Context, evt CrawlEvent) error
}

// EventSinkFunc adapts a function to EventSink
type EventSinkFunc func(ctx context.Context, evt CrawlEvent) error

// Consume calls f(ctx, evt)
func (f EventSinkFunc) Consume(ctx context.Context, evt CrawlEvent) error {
	return f(ctx, evt)
}
