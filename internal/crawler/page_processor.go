package crawler

import (
	"context"
	"log/slog"
	"strings"
)

// PageResult is a fetched page together with its in-scope links
type PageResult struct {
	Fetch *FetchResult
	Links []string // In document order, duplicates kept, before the per-page cap
}

// PageProcessor fetches a page and extracts its links
type PageProcessor struct {
	fetcher   Fetcher
	extractor LinkExtractor
	logger    *slog.Logger
}

// NewPageProcessor creates a new page processor
func NewPageProcessor(fetcher Fetcher, extractor LinkExtractor, logger *slog.Logger) *PageProcessor {
	if logger == nil {
		logger = slog.Default()
	}
	return &PageProcessor{
		fetcher:   fetcher,
		extractor: extractor,
		logger:    logger,
	}
}

// Process processes a single page. A failed fetch is returned as *FetchError;
// parse problems only reduce the number of links.
func (p *PageProcessor) Process(ctx context.Context, url string) (*PageResult, error) {
	resp, err := p.fetcher.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}

	result := &PageResult{
		Fetch: resp,
		Links: []string{},
	}

	// Only parse HTML content
	if !isHTML(resp.ContentType) {
		p.logger.Debug("Skipping HTML parsing", "url", url, "content_type", resp.ContentType, "status_code", resp.StatusCode)
		return result, nil
	}

	base := resp.FinalURL
	if base == "" {
		base = url
	}

	links, err := p.extractor.Extract(base, resp.Body)
	if err != nil {
		p.logger.Debug("Link extraction failed", "url", url, "base", base, "error", err)
		return result, nil
	}

	p.logger.Debug("Found links", "url", url, "links_count", len(links))
	result.Links = links
	return result, nil
}

// isHTML reports whether a Content-Type should be parsed for links.
// A missing header is treated as HTML.
func isHTML(contentType string) bool {
	if contentType == "" {
		return true
	}
	ct := strings.ToLower(strings.TrimSpace(contentType))
	return strings.HasPrefix(ct, "text/html") ||
		strings.HasPrefix(ct, "application/xhtml+xml")
}
