// Package crawler provides the core web crawling functionality.
// It implements a single-domain, breadth-first crawler with rate limiting,
// robots.txt compliance and a per-page event stream.
package crawler

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/masahif/dataexplore/internal/config"
	"github.com/masahif/dataexplore/internal/parser"
)

// Components are the collaborators of an Engine. Nil fields are built from
// the configuration.
type Components struct {
	Fetcher   Fetcher
	Policy    Policy
	Extractor LinkExtractor
	Limiter   *RateLimiter
	Sink      EventSink
	Logger    *slog.Logger
	Now       func() time.Time
}

var _ Crawler = (*Engine)(nil)

// Engine drives the crawl: dequeue, robots check, fetch, extract, enqueue,
// emit, pace. It is not safe for concurrent use.
type Engine struct {
	seed      string
	domain    string
	maxPages  int
	linkCap   int
	frontier  *Frontier
	policy    Policy
	processor *PageProcessor
	limiter   *RateLimiter
	sink      EventSink
	logger    *slog.Logger
	now       func() time.Time
	client    *HTTPClient // Owned client, nil when a Fetcher was supplied

	// State
	count int
	stats CrawlStats
}

// NewEngine creates a crawl engine for cfg. The seed URL is normalized and
// placed in the frontier.
func NewEngine(cfg *config.CrawlConfig, c Components) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	seed, err := parser.NormalizeURL(cfg.SeedURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", config.ErrInvalidSeedURL, err)
	}

	logger := c.Logger
	if logger == nil {
		logger = slog.Default()
	}
	now := c.Now
	if now == nil {
		now = time.Now
	}

	e := &Engine{
		seed:     seed,
		domain:   cfg.TargetDomain,
		maxPages: cfg.MaxPages,
		linkCap:  cfg.PerPageLinkCap,
		frontier: NewFrontier(),
		sink:     c.Sink,
		logger:   logger,
		now:      now,
	}

	fetcher := c.Fetcher
	if fetcher == nil || c.Policy == nil {
		e.client = NewHTTPClient(HTTPClientOptions{
			UserAgent:       cfg.UserAgent,
			Timeout:         cfg.RequestTimeout,
			MaxConnsPerHost: cfg.MaxConnsPerHost,
			MaxRetries:      cfg.MaxRetries,
			MaxBodySize:     cfg.MaxBodySize,
		})
	}
	if fetcher == nil {
		fetcher = e.client
	}

	e.policy = c.Policy
	if e.policy == nil {
		e.policy = NewRobotsPolicy(e.client, RobotsOptions{
			Agent:   cfg.RobotsAgent(),
			Timeout: cfg.RobotsTimeout,
			Respect: cfg.RespectRobots,
			Logger:  logger,
		})
	}

	extractor := c.Extractor
	if extractor == nil {
		extractor = parser.NewLinkExtractor(parser.NewDomainScope(cfg.TargetDomain, cfg.MatchRegisteredDomain))
	}
	e.processor = NewPageProcessor(fetcher, extractor, logger)

	e.limiter = c.Limiter
	if e.limiter == nil {
		e.limiter = NewRateLimiter(cfg.RequestInterval)
	}

	if e.sink == nil {
		e.sink = EventSinkFunc(func(context.Context, CrawlEvent) error { return nil })
	}

	e.frontier.Enqueue(seed)
	return e, nil
}

// Frontier exposes the engine's URL queue
func (e *Engine) Frontier() *Frontier {
	return e.frontier
}

// Run crawls until the page budget is spent, the frontier is empty or ctx
// is cancelled. On cancellation the stats so far are returned with ctx.Err().
func (e *Engine) Run(ctx context.Context) (CrawlStats, error) {
	e.stats = CrawlStats{StartTime: e.now()}
	e.logger.Info("Starting crawler", "seed", e.seed, "domain", e.domain, "max_pages", e.maxPages, "interval", e.limiter.Interval())

	for {
		if err := ctx.Err(); err != nil {
			e.logger.Info("Crawling cancelled", "processed", e.count, "error", err)
			return e.finish(), err
		}

		if e.count >= e.maxPages {
			e.logger.Info("Reached page limit", "limit", e.maxPages)
			break
		}

		url, ok := e.frontier.Dequeue()
		if !ok {
			e.logger.Info("Queue exhausted", "processed", e.count)
			break
		}

		if e.frontier.HasVisited(url) {
			continue
		}

		// Marked up front so a page linking to itself does not requeue itself
		e.frontier.MarkVisited(url)
		evt, started := e.visit(ctx, url)

		e.count++
		evt.Sequence = e.count
		evt.At = e.now().UTC()
		e.record(evt)
		e.emit(ctx, evt)

		// Blocked URLs made no request and are not paced
		if !started {
			continue
		}

		if _, err := e.limiter.Pause(ctx); err != nil {
			e.logger.Info("Crawling cancelled", "processed", e.count, "error", err)
			return e.finish(), err
		}
	}

	stats := e.finish()
	e.logger.Info("Crawling completed",
		"processed", stats.PagesProcessed,
		"blocked", stats.PagesBlocked,
		"errors", stats.PagesFailed,
		"enqueued", stats.LinksEnqueued,
		"pending", stats.Pending,
		"duration", stats.Duration)
	return stats, nil
}

// visit runs the robots check, fetch and link extraction for one URL.
// started reports whether a request was issued.
func (e *Engine) visit(ctx context.Context, url string) (evt CrawlEvent, started bool) {
	evt = CrawlEvent{URL: url, Allowed: true}
	var start time.Time

	defer func() {
		if r := recover(); r != nil {
			e.logger.Error("Recovered from panic while processing URL", "url", url, "panic", r)
			evt.Outcome = OutcomeError
			evt.StatusCode = 0
			evt.LinkCount = 0
			evt.Enqueued = 0
			evt.ErrorKind = ErrorKindOther
			evt.ErrorMsg = fmt.Sprintf("panic: %v", r)
			if started {
				evt.Elapsed = e.now().Sub(start)
			}
		}
	}()

	if !e.policy.IsAllowed(ctx, url) {
		e.logger.Info("URL disallowed by robots.txt", "url", url)
		evt.Outcome = OutcomeBlocked
		evt.Allowed = false
		return evt, false
	}

	start = e.limiter.Begin()
	started = true

	result, err := e.processor.Process(ctx, url)
	if err != nil {
		fetchErr := AsFetchError(url, e.now().Sub(start), err)
		e.logger.Warn("Failed to fetch URL", "url", url, "kind", fetchErr.Kind, "elapsed", fetchErr.Elapsed, "error", fetchErr.Err)
		evt.Outcome = OutcomeError
		evt.Elapsed = fetchErr.Elapsed
		evt.ErrorKind = fetchErr.Kind
		evt.ErrorMsg = errorMessage(fetchErr)
		return evt, true
	}

	evt.Outcome = OutcomeStatus
	evt.StatusCode = result.Fetch.StatusCode
	evt.Elapsed = result.Fetch.Elapsed
	evt.Size = int64(len(result.Fetch.Body))
	evt.LinkCount = len(result.Links)
	evt.Enqueued = e.frontier.Offer(result.Links, e.linkCap)

	e.logger.Info("Processed URL", "url", url, "status", evt.StatusCode, "elapsed", evt.Elapsed, "links", evt.LinkCount, "enqueued", evt.Enqueued)
	return evt, true
}

// emit hands evt to the sink. Sink failures never stop the crawl.
func (e *Engine) emit(ctx context.Context, evt CrawlEvent) {
	if err := e.sink.Consume(ctx, evt); err != nil {
		e.logger.Error("Failed to record event", "sequence", evt.Sequence, "url", evt.URL, "error", err)
	}
}

func (e *Engine) record(evt CrawlEvent) {
	e.stats.PagesProcessed++
	e.stats.LinksEnqueued += evt.Enqueued
	switch evt.Outcome {
	case OutcomeBlocked:
		e.stats.PagesBlocked++
	case OutcomeError:
		e.stats.PagesFailed++
	}
}

func (e *Engine) finish() CrawlStats {
	e.stats.Pending = e.frontier.Len()
	e.stats.Duration = e.now().Sub(e.stats.StartTime)
	return e.stats
}

// Stats returns the statistics of the current or last run
func (e *Engine) Stats() CrawlStats {
	stats := e.stats
	stats.Pending = e.frontier.Len()
	return stats
}

// Close releases the engine's HTTP connections
func (e *Engine) Close() error {
	if e.client != nil {
		e.client.Close()
	}
	return nil
}

func errorMessage(err *FetchError) string {
	if err.Err == nil {
		return string(err.Kind)
	}
	return err.Err.Error()
}
