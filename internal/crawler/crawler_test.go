package crawler

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/masahif/dataexplore/internal/config"
)

// fakePage describes how the fake site answers for one URL
type fakePage struct {
	status  int
	links   []string
	delay   time.Duration
	failure ErrorKind // non-empty makes the fetch fail
	panics  bool
}

// fakeFetcher serves a fixed site and advances the shared clock by each
// page's delay
type fakeFetcher struct {
	clock *fakeClock
	site  map[string]fakePage
	calls []string
}

func (f *fakeFetcher) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	f.calls = append(f.calls, url)
	page, ok := f.site[url]
	if !ok {
		page = fakePage{status: 404}
	}
	if page.panics {
		panic("fetcher exploded")
	}
	f.clock.Advance(page.delay)
	if page.failure != "" {
		return nil, &FetchError{URL: url, Kind: page.failure, Elapsed: page.delay, Err: errors.New(string(page.failure))}
	}
	return &FetchResult{
		URL:         url,
		FinalURL:    url,
		StatusCode:  page.status,
		ContentType: "text/html",
		Body:        []byte(strings.Join(page.links, "\n")),
		Elapsed:     page.delay,
	}, nil
}

// lineExtractor treats every non-empty body line as a link
type lineExtractor struct{}

func (lineExtractor) Extract(baseURL string, body []byte) ([]string, error) {
	links := []string{}
	for _, line := range strings.Split(string(body), "\n") {
		if line != "" {
			links = append(links, line)
		}
	}
	return links, nil
}

type fakePolicy struct {
	disallowed map[string]bool
	calls      int
}

func (p *fakePolicy) IsAllowed(ctx context.Context, url string) bool {
	p.calls++
	return !p.disallowed[url]
}

type recordingSink struct {
	events []CrawlEvent
	err    error
	after  func(CrawlEvent)
}

func (s *recordingSink) Consume(ctx context.Context, evt CrawlEvent) error {
	s.events = append(s.events, evt)
	if s.after != nil {
		s.after(evt)
	}
	return s.err
}

func (s *recordingSink) urls() []string {
	urls := make([]string, len(s.events))
	for i, evt := range s.events {
		urls[i] = evt.URL
	}
	return urls
}

type engineFixture struct {
	engine  *Engine
	clock   *fakeClock
	fetcher *fakeFetcher
	policy  *fakePolicy
	sink    *recordingSink
}

func newEngineFixture(t *testing.T, site map[string]fakePage, mutate func(cfg *config.CrawlConfig)) *engineFixture {
	t.Helper()

	cfg := config.DefaultConfig()
	cfg.SeedURL = "https://example.com/"
	cfg.TargetDomain = "example.com"
	if mutate != nil {
		mutate(cfg)
	}

	clock := newFakeClock()
	fx := &engineFixture{
		clock:   clock,
		fetcher: &fakeFetcher{clock: clock, site: site},
		policy:  &fakePolicy{disallowed: map[string]bool{}},
		sink:    &recordingSink{},
	}

	engine, err := NewEngine(cfg, Components{
		Fetcher:   fx.fetcher,
		Policy:    fx.policy,
		Extractor: lineExtractor{},
		Limiter:   newFakeLimiter(cfg.RequestInterval, clock),
		Sink:      fx.sink,
		Now:       clock.Now,
	})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	t.Cleanup(func() { _ = engine.Close() })

	fx.engine = engine
	return fx
}

const seed = "https://example.com/"

func page(path string) string {
	return "https://example.com" + path
}

func TestEngineBreadthFirstOrder(t *testing.T) {
	site := map[string]fakePage{
		seed:        {status: 200, links: []string{page("/a"), page("/b")}},
		page("/a"):  {status: 200, links: []string{page("/c"), page("/b")}},
		page("/b"):  {status: 200, links: []string{seed}},
		page("/c"):  {status: 200},
		page("/zz"): {status: 200},
	}
	fx := newEngineFixture(t, site, nil)

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	want := []string{seed, page("/a"), page("/b"), page("/c")}
	got := fx.sink.urls()
	if strings.Join(got, " ") != strings.Join(want, " ") {
		t.Errorf("Expected order %v, got %v", want, got)
	}

	for i, evt := range fx.sink.events {
		if evt.Sequence != i+1 {
			t.Errorf("Event %d has sequence %d", i, evt.Sequence)
		}
	}

	if stats.PagesProcessed != 4 {
		t.Errorf("Expected 4 pages processed, got %d", stats.PagesProcessed)
	}
	if stats.Pending != 0 {
		t.Errorf("Expected empty frontier, got %d pending", stats.Pending)
	}
}

func TestEngineRespectsPageBudget(t *testing.T) {
	links := make([]string, 20)
	site := map[string]fakePage{}
	for i := range links {
		links[i] = page(fmt.Sprintf("/p%d", i))
		site[links[i]] = fakePage{status: 200}
	}
	site[seed] = fakePage{status: 200, links: links}

	fx := newEngineFixture(t, site, func(cfg *config.CrawlConfig) {
		cfg.MaxPages = 5
	})

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(fx.sink.events) != 5 {
		t.Fatalf("Expected exactly 5 events, got %d", len(fx.sink.events))
	}
	for i, evt := range fx.sink.events {
		if evt.Sequence != i+1 {
			t.Errorf("Expected sequence %d, got %d", i+1, evt.Sequence)
		}
	}
	if len(fx.fetcher.calls) != 5 {
		t.Errorf("Expected 5 fetches, got %d", len(fx.fetcher.calls))
	}
	if stats.Pending != 16 {
		t.Errorf("Expected 16 URLs left pending, got %d", stats.Pending)
	}
}

func TestEngineBlockedURL(t *testing.T) {
	site := map[string]fakePage{
		seed:             {status: 200, links: []string{page("/private"), page("/public")}},
		page("/private"): {status: 200},
		page("/public"):  {status: 200},
	}
	fx := newEngineFixture(t, site, nil)
	fx.policy.disallowed[page("/private")] = true

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(fx.sink.events) != 3 {
		t.Fatalf("Expected 3 events, got %d", len(fx.sink.events))
	}

	blocked := fx.sink.events[1]
	if blocked.Outcome != OutcomeBlocked || blocked.Label() != "BLOCKED" {
		t.Errorf("Expected BLOCKED event, got %s", blocked.Label())
	}
	if blocked.Allowed || blocked.Elapsed != 0 || blocked.LinkCount != 0 {
		t.Errorf("Blocked event should have allowed=false, elapsed=0, links=0: %+v", blocked)
	}
	if blocked.Sequence != 2 {
		t.Errorf("Blocked URL should consume a page slot, got sequence %d", blocked.Sequence)
	}

	for _, call := range fx.fetcher.calls {
		if call == page("/private") {
			t.Error("Blocked URL must not be fetched")
		}
	}

	// Two fetched pages, each paced once; the blocked URL adds no sleep
	if len(fx.clock.sleeps) != 2 {
		t.Errorf("Expected 2 pauses, got %v", fx.clock.sleeps)
	}
	if stats.PagesBlocked != 1 {
		t.Errorf("Expected 1 blocked page, got %d", stats.PagesBlocked)
	}
}

func TestEnginePacing(t *testing.T) {
	tests := []struct {
		name        string
		delay       time.Duration
		failure     ErrorKind
		wantSleep   []time.Duration
		wantLabel   string
		wantElapsed time.Duration
	}{
		{
			name:        "fast page waits the rest of the interval",
			delay:       250 * time.Millisecond,
			wantSleep:   []time.Duration{750 * time.Millisecond},
			wantLabel:   "200",
			wantElapsed: 250 * time.Millisecond,
		},
		{
			name:        "timeout longer than interval never waits",
			delay:       3 * time.Second,
			failure:     ErrorKindTimeout,
			wantSleep:   nil,
			wantLabel:   "ERROR",
			wantElapsed: 3 * time.Second,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			site := map[string]fakePage{
				seed: {status: 200, delay: tt.delay, failure: tt.failure},
			}
			fx := newEngineFixture(t, site, nil)

			if _, err := fx.engine.Run(context.Background()); err != nil {
				t.Fatalf("Run() error = %v", err)
			}

			if len(fx.sink.events) != 1 {
				t.Fatalf("Expected 1 event, got %d", len(fx.sink.events))
			}
			evt := fx.sink.events[0]
			if evt.Label() != tt.wantLabel {
				t.Errorf("Expected label %s, got %s", tt.wantLabel, evt.Label())
			}
			if evt.Elapsed != tt.wantElapsed {
				t.Errorf("Expected elapsed %v, got %v", tt.wantElapsed, evt.Elapsed)
			}
			if !evt.Allowed {
				t.Error("Fetched URL should be marked allowed")
			}
			if len(fx.clock.sleeps) != len(tt.wantSleep) {
				t.Fatalf("Expected sleeps %v, got %v", tt.wantSleep, fx.clock.sleeps)
			}
			for i, d := range tt.wantSleep {
				if fx.clock.sleeps[i] != d {
					t.Errorf("Sleep %d: expected %v, got %v", i, d, fx.clock.sleeps[i])
				}
			}
		})
	}
}

func TestEngineFetchErrorContinues(t *testing.T) {
	site := map[string]fakePage{
		seed:          {status: 200, links: []string{page("/down"), page("/up")}},
		page("/down"): {failure: ErrorKindConnection, delay: 20 * time.Millisecond},
		page("/up"):   {status: 503},
	}
	fx := newEngineFixture(t, site, nil)

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	labels := []string{}
	for _, evt := range fx.sink.events {
		labels = append(labels, evt.Label())
	}
	if strings.Join(labels, ",") != "200,ERROR,503" {
		t.Errorf("Expected labels 200,ERROR,503, got %v", labels)
	}

	failed := fx.sink.events[1]
	if failed.ErrorKind != ErrorKindConnection || failed.LinkCount != 0 {
		t.Errorf("Unexpected error event: %+v", failed)
	}
	if stats.PagesFailed != 1 {
		t.Errorf("Expected 1 failed page, got %d", stats.PagesFailed)
	}
}

func TestEngineLinkCap(t *testing.T) {
	links := make([]string, 150)
	for i := range links {
		links[i] = page(fmt.Sprintf("/item/%d", i))
	}
	site := map[string]fakePage{seed: {status: 200, links: links}}

	fx := newEngineFixture(t, site, func(cfg *config.CrawlConfig) {
		cfg.MaxPages = 1
	})

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	evt := fx.sink.events[0]
	if evt.LinkCount != 150 {
		t.Errorf("Expected 150 links found, got %d", evt.LinkCount)
	}
	if evt.Enqueued != 100 {
		t.Errorf("Expected 100 links enqueued, got %d", evt.Enqueued)
	}
	if stats.LinksEnqueued != 100 || fx.engine.Frontier().Len() != 100 {
		t.Errorf("Expected 100 pending URLs, got stats=%d frontier=%d", stats.LinksEnqueued, fx.engine.Frontier().Len())
	}
	if !fx.engine.Frontier().IsPending(page("/item/99")) || fx.engine.Frontier().IsPending(page("/item/100")) {
		t.Error("Expected the first 100 links in document order to be kept")
	}
}

func TestEngineSeedNotRevisited(t *testing.T) {
	site := map[string]fakePage{
		seed:       {status: 200, links: []string{seed, page("/a"), seed}},
		page("/a"): {status: 200, links: []string{seed, page("/a")}},
	}
	fx := newEngineFixture(t, site, nil)

	if _, err := fx.engine.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	seen := map[string]int{}
	for _, evt := range fx.sink.events {
		seen[evt.URL]++
	}
	if seen[seed] != 1 || seen[page("/a")] != 1 {
		t.Errorf("Each URL must be emitted once, got %v", seen)
	}
	if len(fx.fetcher.calls) != 2 {
		t.Errorf("Expected 2 fetches, got %v", fx.fetcher.calls)
	}
}

func TestEnginePanicRecovery(t *testing.T) {
	site := map[string]fakePage{
		seed:          {status: 200, links: []string{page("/boom"), page("/ok")}},
		page("/boom"): {panics: true},
		page("/ok"):   {status: 200},
	}
	fx := newEngineFixture(t, site, nil)

	if _, err := fx.engine.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(fx.sink.events) != 3 {
		t.Fatalf("Expected crawl to continue after panic, got %d events", len(fx.sink.events))
	}
	evt := fx.sink.events[1]
	if evt.Outcome != OutcomeError || !strings.Contains(evt.ErrorMsg, "fetcher exploded") {
		t.Errorf("Expected ERROR event for panicking fetch, got %+v", evt)
	}
}

func TestEngineSinkErrorNotFatal(t *testing.T) {
	site := map[string]fakePage{
		seed:       {status: 200, links: []string{page("/a")}},
		page("/a"): {status: 200},
	}
	fx := newEngineFixture(t, site, nil)
	fx.sink.err = errors.New("disk full")

	stats, err := fx.engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Sink errors must not fail the run: %v", err)
	}
	if stats.PagesProcessed != 2 {
		t.Errorf("Expected 2 pages processed, got %d", stats.PagesProcessed)
	}
}

func TestEngineCancellation(t *testing.T) {
	site := map[string]fakePage{
		seed:       {status: 200, links: []string{page("/a"), page("/b")}},
		page("/a"): {status: 200},
		page("/b"): {status: 200},
	}
	fx := newEngineFixture(t, site, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	fx.sink.after = func(CrawlEvent) { cancel() }

	stats, err := fx.engine.Run(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled, got %v", err)
	}
	if len(fx.sink.events) != 1 || stats.PagesProcessed != 1 {
		t.Errorf("Expected the run to stop after the first event, got %d events", len(fx.sink.events))
	}
	if stats.Pending != 2 {
		t.Errorf("Expected 2 pending URLs, got %d", stats.Pending)
	}
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.MaxPages = 0

	if _, err := NewEngine(cfg, Components{}); !errors.Is(err, config.ErrInvalidMaxPages) {
		t.Errorf("Expected ErrInvalidMaxPages, got %v", err)
	}
}

func TestNewEngineNormalizesSeed(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.SeedURL = "HTTPS://Example.COM#top"
	cfg.TargetDomain = ""

	engine, err := NewEngine(cfg, Components{})
	if err != nil {
		t.Fatalf("Failed to create engine: %v", err)
	}
	defer func() { _ = engine.Close() }()

	if !engine.Frontier().IsPending("https://example.com/") {
		t.Error("Expected normalized seed in the frontier")
	}
	if cfg.TargetDomain != "example.com" {
		t.Errorf("Expected target domain from seed host, got %s", cfg.TargetDomain)
	}
}
