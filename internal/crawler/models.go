package crawler

import (
	"errors"
	"fmt"
	"strconv"
	"time"
)

// OutcomeKind classifies how a processed URL ended
type OutcomeKind int

const (
	// OutcomeStatus means the page was fetched and StatusCode holds the HTTP status
	OutcomeStatus OutcomeKind = iota
	// OutcomeBlocked means robots.txt disallowed the URL and no request was made
	OutcomeBlocked
	// OutcomeError means the fetch failed before a response was read
	OutcomeError
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeBlocked:
		return "blocked"
	case OutcomeError:
		return "error"
	default:
		return "status"
	}
}

// CrawlEvent is the per-URL record emitted once at the end of an iteration
type CrawlEvent struct {
	Sequence   int           // 1-based position in dequeue order
	URL        string        // Normalized URL that was processed
	Outcome    OutcomeKind   // Status, blocked or error
	StatusCode int           // HTTP status when Outcome is OutcomeStatus
	Elapsed    time.Duration // Fetch wall-clock time, 0 for blocked URLs
	LinkCount  int           // In-scope links found on the page
	Enqueued   int           // Links newly added to the frontier from this page
	Allowed    bool          // robots.txt verdict
	Size       int64         // Response body size in bytes
	ErrorKind  ErrorKind     // Failure class when Outcome is OutcomeError
	ErrorMsg   string        // Failure detail when Outcome is OutcomeError
	At         time.Time     // Emission timestamp (UTC)
}

// Label renders the outcome the way the CSV log expects: the status code,
// BLOCKED or ERROR.
func (e CrawlEvent) Label() string {
	switch e.Outcome {
	case OutcomeBlocked:
		return "BLOCKED"
	case OutcomeError:
		return "ERROR"
	default:
		return strconv.Itoa(e.StatusCode)
	}
}

// ElapsedSeconds returns Elapsed as fractional seconds
func (e CrawlEvent) ElapsedSeconds() float64 {
	return e.Elapsed.Seconds()
}

// FetchResult is a completed HTTP exchange
type FetchResult struct {
	URL         string        // Requested URL
	FinalURL    string        // URL after redirects, used as the link base
	StatusCode  int           // HTTP status code
	ContentType string        // Content-Type header
	Body        []byte        // Response body, possibly truncated at the size limit
	Elapsed     time.Duration // Request start to body fully read
}

// ErrorKind classifies fetch failures
type ErrorKind string

// Fetch failure classes.
const (
	ErrorKindTimeout    ErrorKind = "timeout"
	ErrorKindDNS        ErrorKind = "dns"
	ErrorKindConnection ErrorKind = "connection"
	ErrorKindRead       ErrorKind = "read"
	ErrorKindOther      ErrorKind = "other"
)

// FetchError is returned by a Fetcher when no usable response was obtained.
// Elapsed is the time spent before the failure.
type FetchError struct {
	URL     string
	Kind    ErrorKind
	Elapsed time.Duration
	Err     error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %s: %v", e.URL, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// AsFetchError converts any error into a *FetchError, keeping elapsed
// when the error does not carry its own.
func AsFetchError(url string, elapsed time.Duration, err error) *FetchError {
	var fe *FetchError
	if errors.As(err, &fe) {
		return fe
	}
	return &FetchError{URL: url, Kind: ErrorKindOther, Elapsed: elapsed, Err: err}
}

// CrawlStats summarizes a finished run
type CrawlStats struct {
	PagesProcessed int // Events emitted, blocked included
	PagesBlocked   int
	PagesFailed    int
	LinksEnqueued  int
	Pending        int // Frontier entries left when the run ended
	StartTime      time.Time
	Duration       time.Duration
}
