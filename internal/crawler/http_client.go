package crawler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"
)

// HTTPClientOptions configures HTTPClient
type HTTPClientOptions struct {
	UserAgent       string
	Timeout         time.Duration // Per-request deadline
	MaxConnsPerHost int           // Pool size per host
	MaxRetries      int           // Extra attempts after a failed connection attempt
	MaxBodySize     int64         // Body bytes read per response
}

// HTTPClient issues GET requests over a pooled keep-alive transport.
// It implements Fetcher.
type HTTPClient struct {
	client      *http.Client
	transport   *http.Transport
	userAgent   string
	timeout     time.Duration
	maxRetries  int
	maxBodySize int64
	now         func() time.Time
}

// NewHTTPClient creates a new HTTP client
func NewHTTPClient(opts HTTPClientOptions) *HTTPClient {
	if opts.MaxConnsPerHost <= 0 {
		opts.MaxConnsPerHost = 10
	}
	if opts.MaxBodySize <= 0 {
		opts.MaxBodySize = 10 << 20
	}

	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		MaxIdleConns:        opts.MaxConnsPerHost,
		MaxIdleConnsPerHost: opts.MaxConnsPerHost,
		MaxConnsPerHost:     opts.MaxConnsPerHost,
		IdleConnTimeout:     90 * time.Second,
		TLSHandshakeTimeout: 10 * time.Second,
		DisableCompression:  false, // Enable automatic decompression
	}

	client := &http.Client{
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			return nil
		},
	}

	return &HTTPClient{
		client:      client,
		transport:   transport,
		userAgent:   opts.UserAgent,
		timeout:     opts.Timeout,
		maxRetries:  opts.MaxRetries,
		maxBodySize: opts.MaxBodySize,
		now:         time.Now,
	}
}

// Fetch performs a GET with the client's default timeout
func (h *HTTPClient) Fetch(ctx context.Context, url string) (*FetchResult, error) {
	return h.Get(ctx, url, h.timeout)
}

// Get performs a GET bounded by timeout (no bound when timeout <= 0).
// Elapsed runs from the first attempt until the body has been read.
// Any failure is returned as *FetchError.
func (h *HTTPClient) Get(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error) {
	start := h.now()

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	var (
		resp *http.Response
		err  error
	)
	for attempt := 0; ; attempt++ {
		resp, err = h.do(ctx, url)
		if err == nil {
			break
		}
		if attempt >= h.maxRetries || !isDialError(err) || ctx.Err() != nil {
			return nil, &FetchError{URL: url, Kind: classifyError(err), Elapsed: h.now().Sub(start), Err: err}
		}
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(io.LimitReader(resp.Body, h.maxBodySize))
	if err != nil {
		kind := ErrorKindRead
		if isTimeout(err) {
			kind = ErrorKindTimeout
		}
		return nil, &FetchError{URL: url, Kind: kind, Elapsed: h.now().Sub(start), Err: fmt.Errorf("failed to read response body: %w", err)}
	}

	return &FetchResult{
		URL:         url,
		FinalURL:    resp.Request.URL.String(),
		StatusCode:  resp.StatusCode,
		ContentType: resp.Header.Get("Content-Type"),
		Body:        body,
		Elapsed:     h.now().Sub(start),
	}, nil
}

func (h *HTTPClient) do(ctx context.Context, url string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", h.userAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Connection", "keep-alive")

	resp, err := h.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	return resp, nil
}

// Close releases pooled connections
func (h *HTTPClient) Close() {
	h.transport.CloseIdleConnections()
}

func isDialError(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && !opErr.Timeout()
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func classifyError(err error) ErrorKind {
	var dnsErr *net.DNSError
	switch {
	case isTimeout(err):
		return ErrorKindTimeout
	case errors.As(err, &dnsErr):
		return ErrorKindDNS
	case isDialError(err):
		return ErrorKindConnection
	default:
		var opErr *net.OpError
		if errors.As(err, &opErr) {
			return ErrorKindConnection
		}
		return ErrorKindOther
	}
}
