package config

import "errors"

var (
	// ErrNoSeedURL is returned when no seed URL is provided
	ErrNoSeedURL = errors.New("no seed URL provided")
	// ErrInvalidSeedURL is returned when the seed is not an absolute http(s) URL
	ErrInvalidSeedURL = errors.New("seed_url must be an absolute http or https URL")
	// ErrInvalidMaxPages is returned when the page budget is not greater than 0
	ErrInvalidMaxPages = errors.New("max_pages must be greater than 0")
	// ErrInvalidLinkCap is returned when the per-page link cap is not greater than 0
	ErrInvalidLinkCap = errors.New("per_page_link_cap must be greater than 0")
	// ErrNegativeInterval is returned when request_interval is negative
	ErrNegativeInterval = errors.New("request_interval cannot be negative")
	// ErrInvalidTimeout is returned when a request timeout is not greater than 0
	ErrInvalidTimeout = errors.New("request_timeout and robots_timeout must be greater than 0")
	// ErrEmptyUserAgent is returned when the user agent is blank
	ErrEmptyUserAgent = errors.New("user_agent cannot be empty")
)
