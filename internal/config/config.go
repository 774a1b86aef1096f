// Package config provides configuration management for the crawler.
// It defines configuration structures and default values for crawling parameters.
package config

import (
	"net/url"
	"strings"
	"time"
)

// Default values for a crawl of the UNAE TV site.
const (
	DefaultSeedURL         = "https://unae.edu.py/tv/"
	DefaultTargetDomain    = "unae.edu.py"
	DefaultUserAgent       = "DataExplore-Crawler/1.0"
	DefaultMaxPages        = 50
	DefaultPerPageLinkCap  = 100
	DefaultRequestInterval = 1 * time.Second
	DefaultRequestTimeout  = 10 * time.Second
	DefaultRobotsTimeout   = 5 * time.Second
	DefaultMaxBodySize     = 10 << 20 // 10 MiB
	DefaultCSVPath         = "crawler_log.csv"
)

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`   // debug, info, warn, error
	File   string `mapstructure:"file" yaml:"file"`     // Optional rotating log file
	Format string `mapstructure:"format" yaml:"format"` // json or text
}

// CrawlConfig holds crawler configuration
type CrawlConfig struct {
	// Crawl scope and budget
	SeedURL               string        `mapstructure:"seed_url" yaml:"seed_url"`                               // Starting URL
	TargetDomain          string        `mapstructure:"target_domain" yaml:"target_domain"`                     // Host suffix links must match
	MatchRegisteredDomain bool          `mapstructure:"match_registered_domain" yaml:"match_registered_domain"` // Compare eTLD+1 instead of suffix
	MaxPages              int           `mapstructure:"max_pages" yaml:"max_pages"`                             // Page budget
	RequestInterval       time.Duration `mapstructure:"request_interval" yaml:"request_interval"`               // Minimum spacing between requests
	PerPageLinkCap        int           `mapstructure:"per_page_link_cap" yaml:"per_page_link_cap"`             // Links offered to the frontier per page

	// HTTP
	RequestTimeout  time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`       // Page GET timeout
	RobotsTimeout   time.Duration `mapstructure:"robots_timeout" yaml:"robots_timeout"`         // robots.txt GET timeout
	UserAgent       string        `mapstructure:"user_agent" yaml:"user_agent"`                 // HTTP User-Agent header
	RespectRobots   bool          `mapstructure:"respect_robots" yaml:"respect_robots"`         // Whether to respect robots.txt
	MaxConnsPerHost int           `mapstructure:"max_conns_per_host" yaml:"max_conns_per_host"` // Connection pool size
	MaxRetries      int           `mapstructure:"max_retries" yaml:"max_retries"`               // Retries on dial failures
	MaxBodySize     int64         `mapstructure:"max_body_size" yaml:"max_body_size"`           // Response body read limit in bytes

	// Outputs
	CSVPath      string `mapstructure:"csv_path" yaml:"csv_path"`           // CSV event log, empty disables
	ShowTable    bool   `mapstructure:"show_table" yaml:"show_table"`       // Live console table
	DatabasePath string `mapstructure:"database_path" yaml:"database_path"` // SQLite event log, empty disables
	MetricsAddr  string `mapstructure:"metrics_addr" yaml:"metrics_addr"`   // Prometheus listen address, empty disables

	Log LogConfig `mapstructure:"log" yaml:"log"`
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *CrawlConfig {
	return &CrawlConfig{
		SeedURL:         DefaultSeedURL,
		TargetDomain:    DefaultTargetDomain,
		MaxPages:        DefaultMaxPages,
		RequestInterval: DefaultRequestInterval,
		PerPageLinkCap:  DefaultPerPageLinkCap,
		RequestTimeout:  DefaultRequestTimeout,
		RobotsTimeout:   DefaultRobotsTimeout,
		UserAgent:       DefaultUserAgent,
		RespectRobots:   true,
		MaxConnsPerHost: 10,
		MaxRetries:      1,
		MaxBodySize:     DefaultMaxBodySize,
		CSVPath:         DefaultCSVPath,
		ShowTable:       true,
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// Validate checks if the configuration is valid.
// An empty target domain is filled in from the seed host.
func (c *CrawlConfig) Validate() error {
	if strings.TrimSpace(c.SeedURL) == "" {
		return ErrNoSeedURL
	}

	seed, err := url.Parse(c.SeedURL)
	if err != nil || seed.Host == "" || (seed.Scheme != "http" && seed.Scheme != "https") {
		return ErrInvalidSeedURL
	}

	if c.TargetDomain == "" {
		c.TargetDomain = seed.Hostname()
	}
	c.TargetDomain = strings.ToLower(strings.TrimPrefix(c.TargetDomain, "."))

	if c.MaxPages <= 0 {
		return ErrInvalidMaxPages
	}

	if c.PerPageLinkCap <= 0 {
		return ErrInvalidLinkCap
	}

	if c.RequestInterval < 0 {
		return ErrNegativeInterval
	}

	if c.RequestTimeout <= 0 || c.RobotsTimeout <= 0 {
		return ErrInvalidTimeout
	}

	if strings.TrimSpace(c.UserAgent) == "" {
		return ErrEmptyUserAgent
	}

	if c.MaxConnsPerHost <= 0 {
		c.MaxConnsPerHost = 10
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = 0
	}
	if c.MaxBodySize <= 0 {
		c.MaxBodySize = DefaultMaxBodySize
	}

	return nil
}

// RobotsAgent returns the product token matched against robots.txt
// User-agent lines, e.g. "dataexplore-crawler" for "DataExplore-Crawler/1.0".
func (c *CrawlConfig) RobotsAgent() string {
	token := c.UserAgent
	if i := strings.IndexAny(token, "/ "); i >= 0 {
		token = token[:i]
	}
	return strings.ToLower(strings.TrimSpace(token))
}
