package config

import (
	"errors"
	"testing"
	"time"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.SeedURL != "https://unae.edu.py/tv/" {
		t.Errorf("Expected seed 'https://unae.edu.py/tv/', got %s", cfg.SeedURL)
	}

	if cfg.TargetDomain != "unae.edu.py" {
		t.Errorf("Expected target domain 'unae.edu.py', got %s", cfg.TargetDomain)
	}

	if cfg.MaxPages != 50 {
		t.Errorf("Expected max pages 50, got %d", cfg.MaxPages)
	}

	if cfg.RequestInterval != 1*time.Second {
		t.Errorf("Expected request interval 1s, got %v", cfg.RequestInterval)
	}

	if cfg.PerPageLinkCap != 100 {
		t.Errorf("Expected link cap 100, got %d", cfg.PerPageLinkCap)
	}

	if cfg.RequestTimeout != 10*time.Second {
		t.Errorf("Expected request timeout 10s, got %v", cfg.RequestTimeout)
	}

	if cfg.RobotsTimeout != 5*time.Second {
		t.Errorf("Expected robots timeout 5s, got %v", cfg.RobotsTimeout)
	}

	if cfg.UserAgent != "DataExplore-Crawler/1.0" {
		t.Errorf("Expected user agent 'DataExplore-Crawler/1.0', got %s", cfg.UserAgent)
	}

	if !cfg.RespectRobots {
		t.Errorf("Expected respect robots true, got %v", cfg.RespectRobots)
	}

	if cfg.MaxConnsPerHost != 10 || cfg.MaxRetries != 1 {
		t.Errorf("Expected pool 10 / retries 1, got %d / %d", cfg.MaxConnsPerHost, cfg.MaxRetries)
	}

	if cfg.CSVPath != "crawler_log.csv" {
		t.Errorf("Expected csv path 'crawler_log.csv', got %s", cfg.CSVPath)
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *CrawlConfig)
		wantErr error
	}{
		{"valid config", func(c *CrawlConfig) {}, nil},
		{"empty seed", func(c *CrawlConfig) { c.SeedURL = " " }, ErrNoSeedURL},
		{"relative seed", func(c *CrawlConfig) { c.SeedURL = "/tv/" }, ErrInvalidSeedURL},
		{"ftp seed", func(c *CrawlConfig) { c.SeedURL = "ftp://unae.edu.py/" }, ErrInvalidSeedURL},
		{"zero budget", func(c *CrawlConfig) { c.MaxPages = 0 }, ErrInvalidMaxPages},
		{"zero link cap", func(c *CrawlConfig) { c.PerPageLinkCap = 0 }, ErrInvalidLinkCap},
		{"negative interval", func(c *CrawlConfig) { c.RequestInterval = -time.Second }, ErrNegativeInterval},
		{"zero interval", func(c *CrawlConfig) { c.RequestInterval = 0 }, nil},
		{"zero timeout", func(c *CrawlConfig) { c.RequestTimeout = 0 }, ErrInvalidTimeout},
		{"zero robots timeout", func(c *CrawlConfig) { c.RobotsTimeout = 0 }, ErrInvalidTimeout},
		{"blank user agent", func(c *CrawlConfig) { c.UserAgent = "" }, ErrEmptyUserAgent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Validate() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestValidateFillsTargetDomain(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SeedURL = "https://Www.Example.com:8443/start"
	cfg.TargetDomain = ""

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.TargetDomain != "www.example.com" {
		t.Errorf("Expected target domain from seed host, got %q", cfg.TargetDomain)
	}
}

func TestValidateNormalizesPoolSettings(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxConnsPerHost = 0
	cfg.MaxRetries = -3
	cfg.MaxBodySize = 0

	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate() error = %v", err)
	}

	if cfg.MaxConnsPerHost != 10 {
		t.Errorf("MaxConnsPerHost = %d, want 10", cfg.MaxConnsPerHost)
	}
	if cfg.MaxRetries != 0 {
		t.Errorf("MaxRetries = %d, want 0", cfg.MaxRetries)
	}
	if cfg.MaxBodySize != DefaultMaxBodySize {
		t.Errorf("MaxBodySize = %d, want %d", cfg.MaxBodySize, DefaultMaxBodySize)
	}
}

func TestRobotsAgent(t *testing.T) {
	tests := []struct {
		userAgent string
		expected  string
	}{
		{"DataExplore-Crawler/1.0", "dataexplore-crawler"},
		{"MyBot", "mybot"},
		{"Fancy Bot/2", "fancy"},
	}

	for _, tt := range tests {
		cfg := &CrawlConfig{UserAgent: tt.userAgent}
		if got := cfg.RobotsAgent(); got != tt.expected {
			t.Errorf("RobotsAgent(%q) = %q, want %q", tt.userAgent, got, tt.expected)
		}
	}
}
