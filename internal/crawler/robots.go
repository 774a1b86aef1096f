package crawler

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gobwas/glob"
)

// RulesSource records how a domain's rule set was obtained
type RulesSource string

// Rule set origins.
const (
	RulesParsed     RulesSource = "parsed"     // robots.txt returned 200
	RulesMissing    RulesSource = "missing"    // robots.txt returned 404
	RulesFailed     RulesSource = "failed"     // transport failure, allow all
	RulesUnresolved RulesSource = "unresolved" // unexpected status, allow all
)

// robotsGetter is the subset of HTTPClient used to download robots.txt
type robotsGetter interface {
	Get(ctx context.Context, url string, timeout time.Duration) (*FetchResult, error)
}

// RobotRules contains the parsed rules for a domain. It is immutable once built.
type RobotRules struct {
	Source   RulesSource
	Allow    []RobotRule // longest pattern first
	Disallow []RobotRule // longest pattern first
}

// RobotRule is one Allow or Disallow path pattern
type RobotRule struct {
	Pattern string
	matcher glob.Glob
}

// Matches reports whether the pattern matches the start of path
func (r RobotRule) Matches(path string) bool {
	return r.matcher.Match(path)
}

// allowAll returns an empty rule set
func allowAll(source RulesSource) *RobotRules {
	return &RobotRules{Source: source, Allow: []RobotRule{}, Disallow: []RobotRule{}}
}

// Allowed evaluates path by pattern length across both lists: the longest
// matching Disallow blocks only when it is strictly longer than the longest
// matching Allow. No match at all is allowed.
func (r *RobotRules) Allowed(path string) bool {
	allow := longestMatch(r.Allow, path)
	disallow := longestMatch(r.Disallow, path)
	return disallow <= allow
}

// longestMatch returns the raw length of the first (longest) matching
// pattern in rules, or -1 when none matches
func longestMatch(rules []RobotRule, path string) int {
	for _, rule := range rules {
		if rule.Matches(path) {
			return len(rule.Pattern)
		}
	}
	return -1
}

// RobotsPolicy fetches, parses and caches robots.txt per domain. Each domain
// is fetched at most once for the life of the policy.
type RobotsPolicy struct {
	client  robotsGetter
	agent   string
	timeout time.Duration
	respect bool
	logger  *slog.Logger

	mu      sync.Mutex
	rules   map[string]*RobotRules
	fetches int
}

// RobotsOptions configures a RobotsPolicy
type RobotsOptions struct {
	Agent   string        // Product token matched against User-agent lines
	Timeout time.Duration // robots.txt request timeout
	Respect bool          // false allows everything without fetching
	Logger  *slog.Logger
}

// NewRobotsPolicy creates a new robots.txt policy
func NewRobotsPolicy(client robotsGetter, opts RobotsOptions) *RobotsPolicy {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &RobotsPolicy{
		client:  client,
		agent:   strings.ToLower(opts.Agent),
		timeout: opts.Timeout,
		respect: opts.Respect,
		logger:  logger,
		rules:   make(map[string]*RobotRules),
	}
}

// IsAllowed checks if a URL is allowed by robots.txt. Unparseable URLs and
// domains whose robots.txt could not be read are allowed.
func (r *RobotsPolicy) IsAllowed(ctx context.Context, urlStr string) bool {
	if !r.respect {
		return true
	}

	parsedURL, err := url.Parse(urlStr)
	if err != nil || parsedURL.Host == "" {
		return true
	}

	rules := r.getRules(ctx, parsedURL.Scheme, parsedURL.Host)

	path := parsedURL.EscapedPath()
	if path == "" {
		path = "/"
	}
	return rules.Allowed(path)
}

// Rules returns the cached rule set for domain, if one exists
func (r *RobotsPolicy) Rules(domain string) (*RobotRules, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rules, ok := r.rules[domain]
	return rules, ok
}

// FetchCount returns the number of robots.txt requests issued
func (r *RobotsPolicy) FetchCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.fetches
}

// getRules returns the cached rules for domain, fetching them on first use
func (r *RobotsPolicy) getRules(ctx context.Context, scheme, domain string) *RobotRules {
	r.mu.Lock()
	defer r.mu.Unlock()

	if rules, exists := r.rules[domain]; exists {
		return rules
	}

	rules := r.fetch(ctx, scheme, domain)
	r.rules[domain] = rules
	return rules
}

// fetch downloads robots.txt and turns the response into a rule set.
// The URL uses the scheme of the page being checked rather than always
// https, so a plain-http site is asked over http; with an https seed both
// are the same request.
func (r *RobotsPolicy) fetch(ctx context.Context, scheme, domain string) *RobotRules {
	if scheme == "" {
		scheme = "https"
	}
	robotsURL := fmt.Sprintf("%s://%s/robots.txt", scheme, domain)
	r.fetches++

	r.logger.Info("Fetching robots.txt", "url", robotsURL)
	resp, err := r.client.Get(ctx, robotsURL, r.timeout)
	if err != nil {
		r.logger.Warn("robots.txt fetch failed, allowing all", "domain", domain, "error", err)
		return allowAll(RulesFailed)
	}

	switch resp.StatusCode {
	case http.StatusOK:
		rules := ParseRobotsTxt(string(resp.Body), r.agent)
		r.logger.Info("robots.txt parsed", "domain", domain, "allow", len(rules.Allow), "disallow", len(rules.Disallow))
		return rules
	case http.StatusNotFound:
		r.logger.Info("robots.txt not found, allowing all", "domain", domain)
		return allowAll(RulesMissing)
	default:
		r.logger.Warn("Unexpected robots.txt status", "domain", domain, "status", resp.StatusCode)
		return allowAll(RulesUnresolved)
	}
}

// ParseRobotsTxt parses robots.txt content for agent. Only blocks whose
// User-agent is "*" or agent contribute; a block lasts until the next
// User-agent line.
func ParseRobotsTxt(content, agent string) *RobotRules {
	rules := allowAll(RulesParsed)
	agent = strings.ToLower(agent)

	scanner := bufio.NewScanner(strings.NewReader(content))
	inUserAgent := false

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		// Skip comments and empty lines
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		// Parse directive
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}

		directive := strings.ToLower(strings.TrimSpace(parts[0]))
		value := strings.TrimSpace(parts[1])

		switch directive {
		case "user-agent":
			ua := strings.ToLower(value)
			inUserAgent = ua == "*" || (agent != "" && ua == agent)

		case "disallow":
			if inUserAgent && value != "" {
				rules.Disallow = append(rules.Disallow, newRobotRule(value))
			}

		case "allow":
			if inUserAgent && value != "" {
				rules.Allow = append(rules.Allow, newRobotRule(value))
			}
		}
	}

	sortBySpecificity(rules.Allow)
	sortBySpecificity(rules.Disallow)
	return rules
}

// newRobotRule compiles pattern as a prefix glob where only '*' is special
func newRobotRule(pattern string) RobotRule {
	parts := strings.Split(pattern, "*")
	for i, p := range parts {
		parts[i] = glob.QuoteMeta(p)
	}
	matcher := glob.MustCompile(strings.Join(parts, "*") + "*")
	return RobotRule{Pattern: pattern, matcher: matcher}
}

// sortBySpecificity orders rules by raw pattern length, longest first
func sortBySpecificity(rules []RobotRule) {
	sort.SliceStable(rules, func(i, j int) bool {
		return len(rules[i].Pattern) > len(rules[j].Pattern)
	})
}
