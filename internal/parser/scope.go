package parser

import (
	"strings"

	"golang.org/x/net/publicsuffix"
)

// DomainScope decides whether a host belongs to the crawl target.
type DomainScope struct {
	target     string
	registered string // eTLD+1 of target when registered-domain matching is on
}

// NewDomainScope creates a scope for target. A host matches when it equals
// target or is a subdomain of it. With matchRegistered set, any host sharing
// the target's registered domain (eTLD+1) matches instead.
func NewDomainScope(target string, matchRegistered bool) *DomainScope {
	s := &DomainScope{target: strings.ToLower(strings.TrimPrefix(target, "."))}
	if matchRegistered {
		if etld1, err := publicsuffix.EffectiveTLDPlusOne(s.target); err == nil {
			s.registered = etld1
		} else {
			s.registered = s.target
		}
	}
	return s
}

// Target returns the configured target domain.
func (s *DomainScope) Target() string {
	return s.target
}

// Contains reports whether hostname (without port) is in scope.
func (s *DomainScope) Contains(hostname string) bool {
	host := strings.ToLower(strings.TrimSuffix(hostname, "."))
	if host == "" || s.target == "" {
		return false
	}

	if s.registered != "" {
		etld1, err := publicsuffix.EffectiveTLDPlusOne(host)
		if err != nil {
			return host == s.registered
		}
		return etld1 == s.registered
	}

	return host == s.target || strings.HasSuffix(host, "."+s.target)
}
