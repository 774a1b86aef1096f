// Package parser provides HTML link extraction for the crawler.
// It resolves anchors against the page URL and keeps only links inside
// the configured target domain.
package parser

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

// LinkExtractor extracts in-scope absolute links from HTML documents
type LinkExtractor struct {
	scope          *DomainScope
	allowedSchemes []string
}

// NewLinkExtractor creates an extractor limited to scope with the default
// http and https schemes
func NewLinkExtractor(scope *DomainScope) *LinkExtractor {
	return &LinkExtractor{
		scope:          scope,
		allowedSchemes: []string{"http", "https"},
	}
}

// Extract parses body and returns the absolute, normalized URLs of every
// <a href> in document order whose host is in scope. Duplicates are kept.
// Broken markup is parsed best-effort; the only error is an invalid base URL.
func (e *LinkExtractor) Extract(baseURL string, body []byte) ([]string, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}

	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		// html.Parse only fails on reader errors, which bytes.Reader never returns
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	// <base href> changes the resolution base for the whole document
	if b := findBase(doc); b != "" {
		if ref, err := url.Parse(b); err == nil {
			base = base.ResolveReference(ref)
		}
	}

	links := []string{}
	e.traverse(doc, base, &links)
	return links, nil
}

// traverse recursively walks the HTML tree
func (e *LinkExtractor) traverse(n *html.Node, base *url.URL, links *[]string) {
	if n.Type == html.ElementNode && n.DataAtom == atom.A {
		if link, ok := e.resolve(base, attr(n, "href")); ok {
			*links = append(*links, link)
		}
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		e.traverse(c, base, links)
	}
}

// resolve turns an href into an in-scope absolute URL
func (e *LinkExtractor) resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" {
		return "", false
	}

	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}

	abs := base.ResolveReference(ref)
	if !e.isAllowedScheme(abs.Scheme) {
		return "", false
	}
	if !e.scope.Contains(abs.Hostname()) {
		return "", false
	}

	return normalize(abs), true
}

// isAllowedScheme checks if the resolved URL has an allowed scheme
func (e *LinkExtractor) isAllowedScheme(scheme string) bool {
	scheme = strings.ToLower(scheme)
	for _, s := range e.allowedSchemes {
		if scheme == s {
			return true
		}
	}
	return false
}

func findBase(n *html.Node) string {
	if n.Type == html.ElementNode && n.DataAtom == atom.Base {
		if href := attr(n, "href"); href != "" {
			return href
		}
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if href := findBase(c); href != "" {
			return href
		}
	}
	return ""
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
