// Package urlutil contains the URL helpers shared by the classifier, the
// sitemap and the crawl engine: resolution against a base, root path
// normalization, canonical string form and reduction to a relative URL.
package urlutil

import (
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/purell"
)

// ErrNoHost is returned by NormalizeRoot when the domain root has no host.
var ErrNoHost = errors.New("domain root has no host")

// canonicalFlags are the purell normalizations applied to every URL the
// crawler compares or stores. Host case is deliberately left untouched:
// same-domain checks compare the authority byte for byte.
const canonicalFlags = purell.FlagRemoveFragment |
	purell.FlagRemoveDotSegments |
	purell.FlagRemoveEmptyQuerySeparator

// quotePairs lists the stray quote sequences trimmed from attribute values.
// Escaped forms come first so that `\"` is removed as a unit.
var quotePairs = []string{`\"`, `\'`, `"`, `'`}

// EnsureRootPath returns u with an empty path replaced by "/".
// http://host becomes http://host/. The argument is not modified.
func EnsureRootPath(u *url.URL) *url.URL {
	c := *u
	if c.Path == "" && c.Opaque == "" {
		c.Path = "/"
		c.RawPath = ""
	}
	return &c
}

// Canonical returns the canonical string form of u: fragment removed, dot
// segments collapsed, an empty path normalized to "/".
func Canonical(u *url.URL) string {
	c := EnsureRootPath(u)
	return purell.NormalizeURL(c, canonicalFlags)
}

// Resolve resolves ref against base and returns the canonical absolute URL.
func Resolve(base *url.URL, ref string) (*url.URL, error) {
	r, err := url.Parse(ref)
	if err != nil {
		return nil, fmt.Errorf("invalid reference %q: %w", ref, err)
	}
	resolved := base.ResolveReference(r)
	return url.Parse(Canonical(resolved))
}

// HasHTTPScheme reports whether raw either has no scheme (relative and
// protocol-relative references) or uses http/https.
func HasHTTPScheme(raw string) bool {
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	switch u.Scheme {
	case "", "http", "https":
		return true
	default:
		return false
	}
}

// StripQuotes removes one layer of stray quote characters from the start and
// the end of an attribute value. Malformed markup such as href=\"page.html\"
// produces values wrapped in escaped quotes.
func StripQuotes(s string) string {
	for _, q := range quotePairs {
		if strings.HasPrefix(s, q) {
			s = s[len(q):]
			break
		}
	}
	for _, q := range quotePairs {
		if strings.HasSuffix(s, q) {
			s = s[:len(s)-len(q)]
			break
		}
	}
	return s
}

// Relative reduces raw to its relative form: the path plus the query, with
// an empty path reported as "/". Strings that do not parse are returned as is.
//
//	http://www.example.com/asia/foo.html?p=2 -> /asia/foo.html?p=2
func Relative(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	path := u.EscapedPath()
	if path == "" {
		if u.Scheme == "" && u.Host == "" && u.RawQuery == "" {
			return raw
		}
		path = "/"
	}
	if u.RawQuery != "" {
		return path + "?" + u.RawQuery
	}
	return path
}

// NormalizeRoot turns a user supplied domain root into an absolute URL.
// Surrounding whitespace is trimmed and "http://" is prefixed when no scheme
// is present.
func NormalizeRoot(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid domain root %q: %w", raw, err)
	}
	if u.Host == "" {
		return nil, fmt.Errorf("%w: %q", ErrNoHost, raw)
	}
	return url.Parse(Canonical(u))
}
