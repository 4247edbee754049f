// Package classifier extracts the outgoing references of an HTML page and
// sorts them into static assets, same-domain forward links and external
// forward links.
package classifier

import (
	"net/url"
	"slices"
	"strings"

	"github.com/nao1215/sitecrawl/internal/htmldoc"
	"github.com/nao1215/sitecrawl/internal/urlutil"
)

// Document is the part of a parsed HTML document the classifier reads.
// *htmldoc.Document satisfies it through documentAdapter.
type Document interface {
	FindAll(name string) []Tag
	FindFirst(name string) (Tag, bool)
}

// Tag is a single element of a Document.
type Tag interface {
	Attr(name string) (string, bool)
}

// rule selects one attribute of one tag. When rels is non-empty the tag
// only matches if its rel attribute shares at least one token with rels.
type rule struct {
	tag  string
	attr string
	rels []string
}

// forwardLinkRules select references a visitor can navigate to.
var forwardLinkRules = []rule{
	{tag: "a", attr: "href"},
	{tag: "iframe", attr: "src"},
	{tag: "form", attr: "action"},
	{tag: "blockquote", attr: "cite"},
	{tag: "q", attr: "cite"},
	{tag: "area", attr: "href"},
	{tag: "link", attr: "href", rels: []string{"alternate", "author", "help", "license", "next", "prev", "search"}},
}

// staticAssetRules select resources a page loads but never navigates to.
var staticAssetRules = []rule{
	{tag: "source", attr: "src"},
	{tag: "audio", attr: "src"},
	{tag: "video", attr: "src"},
	{tag: "video", attr: "poster"},
	{tag: "img", attr: "src"},
	{tag: "script", attr: "src"},
	{tag: "link", attr: "href", rels: []string{"icon", "prefetch", "stylesheet"}},
}

// Classifier holds the classified references of one document.
// All sets are computed once in New; accessors return fresh copies, so a
// Classifier is safe for concurrent use.
type Classifier struct {
	base *url.URL

	staticAssets []string
	sameDomain   []string
	external     []string
}

// New classifies the references of doc. baseURL is the URL the document was
// fetched from; a <base href> in the document takes precedence over it.
// A nil document is reported as an InvalidContentError.
func New(baseURL string, doc Document) (*Classifier, error) {
	if doc == nil {
		return nil, &InvalidContentError{URL: baseURL, Err: ErrNoDocument}
	}

	c := &Classifier{base: resolveBase(baseURL, doc)}

	assets := c.collect(doc, staticAssetRules)
	forward := c.collect(doc, forwardLinkRules)

	for link := range assets {
		delete(forward, link)
	}

	c.staticAssets = sortedKeys(assets)
	for _, link := range sortedKeys(forward) {
		if c.isSameDomain(link) {
			c.sameDomain = append(c.sameDomain, link)
		} else {
			c.external = append(c.external, link)
		}
	}

	return c, nil
}

// FromHTML parses content and classifies it. Content that cannot be parsed
// is reported as an InvalidContentError.
func FromHTML(baseURL string, content []byte) (*Classifier, *htmldoc.Document, error) {
	doc, err := htmldoc.Parse(content)
	if err != nil {
		return nil, nil, &InvalidContentError{URL: baseURL, Err: err}
	}
	c, err := New(baseURL, documentAdapter{doc: doc})
	if err != nil {
		return nil, nil, err
	}
	return c, doc, nil
}

// BaseURL returns the URL relative references were resolved against.
func (c *Classifier) BaseURL() string {
	return c.base.String()
}

// StaticAssets returns the absolute URLs of images, scripts, stylesheets and
// media the document references.
func (c *Classifier) StaticAssets() []string {
	return slices.Clone(c.staticAssets)
}

// SameDomainLinks returns the forward links whose host equals the base host.
func (c *Classifier) SameDomainLinks() []string {
	return slices.Clone(c.sameDomain)
}

// ExternalLinks returns the forward links to other hosts.
func (c *Classifier) ExternalLinks() []string {
	return slices.Clone(c.external)
}

// resolveBase picks the document's <base href> when present and non-empty,
// otherwise the given URL, and normalizes an empty path to "/".
func resolveBase(given string, doc Document) *url.URL {
	base, err := url.Parse(given)
	if err != nil {
		base = &url.URL{}
	}

	if tag, ok := doc.FindFirst("base"); ok {
		if href, _ := tag.Attr("href"); href != "" {
			if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
				base = base.ResolveReference(ref)
			}
		}
	}

	return urlutil.EnsureRootPath(base)
}

// collect applies rules to doc and returns the canonical absolute URLs found.
func (c *Classifier) collect(doc Document, rules []rule) map[string]struct{} {
	links := make(map[string]struct{})
	self := urlutil.Canonical(c.base)

	for _, r := range rules {
		for _, tag := range doc.FindAll(r.tag) {
			if len(r.rels) > 0 && !relMatches(tag, r.rels) {
				continue
			}

			value, _ := tag.Attr(r.attr)
			value = urlutil.StripQuotes(strings.TrimSpace(value))
			if value == "" || !urlutil.HasHTTPScheme(value) {
				continue
			}

			resolved, err := urlutil.Resolve(c.base, value)
			if err != nil {
				continue
			}

			link := resolved.String()
			if link == self {
				continue
			}
			links[link] = struct{}{}
		}
	}

	return links
}

// isSameDomain compares the authority of link with the base URL's.
func (c *Classifier) isSameDomain(link string) bool {
	u, err := url.Parse(link)
	if err != nil {
		return false
	}
	return u.Host == c.base.Host
}

// relMatches reports whether the tag's rel tokens intersect want.
// A tag without rel never matches.
func relMatches(tag Tag, want []string) bool {
	rel, ok := tag.Attr("rel")
	if !ok {
		return false
	}
	for _, token := range strings.Fields(strings.ToLower(rel)) {
		if slices.Contains(want, token) {
			return true
		}
	}
	return false
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// documentAdapter exposes *htmldoc.Document through the Document interface.
type documentAdapter struct {
	doc *htmldoc.Document
}

// FindAll implements Document.
func (a documentAdapter) FindAll(name string) []Tag {
	found := a.doc.FindAll(name)
	tags := make([]Tag, len(found))
	for i, t := range found {
		tags[i] = t
	}
	return tags
}

// FindFirst implements Document.
func (a documentAdapter) FindFirst(name string) (Tag, bool) {
	t, ok := a.doc.FindFirst(name)
	if !ok {
		return nil, false
	}
	return t, true
}

// Wrap exposes a parsed document to New.
func Wrap(doc *htmldoc.Document) Document {
	return documentAdapter{doc: doc}
}
