// Package sitemap stores the result of a crawl: one record per distinct page
// content, reachable through every relative URL that served it.
package sitemap

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"
	"sync"

	"github.com/nao1215/sitecrawl/internal/urlutil"
)

// Page is one distinct piece of content reachable from the crawl root.
type Page struct {
	// URLs are the relative URLs that served this content, in the order they
	// were recorded. The first one is canonical.
	URLs []string `json:"urls"`

	// Hash is the SHA-224 hex digest of the raw fetched bytes.
	Hash string `json:"hash"`

	// StaticAssets are absolute URLs of images, scripts, stylesheets and media.
	StaticAssets []string `json:"static_assets"`

	// Links are relative URLs of same-domain pages this page points to.
	Links []string `json:"links"`

	// ExternalLinks are absolute URLs of forward links to other hosts.
	// They never enter the frontier.
	ExternalLinks []string `json:"external_links,omitempty"`

	// Title is the text of the page's <title> element.
	Title string `json:"title,omitempty"`
}

// NewPage builds a page record with a single alias. The page URL and the
// same-domain links are reduced to their relative form; static assets stay
// absolute. Duplicates are removed and every set is sorted.
func NewPage(url, hash string, staticAssets, links []string) *Page {
	rel := make([]string, 0, len(links))
	for _, l := range links {
		rel = append(rel, urlutil.Relative(l))
	}
	return &Page{
		URLs:         []string{urlutil.Relative(url)},
		Hash:         hash,
		StaticAssets: sortedSet(staticAssets),
		Links:        sortedSet(rel),
	}
}

// ComputeHash returns the SHA-224 hex digest of content.
func ComputeHash(content []byte) string {
	sum := sha256.Sum224(content)
	return hex.EncodeToString(sum[:])
}

// clone returns a deep copy of p.
func (p *Page) clone() *Page {
	c := *p
	c.URLs = slices.Clone(p.URLs)
	c.StaticAssets = slices.Clone(p.StaticAssets)
	c.Links = slices.Clone(p.Links)
	c.ExternalLinks = slices.Clone(p.ExternalLinks)
	return &c
}

// Outcome tells what AddPage did with a page.
type Outcome int

const (
	// Ignored means the URL was already recorded; the first write wins.
	Ignored Outcome = iota
	// Added means the page was stored as new canonical content.
	Added
	// Aliased means the content was already known under another URL and the
	// URL was appended to the existing page's aliases.
	Aliased
)

// String returns the outcome name used in logs.
func (o Outcome) String() string {
	switch o {
	case Added:
		return "added"
	case Aliased:
		return "aliased"
	default:
		return "ignored"
	}
}

// SiteMap maps relative URLs to pages and deduplicates pages by content hash.
//
// Design decision: canonical pages live in an arena slice and both indexes
// store positions in it. Two URLs serving the same content then share one
// record, and appending an alias is a single slice append on that record.
//
// The zero value is ready to use. A SiteMap is safe for concurrent use; every
// reader receives copies.
type SiteMap struct {
	mu     sync.RWMutex
	arena  []*Page
	byHash map[string]int
	byURL  map[string]int
}

// New returns an empty SiteMap.
func New() *SiteMap {
	return &SiteMap{}
}

func (s *SiteMap) init() {
	if s.byURL == nil {
		s.byURL = make(map[string]int)
		s.byHash = make(map[string]int)
	}
}

// HasPage reports whether url has been recorded.
func (s *SiteMap) HasPage(url string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.byURL[url]
	return ok
}

// AddPage records a newly built page, which must carry exactly one alias.
//
//  1. If the URL is already recorded nothing changes.
//  2. If the hash is already recorded the URL becomes an alias of that page.
//  3. Otherwise the page is stored as new content.
//
// The SiteMap keeps its own copy of page. A nil page or a page with other
// than one alias panics with *ContractViolationError.
func (s *SiteMap) AddPage(page *Page) Outcome {
	if page == nil {
		panic(&ContractViolationError{Op: "AddPage", Reason: "nil page"})
	}
	if len(page.URLs) != 1 {
		panic(&ContractViolationError{
			Op:     "AddPage",
			Reason: fmt.Sprintf("page must carry exactly one URL, got %d", len(page.URLs)),
		})
	}
	url := page.URLs[0]

	s.mu.Lock()
	defer s.mu.Unlock()
	s.init()

	if _, ok := s.byURL[url]; ok {
		return Ignored
	}

	if idx, ok := s.byHash[page.Hash]; ok {
		s.arena[idx].URLs = append(s.arena[idx].URLs, url)
		s.byURL[url] = idx
		return Aliased
	}

	s.arena = append(s.arena, page.clone())
	idx := len(s.arena) - 1
	s.byHash[page.Hash] = idx
	s.byURL[url] = idx
	return Added
}

// Page returns a copy of the page recorded under url.
func (s *SiteMap) Page(url string) (*Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byURL[url]
	if !ok {
		return nil, false
	}
	return s.arena[idx].clone(), true
}

// PageByHash returns a copy of the canonical page for hash.
func (s *SiteMap) PageByHash(hash string) (*Page, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx, ok := s.byHash[hash]
	if !ok {
		return nil, false
	}
	return s.arena[idx].clone(), true
}

// Pages returns copies of the canonical pages in insertion order.
func (s *SiteMap) Pages() []*Page {
	s.mu.RLock()
	defer s.mu.RUnlock()
	pages := make([]*Page, len(s.arena))
	for i, p := range s.arena {
		pages[i] = p.clone()
	}
	return pages
}

// URLs returns every recorded URL, sorted.
func (s *SiteMap) URLs() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	urls := make([]string, 0, len(s.byURL))
	for u := range s.byURL {
		urls = append(urls, u)
	}
	slices.Sort(urls)
	return urls
}

// Len returns the number of recorded URLs.
func (s *SiteMap) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byURL)
}

// HashCount returns the number of distinct contents.
func (s *SiteMap) HashCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byHash)
}

// document is the JSON form of a SiteMap.
type document struct {
	Pages []*Page `json:"pages"`
}

// MarshalJSON encodes the canonical pages in insertion order.
func (s *SiteMap) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{Pages: s.Pages()})
}

// UnmarshalJSON replaces the contents of s with the encoded pages. Every
// alias is replayed through AddPage so the indexes are rebuilt exactly.
func (s *SiteMap) UnmarshalJSON(data []byte) error {
	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("failed to decode sitemap: %w", err)
	}

	fresh := New()
	for i, p := range doc.Pages {
		if p == nil || len(p.URLs) == 0 {
			return fmt.Errorf("page %d: %w", i, ErrNoAlias)
		}
		for _, url := range p.URLs {
			single := p.clone()
			single.URLs = []string{url}
			fresh.AddPage(single)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.arena = fresh.arena
	s.byHash = fresh.byHash
	s.byURL = fresh.byURL
	return nil
}

// sortedSet returns the distinct values of in, sorted.
func sortedSet(in []string) []string {
	out := append([]string{}, in...)
	slices.Sort(out)
	return slices.Compact(out)
}
