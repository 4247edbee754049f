package report

import (
	"time"

	"github.com/nao1215/sitecrawl/internal/crawler"
)

// Summary holds the headline numbers of a crawl.
type Summary struct {
	// Root is the crawled domain root.
	Root string `json:"root"`

	// State is "completed" or "cancelled".
	State string `json:"state"`

	// Pages is the number of relative URLs recorded, aliases included.
	Pages int `json:"pages"`

	// UniquePages is the number of distinct page contents.
	UniquePages int `json:"unique_pages"`

	// StaticAssets is the number of distinct static assets across all pages.
	StaticAssets int `json:"static_assets"`

	// ExternalLinks is the number of distinct links to other hosts.
	ExternalLinks int `json:"external_links"`

	// Pending is the number of URLs left in the frontier.
	Pending int `json:"pending"`

	// Failed is the number of URLs that could not be fetched or parsed.
	Failed int `json:"failed"`

	// LimitReached is true when the crawl stopped at the page limit.
	LimitReached bool `json:"limit_reached"`

	// Duration is how long the crawl ran.
	Duration time.Duration `json:"duration_ns"`
}

// NewSummary computes the summary of result.
func NewSummary(result *crawler.Result) *Summary {
	s := &Summary{
		Root:         result.Root,
		State:        result.State.String(),
		Pending:      len(result.Pending),
		Failed:       len(result.Failed),
		LimitReached: result.LimitReached,
		Duration:     result.Duration(),
	}
	if result.SiteMap == nil {
		return s
	}

	assets := make(map[string]struct{})
	external := make(map[string]struct{})
	for _, page := range result.SiteMap.Pages() {
		for _, a := range page.StaticAssets {
			assets[a] = struct{}{}
		}
		for _, l := range page.ExternalLinks {
			external[l] = struct{}{}
		}
	}
	s.Pages = result.SiteMap.Len()
	s.UniquePages = result.SiteMap.HashCount()
	s.StaticAssets = len(assets)
	s.ExternalLinks = len(external)
	return s
}

// Aliases returns how many recorded URLs served content already seen
// under another URL.
func (s *Summary) Aliases() int {
	return s.Pages - s.UniquePages
}

// Interrupted reports whether URLs were left unvisited.
func (s *Summary) Interrupted() bool {
	return s.State == crawler.Cancelled.String() || s.LimitReached
}
