package crawler

import "errors"

var (
	// ErrAlreadyStarted is returned by Crawl when the Spider has already run.
	// A Spider owns one frontier and one sitemap, so it crawls at most once.
	ErrAlreadyStarted = errors.New("crawl already started")

	// ErrNoFetcher is returned by NewSpider when no Fetcher is given.
	ErrNoFetcher = errors.New("no fetcher configured")

	// ErrUnknownState is returned when decoding a state name that does not exist.
	ErrUnknownState = errors.New("unknown crawl state")
)
