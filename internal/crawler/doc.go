// Package crawler crawls a single web domain and builds its sitemap.
//
// # Architecture
//
// The Spider owns three structures scoped to one crawl run:
//
//   - Frontier: the set of relative URLs waiting to be visited
//   - SiteMap: pages recorded so far, deduplicated by content hash
//   - failed set: URLs whose fetch or parse failed, never retried
//
// The crawl proceeds in batches. Each batch is the whole frontier, swapped
// out before any worker starts; its URLs are visited concurrently through an
// errgroup limited to the configured concurrency, and the same-domain links
// they discover are merged into the emptied frontier, which becomes the next
// batch. The crawl ends when a batch discovers nothing new.
//
// A visit resolves the URL against the root, skips it if the sitemap already
// has it, fetches it, hashes the raw bytes, classifies the document's links
// and records the page. URL dedup happens before the fetch; content dedup
// happens in the sitemap after it.
//
// # Usage
//
//	f := fetcher.New()
//	spider, err := crawler.NewSpider("example.com", f, crawler.WithConcurrency(4))
//	result, err := spider.Crawl(ctx)
//
// # Cancellation
//
// Cancelling the context stops the crawl between visits. The Result still
// carries every recorded page, the URLs left in the frontier and the failed
// URLs.
package crawler
