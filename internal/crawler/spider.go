package crawler

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/nao1215/sitecrawl/internal/classifier"
	"github.com/nao1215/sitecrawl/internal/fetcher"
	"github.com/nao1215/sitecrawl/internal/sitemap"
	"github.com/nao1215/sitecrawl/internal/urlutil"
)

// DefaultConcurrency is the number of visits that run at the same time.
const DefaultConcurrency = 8

// Fetcher downloads a page. *fetcher.Fetcher satisfies it; tests use fakes.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*fetcher.Response, error)
}

// Spider crawls every page of one domain reachable from its root.
//
// Design decision: We call it "Spider" rather than "Crawler" because:
//  1. "Spider" is the traditional term for web crawlers
//  2. Distinguishes the component from the package name
//  3. Clearer in code: crawler.NewSpider() vs crawler.NewCrawler()
//
// A Spider runs at most one crawl. Its frontier, failed set and sitemap are
// scoped to that crawl and shared by reference with the workers.
type Spider struct {
	// fetcher downloads pages.
	fetcher Fetcher

	// root is the normalized domain root. Relative URLs resolve against it.
	root *url.URL

	// seed is the relative form of root, the first URL visited.
	seed string

	// concurrency bounds the number of visits running at once.
	concurrency int

	// maxPages stops the crawl once this many URLs are recorded.
	// 0 means no limit.
	maxPages int

	// ignorePatterns are URL path patterns to skip during crawling.
	ignorePatterns []string

	// followPatterns restrict crawling to matching URL paths when set.
	followPatterns []string

	// observer is called after every visit.
	observer func(Visit)

	logger *slog.Logger

	// mu protects state and failed.
	mu     sync.Mutex
	state  State
	failed map[string]string

	frontier *Frontier
	sitemap  *sitemap.SiteMap
}

// SpiderOption configures a Spider.
type SpiderOption func(*Spider)

// WithConcurrency sets how many visits run at once.
// Non-positive values keep DefaultConcurrency.
func WithConcurrency(n int) SpiderOption {
	return func(s *Spider) {
		if n > 0 {
			s.concurrency = n
		}
	}
}

// WithMaxPages stops the crawl once n URLs are recorded. 0 means no limit.
func WithMaxPages(n int) SpiderOption {
	return func(s *Spider) {
		if n >= 0 {
			s.maxPages = n
		}
	}
}

// WithIgnorePatterns sets URL path patterns to skip during crawling.
// Patterns use glob syntax (e.g., "/admin/*", "*.pdf", "/logout*").
func WithIgnorePatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.ignorePatterns = patterns
	}
}

// WithFollowPatterns sets URL path patterns to follow during crawling.
// If set, only URLs matching at least one pattern are crawled. The root is
// always visited.
func WithFollowPatterns(patterns []string) SpiderOption {
	return func(s *Spider) {
		s.followPatterns = patterns
	}
}

// WithVisitObserver registers fn to be called after every visit.
// fn is called from worker goroutines and must be safe for concurrent use.
func WithVisitObserver(fn func(Visit)) SpiderOption {
	return func(s *Spider) {
		s.observer = fn
	}
}

// WithLogger sets the logger used for per-visit logging.
func WithLogger(logger *slog.Logger) SpiderOption {
	return func(s *Spider) {
		s.logger = logger
	}
}

// NewSpider creates a Spider for the domain root. A root without a scheme
// gets "http://" prepended; a root without a path gets "/".
func NewSpider(root string, f Fetcher, opts ...SpiderOption) (*Spider, error) {
	if f == nil {
		return nil, ErrNoFetcher
	}
	u, err := urlutil.NormalizeRoot(root)
	if err != nil {
		return nil, err
	}

	s := &Spider{
		fetcher:     f,
		root:        u,
		seed:        urlutil.Relative(u.String()),
		concurrency: DefaultConcurrency,
		failed:      make(map[string]string),
		frontier:    NewFrontier(),
		sitemap:     sitemap.New(),
	}

	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		s.logger = slog.Default()
	}

	return s, nil
}

// Root returns the normalized domain root.
func (s *Spider) Root() string {
	return s.root.String()
}

// State returns the current lifecycle state.
func (s *Spider) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Crawl visits every same-domain page reachable from the root.
//
// The frontier is processed in batches: the whole frontier is swapped out,
// its URLs are visited concurrently, and the links they discover form the
// next batch. Batches run strictly one after another.
//
// Cancelling ctx is not an error. No new batch or visit starts, in-flight
// fetches are aborted and their URLs go back to the frontier, and Crawl
// returns the partial result with State Cancelled.
func (s *Spider) Crawl(ctx context.Context) (*Result, error) {
	s.mu.Lock()
	if s.state != Idle {
		s.mu.Unlock()
		return nil, ErrAlreadyStarted
	}
	s.state = Running
	s.mu.Unlock()

	startedAt := time.Now()
	s.logger.Info("starting crawl",
		"root", s.root.String(),
		"concurrency", s.concurrency,
	)

	s.frontier.Add(s.seed)

	limitReached := false
	for ctx.Err() == nil {
		if s.limitReached() {
			limitReached = true
			break
		}

		batch := s.frontier.Swap()
		if len(batch) == 0 {
			break
		}

		s.logger.Debug("starting batch", "size", len(batch))
		s.runBatch(ctx, batch)
	}

	state := Completed
	if ctx.Err() != nil {
		state = Cancelled
	}

	s.mu.Lock()
	s.state = state
	s.mu.Unlock()

	result := &Result{
		Root:         s.root.String(),
		State:        state,
		SiteMap:      s.sitemap,
		Pending:      s.frontier.Snapshot(),
		Failed:       s.failedLinks(),
		LimitReached: limitReached,
		StartedAt:    startedAt,
		FinishedAt:   time.Now(),
	}

	s.logger.Info("crawl finished",
		"state", state.String(),
		"pages", s.sitemap.Len(),
		"pending", len(result.Pending),
		"failed", len(result.Failed),
		"duration", result.Duration(),
	)

	return result, nil
}

// runBatch visits every URL of batch with at most s.concurrency visits at
// once and returns when all of them are done.
//
// Design decision: We use errgroup.SetLimit rather than a worker pool
// because it's simpler and errgroup handles the concurrency correctly.
// Visits never return errors; failures are recorded in the failed set.
func (s *Spider) runBatch(ctx context.Context, batch []string) {
	var g errgroup.Group
	g.SetLimit(s.concurrency)

	for _, link := range batch {
		g.Go(func() error {
			s.visit(ctx, link)
			return nil
		})
	}

	_ = g.Wait() //nolint:errcheck // visits always return nil
}

// visit fetches one URL, records its page and merges its links into the
// frontier.
func (s *Spider) visit(ctx context.Context, link string) {
	// Abandoned visits stay pending.
	if ctx.Err() != nil || s.limitReached() {
		s.frontier.Add(link)
		return
	}

	resolved, err := urlutil.Resolve(s.root, link)
	if err != nil {
		s.fail(link, err)
		return
	}
	rel := urlutil.Relative(resolved.String())

	if s.sitemap.HasPage(rel) || s.hasFailed(rel) {
		return
	}

	s.logger.Debug("visiting", "url", resolved.String())

	resp, err := s.fetcher.Fetch(ctx, resolved.String())
	if err != nil {
		if ctx.Err() != nil {
			s.frontier.Add(rel)
			return
		}
		s.logger.Info("fetch failed", "url", resolved.String(), "error", err)
		s.fail(rel, err)
		return
	}

	hash := sitemap.ComputeHash(resp.Content)

	cl, doc, err := classifier.FromHTML(resolved.String(), resp.Content)
	if err != nil {
		s.logger.Info("invalid content", "url", resolved.String(), "error", err)
		s.fail(rel, err)
		return
	}

	links, external := s.partition(cl)
	page := sitemap.NewPage(resolved.String(), hash, cl.StaticAssets(), links)
	page.ExternalLinks = external
	page.Title = doc.Title()

	outcome := s.sitemap.AddPage(page)
	if outcome == sitemap.Aliased {
		canonical := ""
		if p, ok := s.sitemap.PageByHash(hash); ok && len(p.URLs) > 0 {
			canonical = p.URLs[0]
		}
		s.logger.Debug("duplicate content", "url", rel, "canonical", canonical, "hash", hash)
	}

	added := 0
	for _, l := range page.Links {
		if s.sitemap.HasPage(l) || s.hasFailed(l) || !s.shouldCrawl(l) {
			continue
		}
		if s.frontier.Add(l) {
			added++
		}
	}

	s.notify(Visit{URL: rel, Outcome: outcome, NewLinks: added})
}

// partition splits the classified forward links into links on the root host,
// which may be crawled, and all other forward links. The classifier compares
// hosts with the page's base URL, which a <base href> can point elsewhere.
func (s *Spider) partition(cl *classifier.Classifier) (links, external []string) {
	for _, l := range slices.Concat(cl.SameDomainLinks(), cl.ExternalLinks()) {
		u, err := url.Parse(l)
		if err == nil && u.Host == s.root.Host {
			links = append(links, l)
		} else {
			external = append(external, l)
		}
	}
	slices.Sort(external)
	return links, external
}

// fail records link as failed and notifies the observer.
func (s *Spider) fail(link string, err error) {
	s.mu.Lock()
	s.failed[link] = err.Error()
	s.mu.Unlock()

	s.notify(Visit{URL: link, Err: err})
}

func (s *Spider) hasFailed(link string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.failed[link]
	return ok
}

func (s *Spider) failedLinks() []FailedLink {
	s.mu.Lock()
	defer s.mu.Unlock()
	failed := make([]FailedLink, 0, len(s.failed))
	for u, reason := range s.failed {
		failed = append(failed, FailedLink{URL: u, Reason: reason})
	}
	slices.SortFunc(failed, func(a, b FailedLink) int {
		return cmp.Compare(a.URL, b.URL)
	})
	return failed
}

func (s *Spider) limitReached() bool {
	return s.maxPages > 0 && s.sitemap.Len() >= s.maxPages
}

func (s *Spider) notify(v Visit) {
	if s.observer != nil {
		s.observer(v)
	}
}

// Stats returns current crawl statistics. It may be called while a crawl
// is running.
func (s *Spider) Stats() SpiderStats {
	s.mu.Lock()
	failed := len(s.failed)
	s.mu.Unlock()
	return SpiderStats{
		PagesVisited: s.sitemap.Len(),
		UniquePages:  s.sitemap.HashCount(),
		Pending:      s.frontier.Len(),
		Failed:       failed,
	}
}

// SpiderStats contains crawl statistics.
type SpiderStats struct {
	// PagesVisited is the number of URLs recorded in the sitemap.
	PagesVisited int

	// UniquePages is the number of distinct page contents.
	UniquePages int

	// Pending is the number of URLs waiting in the frontier.
	Pending int

	// Failed is the number of URLs that could not be fetched or parsed.
	Failed int
}

// String formats the statistics for progress output.
func (st SpiderStats) String() string {
	return fmt.Sprintf("%d pages (%d unique), %d pending, %d failed",
		st.PagesVisited, st.UniquePages, st.Pending, st.Failed)
}
