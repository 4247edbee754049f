package crawler

import (
	"slices"
	"sync"
)

// Frontier is the set of relative URLs waiting to be visited.
// Visit order is not significant, so it is a set rather than a queue.
// A Frontier is safe for concurrent use.
type Frontier struct {
	mu   sync.Mutex
	urls map[string]struct{}
}

// NewFrontier returns an empty Frontier.
func NewFrontier() *Frontier {
	return &Frontier{urls: make(map[string]struct{})}
}

// Add inserts url and reports whether it was not already present.
func (f *Frontier) Add(url string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.urls[url]; ok {
		return false
	}
	f.urls[url] = struct{}{}
	return true
}

// Swap empties the frontier and returns its previous contents, sorted.
// Workers of a batch add to the emptied set, which becomes the next batch.
func (f *Frontier) Swap() []string {
	f.mu.Lock()
	batch := f.urls
	f.urls = make(map[string]struct{})
	f.mu.Unlock()
	return sortedKeys(batch)
}

// Len returns the number of waiting URLs.
func (f *Frontier) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.urls)
}

// Snapshot returns the waiting URLs, sorted, without removing them.
func (f *Frontier) Snapshot() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return sortedKeys(f.urls)
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
