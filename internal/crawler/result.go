package crawler

import (
	"fmt"
	"time"

	"github.com/nao1215/sitecrawl/internal/sitemap"
)

// State is the lifecycle state of a Spider.
type State int

const (
	// Idle means Crawl has not been called.
	Idle State = iota
	// Running means a crawl is in progress.
	Running
	// Completed means the frontier emptied or the page limit was reached.
	Completed
	// Cancelled means the context was cancelled before the frontier emptied.
	Cancelled
)

// String returns the lower-case state name.
func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Running:
		return "running"
	case Completed:
		return "completed"
	case Cancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// MarshalText encodes the state as its name.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText decodes a state name written by MarshalText.
func (s *State) UnmarshalText(text []byte) error {
	for _, st := range []State{Idle, Running, Completed, Cancelled} {
		if st.String() == string(text) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("%w: %q", ErrUnknownState, text)
}

// FailedLink is a URL that could not be fetched or parsed.
type FailedLink struct {
	// URL is the relative URL.
	URL string `json:"url"`

	// Reason is the error message.
	Reason string `json:"reason"`
}

// Result is the outcome of one crawl. It is returned both when the crawl
// completes and when it is cancelled; in the latter case Pending holds the
// URLs that were never visited.
type Result struct {
	// Root is the normalized domain root.
	Root string `json:"root"`

	// State is Completed or Cancelled.
	State State `json:"state"`

	// SiteMap holds every page recorded before the crawl stopped.
	SiteMap *sitemap.SiteMap `json:"sitemap"`

	// Pending lists the relative URLs still waiting in the frontier, sorted.
	Pending []string `json:"pending,omitempty"`

	// Failed lists the URLs that failed, sorted by URL.
	Failed []FailedLink `json:"failed,omitempty"`

	// LimitReached is true when the crawl stopped at the page limit.
	LimitReached bool `json:"limit_reached,omitempty"`

	// StartedAt is when Crawl was called.
	StartedAt time.Time `json:"started_at"`

	// FinishedAt is when Crawl returned.
	FinishedAt time.Time `json:"finished_at"`
}

// Duration returns how long the crawl ran.
func (r *Result) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

// Visit describes one finished visit. It is passed to the visit observer.
type Visit struct {
	// URL is the relative URL that was visited.
	URL string

	// Outcome tells how the page was recorded. Only meaningful when Err is nil.
	Outcome sitemap.Outcome

	// NewLinks is the number of URLs this visit added to the frontier.
	NewLinks int

	// Err is the fetch or parse failure, if any.
	Err error
}
