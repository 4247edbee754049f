package fetcher

import (
	"errors"
	"fmt"
)

// Fetch failure causes.
// A FetchError wraps exactly one of these (or a transport error), so callers
// can tell failure modes apart with errors.Is.
var (
	// ErrInvalidURL is returned when the URL cannot be turned into a request.
	ErrInvalidURL = errors.New("invalid URL")

	// ErrHTTPStatus is returned for responses with a status code of 400 or above.
	ErrHTTPStatus = errors.New("unexpected HTTP status")

	// ErrNotHTML is returned when the response is not an HTML document.
	// The crawler never parses other content types.
	ErrNotHTML = errors.New("content is not HTML")

	// ErrEmptyBody is returned when the response has no content.
	ErrEmptyBody = errors.New("empty response body")

	// ErrInvalidProxyAddress is returned when the SOCKS5 proxy address is not
	// in "host:port" format.
	ErrInvalidProxyAddress = errors.New("invalid proxy address format: expected host:port")
)

// FetchError reports a URL that could not be fetched as an HTML page.
// It is recorded by the crawler and never stops a crawl.
type FetchError struct {
	// URL is the requested URL.
	URL string

	// StatusCode is the HTTP status, or 0 when no response was received.
	StatusCode int

	// Err is the cause.
	Err error
}

// Error implements error.
func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %v (status %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

// Unwrap returns the cause.
func (e *FetchError) Unwrap() error {
	return e.Err
}
