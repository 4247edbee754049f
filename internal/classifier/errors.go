package classifier

import (
	"errors"
	"fmt"
)

// ErrNoDocument is wrapped by InvalidContentError when no document was given.
var ErrNoDocument = errors.New("no document")

// InvalidContentError reports page content that could not be turned into a
// queryable document. The page is skipped and no links are extracted from it.
type InvalidContentError struct {
	// URL is the page the content was fetched from.
	URL string

	// Err is the underlying parse failure.
	Err error
}

// Error implements error.
func (e *InvalidContentError) Error() string {
	return fmt.Sprintf("invalid content at %s: %v", e.URL, e.Err)
}

// Unwrap returns the underlying parse failure.
func (e *InvalidContentError) Unwrap() error {
	return e.Err
}
