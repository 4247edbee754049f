package sitemap

import (
	"errors"
	"fmt"
)

// ErrNoAlias is returned when a decoded page carries no URL.
var ErrNoAlias = errors.New("page has no URL alias")

// ContractViolationError reports a caller bug. AddPage panics with it instead
// of returning an error.
type ContractViolationError struct {
	// Op is the SiteMap operation that was misused.
	Op string

	// Reason describes the broken precondition.
	Reason string
}

// Error implements error.
func (e *ContractViolationError) Error() string {
	return fmt.Sprintf("sitemap: contract violation in %s: %s", e.Op, e.Reason)
}
