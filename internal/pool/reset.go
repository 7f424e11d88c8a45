package pool

import (
	"fmt"
	"strings"
)

// ResetPolicy decides what happens to a session's browser state when it is
// released back to its cache.
type ResetPolicy string

const (
	// ResetNone returns the session as-is. Cookies, navigation and open
	// dialogs carry over to the next borrower.
	ResetNone ResetPolicy = "none"
	// ResetBlank navigates to about:blank and deletes all cookies first.
	ResetBlank ResetPolicy = "blank"
)

// ParseResetPolicy parses a policy name. Empty means ResetNone.
func ParseResetPolicy(s string) (ResetPolicy, error) {
	switch ResetPolicy(strings.ToLower(strings.TrimSpace(s))) {
	case "", ResetNone:
		return ResetNone, nil
	case ResetBlank:
		return ResetBlank, nil
	default:
		return "", fmt.Errorf("unknown reset policy %q (valid: none, blank)", s)
	}
}
