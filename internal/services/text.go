package services

import (
	"strings"

	"golang.org/x/text/cases"
)

// matchesQuery reports whether q occurs in any of fields, ignoring case. A
// blank query matches everything.
func matchesQuery(q string, fields ...string) bool {
	q = strings.TrimSpace(q)
	if q == "" {
		return true
	}
	// Caser is stateful; one per call.
	fold := cases.Fold()
	needle := fold.String(q)
	for _, f := range fields {
		if strings.Contains(fold.String(f), needle) {
			return true
		}
	}
	return false
}

// foldKey is the case-insensitive sort key of a display title.
func foldKey(s string) string { return cases.Fold().String(s) }

// stamp formats a creation time the way conversation titles show it.
const stamp = "1/2/2006, 3:04:05 PM"
