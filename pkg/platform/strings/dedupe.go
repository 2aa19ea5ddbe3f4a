// Package strings provides slice normalization helpers for request input.
package strings

import (
	"strings"
)

// DedupeAndTrim trims each element, drops empties and duplicates, and keeps
// first-seen order.
//
//	DedupeAndTrim([]string{" cc-1 ", "cc-2", "cc-1", ""})
//	// []string{"cc-1", "cc-2"}
func DedupeAndTrim[S ~string](values []S) []S {
	return dedupe(values, strings.TrimSpace)
}

// DedupeAndTrimUpper is DedupeAndTrim with upper-casing, for enum-like input
// such as record types.
func DedupeAndTrimUpper[S ~string](values []S) []S {
	return dedupe(values, func(s string) string {
		return strings.ToUpper(strings.TrimSpace(s))
	})
}

func dedupe[S ~string](values []S, norm func(string) string) []S {
	if len(values) == 0 {
		return values
	}
	seen := make(map[S]struct{}, len(values))
	result := make([]S, 0, len(values))
	for _, v := range values {
		n := S(norm(string(v)))
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		result = append(result, n)
	}
	return result
}
