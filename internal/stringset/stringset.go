// Package stringset holds the small set helpers used for capability,
// permission and requirement lists. Sets are slices kept in first-seen order
// so stored records stay readable and deterministic.
package stringset

import "strings"

// Normalize trims every entry, drops empties and removes duplicates while
// keeping first-seen order. The result is never nil.
func Normalize(items []string) []string {
	out := make([]string, 0, len(items))
	seen := make(map[string]struct{}, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if _, ok := seen[item]; ok {
			continue
		}
		seen[item] = struct{}{}
		out = append(out, item)
	}
	return out
}

// Contains reports whether items holds s exactly.
func Contains(items []string, s string) bool {
	for _, item := range items {
		if item == s {
			return true
		}
	}
	return false
}

// Union returns every entry of a followed by the entries of b not already
// present.
func Union(a, b []string) []string {
	return Normalize(append(append([]string{}, a...), b...))
}

// Difference returns the entries of a that are not in b.
func Difference(a, b []string) []string {
	drop := make(map[string]struct{}, len(b))
	for _, item := range b {
		drop[item] = struct{}{}
	}
	out := []string{}
	for _, item := range a {
		if _, ok := drop[item]; !ok {
			out = append(out, item)
		}
	}
	return out
}
