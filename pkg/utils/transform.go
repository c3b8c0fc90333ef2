package utils

import (
	"sort"
	"strings"
)

// Dedup removes duplicates (ignoring trailing slashes) while keeping first-seen order.
func Dedup(in []string) []string {
	seen := map[string]bool{}
	out := []string{}
	for _, e := range in {
		e = strings.TrimRight(e, "/")
		if !seen[e] {
			seen[e] = true
			out = append(out, e)
		}
	}
	return out
}

// SortedUnique returns the non-empty distinct values of in, sorted ascending.
// The input slice is never modified.
func SortedUnique(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, e := range in {
		if e == "" {
			continue
		}
		if _, ok := seen[e]; ok {
			continue
		}
		seen[e] = struct{}{}
		out = append(out, e)
	}
	sort.Strings(out)
	return out
}

// SortedJoin joins the sorted distinct values of in with commas, so that
// SortedJoin([b a]) == SortedJoin([a b]).
func SortedJoin(in []string) string {
	return strings.Join(SortedUnique(in), ",")
}
