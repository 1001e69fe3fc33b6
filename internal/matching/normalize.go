package matching

import "strings"

// WildcardTag is the reserved tag for users searching without interests.
// It never appears in client input; NormalizeInterests drops it if a
// client tries to submit it directly.
const WildcardTag = "WILDCARD_ANY"

// NormalizeInterests trims, upper-cases, and de-duplicates the given
// tags, preserving first-seen order. Empty entries and the reserved
// wildcard tag are dropped. The canonical (uppercased) form is the form
// stored in every queue key.
func NormalizeInterests(tags []string) []string {
	seen := make(map[string]bool, len(tags))
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		t := strings.ToUpper(strings.TrimSpace(tag))
		if t == "" || t == WildcardTag || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

// intersect returns the elements of a that also occur in b, in a's order.
func intersect(a, b []string) []string {
	inB := make(map[string]bool, len(b))
	for _, t := range b {
		inB[t] = true
	}
	var common []string
	for _, t := range a {
		if inB[t] {
			common = append(common, t)
		}
	}
	return common
}
