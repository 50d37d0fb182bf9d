// Package cluster implements the online clustering engine: candidate
// retrieval, the matching cascade, and the per-partition change-stream
// subscriber that drives it.
package cluster

import (
	"regexp"
	"strings"
)

var wordPattern = regexp.MustCompile(`[a-z0-9]+`)

func tokenSet(title string) map[string]struct{} {
	set := make(map[string]struct{})
	for _, tok := range wordPattern.FindAllString(strings.ToLower(title), -1) {
		set[tok] = struct{}{}
	}
	return set
}

// JaccardTokens computes the Jaccard similarity of the two titles'
// lowercased token sets (§4.3's jaccard_tokens).
func JaccardTokens(titleA, titleB string) float64 {
	a := tokenSet(titleA)
	b := tokenSet(titleB)
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	intersection := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			intersection++
		}
	}
	union := len(a) + len(b) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// EntityOverlap counts distinct entity texts shared between two sets,
// case-insensitively (§4.3's |entities_new ∩ entities_cluster|).
func EntityOverlap(a, b []string) int {
	set := make(map[string]struct{}, len(a))
	for _, e := range a {
		set[strings.ToLower(e)] = struct{}{}
	}
	count := 0
	seen := make(map[string]struct{}, len(b))
	for _, e := range b {
		key := strings.ToLower(e)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		if _, ok := set[key]; ok {
			count++
		}
	}
	return count
}
