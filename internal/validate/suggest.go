package validate

import (
	"sort"
	"strings"
)

// similarityCutoff is the minimum edit-distance similarity for a value to
// count as a suggestion.
const similarityCutoff = 0.5

// nearest returns up to n allowed values ranked by similarity to the
// rejected value, most similar first, ties broken by label.
func nearest(value string, allowed []string, n int) []string {
	type scored struct {
		value string
		score float64
	}

	needle := strings.ToLower(value)
	var candidates []scored
	for _, a := range allowed {
		hay := strings.ToLower(a)
		longest := max(len([]rune(needle)), len([]rune(hay)))
		if longest == 0 {
			continue
		}
		score := 1 - float64(levenshtein(needle, hay))/float64(longest)
		if score >= similarityCutoff {
			candidates = append(candidates, scored{value: a, score: score})
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].score != candidates[j].score {
			return candidates[i].score > candidates[j].score
		}
		return candidates[i].value < candidates[j].value
	})

	if len(candidates) > n {
		candidates = candidates[:n]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.value
	}
	return out
}

// levenshtein computes the edit distance between two strings over runes
// with a two-row table.
func levenshtein(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}

	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}

	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
