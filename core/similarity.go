package orchestration

import "strings"

// defaultSimilarityThreshold is the normalized edit-distance similarity at
// which two transcripts are treated as the same utterance. Turn-end and
// results-channel events can both finalize the same speech with slightly
// different text, so equality alone is not enough.
const defaultSimilarityThreshold = 0.85

// areSimilar reports whether two transcripts are near-duplicates under a
// case-insensitive normalized Levenshtein metric. Empty inputs are never
// similar to anything.
func areSimilar(text1, text2 string, threshold float64) bool {
	if text1 == "" || text2 == "" {
		return false
	}

	lower1 := strings.ToLower(text1)
	lower2 := strings.ToLower(text2)
	if lower1 == lower2 {
		return true
	}

	runes1 := []rune(lower1)
	runes2 := []rune(lower2)
	distance := levenshtein(runes1, runes2)

	longest := len(runes1)
	if len(runes2) > longest {
		longest = len(runes2)
	}

	similarity := 1.0 - float64(distance)/float64(longest)
	return similarity >= threshold
}

func levenshtein(a, b []rune) int {
	if len(a) == 0 {
		return len(b)
	}
	if len(b) == 0 {
		return len(a)
	}

	previous := make([]int, len(b)+1)
	current := make([]int, len(b)+1)
	for j := range previous {
		previous[j] = j
	}

	for i := 1; i <= len(a); i++ {
		current[0] = i
		for j := 1; j <= len(b); j++ {
			cost := 1
			if a[i-1] == b[j-1] {
				cost = 0
			}

			current[j] = min(
				previous[j]+1,      // deletion
				current[j-1]+1,     // insertion
				previous[j-1]+cost, // substitution
			)
		}
		previous, current = current, previous
	}

	return previous[len(b)]
}
