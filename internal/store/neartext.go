package store

import "strings"

// NearIdentical returns true if two strings are near-duplicates by character
// overlap, using the shared bigram ratio (Jaccard). The ingestion path uses it to
// suppress re-extraction churn; the nudge gate uses it for hook dedup.
func NearIdentical(a, b string, threshold float64) bool {
	a = strings.TrimSpace(a)
	b = strings.TrimSpace(b)
	if a == b {
		return true
	}
	if a == "" || b == "" {
		return false
	}

	bigramsA := bigrams(strings.ToLower(a))
	bigramsB := bigrams(strings.ToLower(b))
	if len(bigramsA) == 0 || len(bigramsB) == 0 {
		return a == b
	}

	shared := 0
	for bg := range bigramsA {
		if bigramsB[bg] {
			shared++
		}
	}

	union := len(bigramsA) + len(bigramsB) - shared
	if union == 0 {
		return true
	}

	similarity := float64(shared) / float64(union) // Jaccard index
	return similarity > threshold
}

func bigrams(s string) map[string]bool {
	if len(s) < 2 {
		return nil
	}
	m := make(map[string]bool, len(s)-1)
	for i := 0; i < len(s)-1; i++ {
		m[s[i:i+2]] = true
	}
	return m
}
