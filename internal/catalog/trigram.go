package catalog

import (
	"strings"
	"unicode"
)

type trigramSet map[string]struct{}

// trigrams splits s into words of letters and digits and collects the
// padded trigrams of each word the same way pg_trgm does: two blanks in
// front, one behind.
func trigrams(s string) trigramSet {
	set := make(trigramSet)
	words := strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
	for _, w := range words {
		padded := []rune("  " + w + " ")
		for i := 0; i+3 <= len(padded); i++ {
			set[string(padded[i:i+3])] = struct{}{}
		}
	}
	return set
}

// jaccard returns |a ∩ b| / |a ∪ b|, or 0 when both sets are empty.
func jaccard(a, b trigramSet) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	if len(b) < len(a) {
		a, b = b, a
	}
	shared := 0
	for g := range a {
		if _, ok := b[g]; ok {
			shared++
		}
	}
	return float64(shared) / float64(len(a)+len(b)-shared)
}

// Similarity scores two descriptions in [0, 1] after normalization. It is
// symmetric and equals 1 for descriptions that normalize identically.
func Similarity(a, b string) float64 {
	return jaccard(trigrams(Normalize(a)), trigrams(Normalize(b)))
}
