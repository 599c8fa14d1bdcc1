package validate

import "github.com/agnivade/levenshtein"

// Similarity returns the normalized edit-distance similarity of two strings
// in [0,1], computed over runes. Identical strings score 1.
func Similarity(a, b string) float64 {
	if a == b {
		return 1
	}
	la := len([]rune(a))
	lb := len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1 - float64(dist)/float64(longest)
}
