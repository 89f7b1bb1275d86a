// Package shuffle provides the uniform-random permutation required for
// select's per-call fairness guarantee (see spec's "Fairness (statistical)"
// property: over many calls where k operations are always ready, each
// index is chosen with frequency approaching 1/k). Insertion order, or any
// other biased order, would fail that property.
package shuffle

import "math/rand/v2"

// Slice shuffles s in place using a uniform Fisher-Yates permutation.
func Slice[T any](s []T) {
	rand.Shuffle(len(s), func(i, j int) {
		s[i], s[j] = s[j], s[i]
	})
}
