// Package latency measures memory-access latency by chasing a randomized
// pointer ring through a raw buffer.
//
// The ring visits every pointer-sized slot of the buffer exactly once per
// cycle in a random order, which defeats hardware prefetching: each load
// depends on the value returned by the previous one, so elapsed time divided
// by hop count approximates the latency of a single access.
package latency

import (
	"math/rand/v2"
)

// NewRand returns the generator a worker owns for the whole run.
// Workers sharing a seed still get distinct streams because the rank selects
// the PCG increment.
func NewRand(seed uint64, rank int) *rand.Rand {
	return rand.New(rand.NewPCG(seed, uint64(rank)))
}

// Shuffle permutes idx in place with Fisher-Yates: for i from n-1 down to 1,
// idx[i] is swapped with a uniformly chosen element of idx[0..i].
// Slices of length 0 or 1 are left untouched.
func Shuffle(rng *rand.Rand, idx []int) {
	for i := len(idx) - 1; i > 0; i-- {
		j := rng.IntN(i + 1)
		idx[i], idx[j] = idx[j], idx[i]
	}
}

// Identity fills idx with 0..len(idx)-1.
func Identity(idx []int) {
	for i := range idx {
		idx[i] = i
	}
}
