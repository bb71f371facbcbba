package latency

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestShuffleIsBijection(t *testing.T) {
	rng := NewRand(42, 0)
	for _, n := range []int{0, 1, 2, 3, 7, 64, 1000, 4097} {
		idx := make([]int, n)
		Identity(idx)
		Shuffle(rng, idx)

		sorted := slices.Clone(idx)
		slices.Sort(sorted)
		want := make([]int, n)
		Identity(want)
		require.Equal(t, want, sorted, "n=%d", n)
	}
}

func TestShuffleSmallInputsUnchanged(t *testing.T) {
	rng := NewRand(1, 0)

	var empty []int
	Shuffle(rng, empty)
	require.Empty(t, empty)

	one := []int{7}
	Shuffle(rng, one)
	require.Equal(t, []int{7}, one)
}

func TestShuffleDeterministicPerSeedAndRank(t *testing.T) {
	shuffled := func(seed uint64, rank int) []int {
		idx := make([]int, 256)
		Identity(idx)
		Shuffle(NewRand(seed, rank), idx)
		return idx
	}

	require.Equal(t, shuffled(9, 3), shuffled(9, 3))
	require.NotEqual(t, shuffled(9, 3), shuffled(9, 4), "ranks must not share an access pattern")
}

func TestShuffleMovesElements(t *testing.T) {
	idx := make([]int, 1024)
	Identity(idx)
	Shuffle(NewRand(7, 0), idx)

	fixed := 0
	for i, v := range idx {
		if i == v {
			fixed++
		}
	}
	// A uniform permutation has one fixed point on average.
	require.Less(t, fixed, 20)
}
