package cli

import (
	"fmt"
	"strconv"
)

// launcherVars are the rank and size variables exported by common process
// launchers, in lookup order.
var launcherVars = []struct {
	source, rank, size string
}{
	{"openmpi", "OMPI_COMM_WORLD_RANK", "OMPI_COMM_WORLD_SIZE"},
	{"pmi", "PMI_RANK", "PMI_SIZE"},
	{"slurm", "SLURM_PROCID", "SLURM_NTASKS"},
}

type identity struct {
	Rank   int
	Size   int
	Source string
}

// launcherIdentity returns the rank and size set by the first launcher whose
// variables are both present.
func launcherIdentity(getenv func(string) string) (identity, bool, error) {
	for _, lv := range launcherVars {
		rs, ss := getenv(lv.rank), getenv(lv.size)
		if rs == "" || ss == "" {
			continue
		}
		rank, err := strconv.Atoi(rs)
		if err != nil {
			return identity{}, false, fmt.Errorf("%s=%q: %w", lv.rank, rs, err)
		}
		size, err := strconv.Atoi(ss)
		if err != nil {
			return identity{}, false, fmt.Errorf("%s=%q: %w", lv.size, ss, err)
		}
		if size <= 0 || rank < 0 || rank >= size {
			return identity{}, false, fmt.Errorf("%s: rank %d out of range for size %d", lv.source, rank, size)
		}
		return identity{Rank: rank, Size: size, Source: lv.source}, true, nil
	}
	return identity{}, false, nil
}
