// Package report turns per-worker sweep results into the leader's table and
// export files.
//
// Every worker calls Collect; only rank 0 receives the rows and renders them.
// Export writers take the gathered rows and an io.Writer, and Store routes
// that writer to a local file, a zstd-compressed file, or an S3 object.
package report

import (
	"context"
	"fmt"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/sweep"
)

// LeaderRank receives every gather.
const LeaderRank = 0

// WorkerResult is one worker's complete contribution to the report.
type WorkerResult struct {
	Rank int    `json:"rank"`
	Mode string `json:"mode"`

	// Latencies[i] is the ns per access at the i-th size.
	Latencies []float64 `json:"latencies"`

	// Affinity is the placement at the last size, shown in the table.
	Affinity numa.Affinity `json:"affinity"`

	// Affinities[i] is the placement at the i-th size.
	Affinities []numa.Affinity `json:"affinities"`
}

// FromSweep builds the worker's row from its sweep result.
func FromSweep(rank int, res *sweep.Result) WorkerResult {
	wr := WorkerResult{
		Rank:       rank,
		Mode:       res.Mode.String(),
		Latencies:  res.Latencies,
		Affinities: res.Affinities,
	}
	if n := len(res.Affinities); n > 0 {
		wr.Affinity = res.Affinities[n-1]
	}
	return wr
}

// Collect gathers every worker's result at the leader. The leader receives
// all rows ordered by rank; every other worker receives nil.
func Collect(ctx context.Context, ch group.Channel, own WorkerResult) ([]WorkerResult, error) {
	rows, err := group.GatherJSON(ctx, ch, own, LeaderRank)
	if err != nil {
		return nil, fmt.Errorf("gather results: %w", err)
	}
	if rows == nil {
		return nil, nil
	}
	for r := range rows {
		if rows[r].Rank != r {
			return nil, fmt.Errorf("gather results: slot %d holds rank %d", r, rows[r].Rank)
		}
	}
	logctx.FromContext(ctx).Debug().Int("rows", len(rows)).Msg("results gathered")
	return rows, nil
}

// latencyAt returns row's latency at size index i, or Failed when the worker
// produced fewer values than the size list holds.
func latencyAt(row WorkerResult, i int) float64 {
	if i < len(row.Latencies) {
		return row.Latencies[i]
	}
	return -1
}

// affinityAt returns row's placement at size index i, falling back to the
// last known placement.
func affinityAt(row WorkerResult, i int) numa.Affinity {
	if i < len(row.Affinities) {
		return row.Affinities[i]
	}
	return row.Affinity
}
