package report

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/numa"
)

// WriteResultsCSV writes one line per size: the size in MB followed by each
// rank's latency.
//
//	size (MB),0,1
//	512,88.10,131.42
func WriteResultsCSV(w io.Writer, sizes []int, rows []WorkerResult) error {
	cw := csv.NewWriter(w)

	header := make([]string, 0, len(rows)+1)
	header = append(header, "size (MB)")
	for r := range rows {
		header = append(header, strconv.Itoa(r))
	}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	record := make([]string, len(rows)+1)
	for i, mb := range sizes {
		record[0] = strconv.Itoa(mb)
		for r, row := range rows {
			record[r+1] = strconv.FormatFloat(latencyAt(row, i), 'f', 2, 64)
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row for %dMB: %w", mb, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// WriteMappingCSV writes the rank to CPU and memory domain mapping.
func WriteMappingCSV(w io.Writer, affs []numa.Affinity) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"rank", "cpu_id", "cpu_numa", "memory_numa"}); err != nil {
		return fmt.Errorf("write mapping header: %w", err)
	}
	for _, a := range affs {
		rec := []string{
			strconv.Itoa(a.Rank),
			strconv.Itoa(a.CPU),
			strconv.Itoa(a.CPUDomain),
			strconv.Itoa(a.MemoryDomain),
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("write mapping row for rank %d: %w", a.Rank, err)
		}
	}
	cw.Flush()
	return cw.Error()
}

// ExportMapping gathers every worker's placement at the leader, which writes
// the mapping CSV to dest. Non-leaders return once their snapshot is sent.
func ExportMapping(ctx context.Context, ch group.Channel, aff numa.Affinity, dest string, store *Store) error {
	affs, err := group.GatherJSON(ctx, ch, aff, LeaderRank)
	if err != nil {
		return fmt.Errorf("gather mapping: %w", err)
	}
	if !group.IsLeader(ch) {
		return nil
	}
	if err := store.Write(ctx, dest, func(w io.Writer) error {
		return WriteMappingCSV(w, affs)
	}); err != nil {
		return fmt.Errorf("export mapping: %w", err)
	}
	logctx.FromContext(ctx).Info().Str("path", dest).Int("ranks", len(affs)).Msg("mapping written")
	return nil
}
