// Package bench runs one worker of the benchmark from sweep to exports.
//
// Every worker of the group calls Run with its own channel. Workers sweep
// the size list together, gather their results at rank 0, which renders the
// table and writes the exports, and finish on a shared barrier so a failure
// on any worker reaches all of them.
package bench

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/latency"
	"github.com/eunmann/numabench/pkg/logging"
	"github.com/eunmann/numabench/pkg/membudget"
	"github.com/eunmann/numabench/pkg/metrics"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/report"
	"github.com/eunmann/numabench/pkg/sizelist"
	"github.com/eunmann/numabench/pkg/sweep"
)

// Options are the validated run parameters shared by every worker.
type Options struct {
	Sizes  sizelist.List
	Mode   sweep.Mode
	Policy numa.Policy

	WarmupHops int
	TimedHops  int

	// Seed fixes the shuffle. Zero seeds from the clock once per run.
	Seed uint64

	// Export destinations; empty skips the export.
	CSVPath     string
	MappingPath string
	ParquetPath string
	MetricsPath string

	// NumaStat makes the last rank report the page placement of its final
	// buffer.
	NumaStat bool
}

// Env holds the collaborators a worker runs with.
type Env struct {
	Allocator numa.Allocator
	Topology  sweep.Topology
	Budget    *membudget.Budget
	Store     *report.Store

	// Stdout receives the table and the page census. Defaults to os.Stdout.
	Stdout io.Writer

	// NewProber overrides the latency probe for rank.
	NewProber func(rank int) sweep.Prober

	Observer sweep.Observer
}

func (e Env) stdout() io.Writer {
	if e.Stdout == nil {
		return os.Stdout
	}
	return e.Stdout
}

func (e Env) prober(rank int, opts Options) sweep.Prober {
	if e.NewProber != nil {
		return e.NewProber(rank)
	}
	seed := opts.Seed
	if seed == 0 {
		seed = uint64(time.Now().UnixNano())
	}
	p := &latency.Probe{
		WarmupHops: opts.WarmupHops,
		TimedHops:  opts.TimedHops,
		Rand:       latency.NewRand(seed, rank),
	}
	if e.Budget != nil {
		p.Scratch = e.Budget
	}
	return p
}

// Run executes the whole benchmark for the worker behind ch. Any error
// aborts the group before it is returned, so peers blocked in a collective
// fail too.
func Run(ctx context.Context, ch group.Channel, opts Options, env Env) (err error) {
	rank, size := ch.Rank(), ch.Size()
	ctx = logctx.WithWorker(ctx, rank, size)
	log := logctx.FromContext(ctx)

	defer func() {
		if err != nil {
			ch.Abort(err)
		}
	}()

	sw := &sweep.Sweeper{
		Channel: ch,
		Coordinator: &sweep.Coordinator{
			Mode:     opts.Mode,
			Channel:  ch,
			Probe:    env.prober(rank, opts),
			Observer: env.Observer,
		},
		Allocator: env.Allocator,
		Topology:  env.Topology,
		Policy:    opts.Policy,
		Budget:    env.Budget,
		Sizes:     opts.Sizes,
	}

	res, err := sw.Run(ctx)
	if err != nil {
		return fmt.Errorf("rank %d: sweep: %w", rank, err)
	}
	defer func() {
		if relErr := res.Release(); relErr != nil && err == nil {
			err = relErr
		}
	}()
	if res.GCCycles > 0 {
		log.Warn().Uint32("gc_cycles", res.GCCycles).Msg("measurements overlapped garbage collection")
	}

	if opts.MappingPath != "" {
		if err := report.ExportMapping(ctx, ch, res.Affinities[0], opts.MappingPath, env.Store); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
	}

	rows, err := report.Collect(ctx, ch, report.FromSweep(rank, res))
	if err != nil {
		return fmt.Errorf("rank %d: %w", rank, err)
	}
	if rows != nil {
		if err := publish(ctx, opts, env, rows); err != nil {
			return fmt.Errorf("rank %d: %w", rank, err)
		}
	}

	if opts.NumaStat {
		// The census follows the table on stdout.
		if err := ch.Barrier(ctx); err != nil {
			return fmt.Errorf("rank %d: barrier before census: %w", rank, err)
		}
		if rank == size-1 {
			printCensus(env.stdout(), log, rank, opts.Sizes[len(opts.Sizes)-1], res.Buffer())
		}
	}

	if err := ch.Barrier(ctx); err != nil {
		return fmt.Errorf("rank %d: final barrier: %w", rank, err)
	}
	log.Debug().Msg("worker finished")
	return nil
}

// publish renders the table and writes every configured export. Leader only.
func publish(ctx context.Context, opts Options, env Env, rows []report.WorkerResult) error {
	log := logctx.FromContext(ctx)
	sizes := []int(opts.Sizes)

	if err := report.WriteTable(env.stdout(), sizes, rows); err != nil {
		return fmt.Errorf("write table: %w", err)
	}

	exports := []struct {
		dest  string
		write func(io.Writer) error
	}{
		{opts.CSVPath, func(w io.Writer) error { return report.WriteResultsCSV(w, sizes, rows) }},
		{opts.ParquetPath, func(w io.Writer) error { return report.WriteParquet(w, sizes, rows) }},
	}
	for _, e := range exports {
		if e.dest == "" {
			continue
		}
		start := time.Now()
		if err := env.Store.Write(ctx, e.dest, e.write); err != nil {
			return fmt.Errorf("export %s: %w", e.dest, err)
		}
		logging.FileWritten(log, "export", time.Since(start)).Str("path", e.dest).Log("export written")
	}

	if opts.MetricsPath != "" {
		rec := metrics.NewRecorder()
		rec.SetWorkers(len(rows))
		for _, row := range rows {
			rec.ObservePlacement(row.Rank, row.Affinity.CPUDomain, row.Affinity.MemoryDomain)
			for i, mb := range sizes {
				if i < len(row.Latencies) {
					rec.ObserveLatency(row.Rank, mb, row.Mode, row.Latencies[i])
				}
			}
		}
		if err := rec.WriteTextfile(opts.MetricsPath); err != nil {
			return err
		}
		log.Info().Str("path", opts.MetricsPath).Msg("metrics written")
	}
	return nil
}

// printCensus reports how the pages of buf are spread across NUMA nodes.
func printCensus(w io.Writer, log zerolog.Logger, rank, sizeMB int, buf *numa.Buffer) {
	fmt.Fprintf(w, "\n=== NUMA page placement for rank %d ===\n", rank)
	fmt.Fprintf(w, "Process ID: %d\n", os.Getpid())
	fmt.Fprintf(w, "Allocated memory size: %d MB\n", sizeMB)

	census, err := numa.Census(buf)
	if err != nil {
		log.Warn().Err(err).Msg("page census unavailable")
		fmt.Fprintf(w, "[%d] page census unavailable: %v\n", rank, err)
		return
	}
	for _, node := range census.Nodes() {
		fmt.Fprintf(w, "[%d] node %d: %d pages\n", rank, node, census.ByNode[node])
	}
	if census.NotFound > 0 {
		fmt.Fprintf(w, "[%d] unresolved: %d pages\n", rank, census.NotFound)
	}
	fmt.Fprintf(w, "[%d] total: %d pages\n", rank, census.Pages)
	log.Info().Int("pages", census.Pages).Int("nodes", len(census.ByNode)).Msg("page census complete")
}
