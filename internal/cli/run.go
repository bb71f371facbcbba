package cli

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/bench"
	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/humanfmt"
	"github.com/eunmann/numabench/pkg/logging"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/report"
)

// execute runs every worker this process hosts.
func execute(ctx context.Context, cfg *Config, argv []string) error {
	ctx = logctx.WithLogger(ctx, *logging.L())
	log := logctx.FromContext(ctx)

	log.Info().
		Int("world_size", cfg.WorldSize).
		Bool("multi_process", cfg.MultiProcess).
		Str("sizes", cfg.Bench.Sizes.String()).
		Str("mode", cfg.Bench.Mode.String()).
		Str("membind", cfg.Bench.Policy.String()).
		Str("mem_budget", humanfmt.BytesUint64(cfg.Budget.Total())).
		Str("mem_budget_source", string(cfg.Budget.Source())).
		Msg("starting numabench")

	topo := numa.NewTopology()
	env := bench.Env{
		Allocator: numa.NewAllocator(),
		Topology:  topo,
		Budget:    cfg.Budget,
		Store:     &report.Store{},
	}

	// One seed for the whole process keeps in-process ranks reproducible
	// relative to each other.
	if cfg.Bench.Seed == 0 {
		cfg.Bench.Seed = uint64(time.Now().UnixNano())
	}

	start := time.Now()
	var err error
	if cfg.MultiProcess {
		err = runMultiProcess(ctx, cfg, env, topo, argv)
	} else {
		err = runInProcess(ctx, cfg, env, topo, argv)
	}
	if err != nil {
		return err
	}
	st := cfg.Budget.Stats()
	logging.PhaseComplete(log, "numabench", time.Since(start)).
		Int("workers", cfg.WorldSize).
		Bytes("budget_peak", int64(st.PeakBytes)).
		Float64("budget_peak_pct", float64(st.PeakBytes)/float64(max(st.TotalBytes, 1))*100).
		Log("benchmark complete")
	return nil
}

// runInProcess runs cfg.Workers goroutines, each locked to its own OS
// thread and optionally pinned to one CPU of cfg.Pin.
func runInProcess(ctx context.Context, cfg *Config, env bench.Env, topo *numa.Topology, argv []string) error {
	locals, err := group.NewLocal(cfg.Workers)
	if err != nil {
		return err
	}
	if cfg.Debug {
		logBanner(logctx.FromContext(ctx), cfg, topo, argv)
	}

	var g errgroup.Group
	for r, ch := range group.Channels(locals) {
		g.Go(func() error {
			runtime.LockOSThread()
			defer runtime.UnlockOSThread()

			if len(cfg.Pin) > 0 {
				cpu := cfg.Pin[r%len(cfg.Pin)]
				if err := numa.Pin([]int{cpu}); err != nil {
					err = fmt.Errorf("rank %d: pin to cpu %d: %w", r, cpu, err)
					ch.Abort(err)
					return err
				}
			}
			return bench.Run(ctx, ch, cfg.Bench, env)
		})
	}
	return g.Wait()
}

// runMultiProcess joins the rendezvous as cfg.Rank and runs one worker.
func runMultiProcess(ctx context.Context, cfg *Config, env bench.Env, topo *numa.Topology, argv []string) error {
	ctx = logctx.WithStr(ctx, "coordinator", cfg.Coordinator)
	log := logctx.FromContext(ctx)
	log.Debug().
		Int("rank", cfg.Rank).
		Str("launcher", cfg.Launcher).
		Msg("joining group")

	ch, err := group.Join(ctx, cfg.Coordinator, cfg.Rank, cfg.WorldSize)
	if err != nil {
		return fmt.Errorf("rank %d: join group at %s: %w", cfg.Rank, cfg.Coordinator, err)
	}
	defer ch.Close()

	if cfg.Debug && group.IsLeader(ch) {
		logBanner(log, cfg, topo, argv)
	}
	return bench.Run(ctx, ch, cfg.Bench, env)
}
