package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/eunmann/numabench/internal/logctx"
	"github.com/eunmann/numabench/pkg/group"
	"github.com/eunmann/numabench/pkg/logging"
	"github.com/eunmann/numabench/pkg/membudget"
	"github.com/eunmann/numabench/pkg/memdiag"
	"github.com/eunmann/numabench/pkg/numa"
	"github.com/eunmann/numabench/pkg/sizelist"
)

const phase = "sweep"

// Topology reports where the calling worker runs. *numa.Topology
// implements it.
type Topology interface {
	Snapshot(rank int, buf *numa.Buffer) numa.Affinity
	Nodes() []int
}

// Sweeper drives one worker through every size of the list.
type Sweeper struct {
	Channel     group.Channel
	Coordinator *Coordinator
	Allocator   numa.Allocator
	Topology    Topology
	Policy      numa.Policy

	// Budget, when set, must grant each buffer before it is mapped.
	Budget *membudget.Budget

	Sizes sizelist.List
}

// Result is one worker's sweep outcome.
type Result struct {
	Mode  Mode
	Sizes sizelist.List

	// Latencies[i] is this worker's ns per access at Sizes[i].
	Latencies []float64

	// All[i] holds every rank's latency at Sizes[i] (serial mode only).
	All [][]float64

	// Affinities[i] is this worker's placement captured at Sizes[i].
	Affinities []numa.Affinity

	// GCCycles counts collections observed inside measurement windows.
	GCCycles uint32

	buffer   *numa.Buffer
	budget   *membudget.Budget
	reserved uint64
}

// Buffer returns the last size's buffer, alive until Release.
func (r *Result) Buffer() *numa.Buffer {
	return r.buffer
}

// Release frees the retained buffer and its budget reservation.
func (r *Result) Release() error {
	if r == nil || r.buffer == nil {
		return nil
	}
	err := r.buffer.Free()
	r.buffer = nil
	if r.budget != nil {
		r.budget.Release(r.reserved)
	}
	r.reserved = 0
	if err != nil {
		return fmt.Errorf("free buffer: %w", err)
	}
	return nil
}

// Run measures every size. Any error is fatal to the group; the caller
// aborts the channel. On success the last buffer stays mapped until
// Result.Release.
func (s *Sweeper) Run(ctx context.Context) (*Result, error) {
	if len(s.Sizes) == 0 {
		return nil, sizelist.ErrEmpty
	}
	log := logctx.FromContext(ctx)
	rank := s.Channel.Rank()

	tracker := memdiag.NewTracker(memdiag.DefaultConfig())
	progress := logging.NewSweepProgress(s.Sizes)

	node := s.Policy.Domain(rank, s.Topology.Nodes())
	log.Debug().Str("policy", s.Policy.String()).Int("node", node).Msg("placement chosen")

	res := &Result{
		Mode:       s.Coordinator.Mode,
		Sizes:      s.Sizes,
		Latencies:  make([]float64, 0, len(s.Sizes)),
		Affinities: make([]numa.Affinity, 0, len(s.Sizes)),
		budget:     s.Budget,
	}

	for _, mb := range s.Sizes {
		logging.SizeStarted(log, phase, mb, progress)
		start := time.Now()

		if err := s.measureSize(ctx, res, mb, node); err != nil {
			relErr := res.Release()
			return nil, errors.Join(fmt.Errorf("size %dMB: %w", mb, err), relErr)
		}

		own := res.Latencies[len(res.Latencies)-1]
		aff := res.Affinities[len(res.Affinities)-1]
		elapsed := time.Since(start)
		progress.Done(elapsed, own >= 0)

		tracker.SetPhase(fmt.Sprintf("size_%dMB", mb))
		if s.Budget != nil {
			tracker.LogWithBudget("size measured", s.Budget.InUse(), s.Budget.Total())
		}

		logging.SizeComplete(log, phase, elapsed).
			Int("size_mb", mb).
			Latency("ns_per_hop", own).
			Int("cpu", aff.CPU).
			Int("cpu_numa", aff.CPUDomain).
			Int("memory_numa", aff.MemoryDomain).
			Sweep(progress).
			Log("size measured")
	}

	logging.PhaseComplete(log, phase, progress.Elapsed()).
		Int("sizes", len(s.Sizes)).
		Str("mode", res.Mode.String()).
		Bytes("peak_heap", int64(tracker.PeakHeap())).
		Log("sweep complete")
	return res, nil
}

// measureSize releases the previous buffer, maps the new one, snapshots
// placement, then measures between two barriers. The previous size's probe
// scratch is collected before the first barrier, and the collector stays off
// only while the coordinator measures.
func (s *Sweeper) measureSize(ctx context.Context, res *Result, mb int, node int) error {
	log := logctx.FromContext(logctx.WithSize(ctx, mb))

	if err := res.Release(); err != nil {
		return err
	}
	if err := s.alloc(res, mb, node); err != nil {
		return err
	}

	aff := s.Topology.Snapshot(s.Channel.Rank(), res.buffer)
	res.Affinities = append(res.Affinities, aff)

	memdiag.Reclaim()
	if err := s.Channel.Barrier(ctx); err != nil {
		return fmt.Errorf("barrier before measurement: %w", err)
	}

	restore := memdiag.SuspendGC()
	w := memdiag.Watch()
	round, err := s.Coordinator.Measure(ctx, res.buffer.Bytes())
	gc := w.Close()
	restore()
	if err != nil {
		return err
	}

	if err := s.Channel.Barrier(ctx); err != nil {
		return fmt.Errorf("barrier after measurement: %w", err)
	}

	if gc.GCCycles > 0 {
		res.GCCycles += gc.GCCycles
		log.Warn().Uint32("gc_cycles", gc.GCCycles).Uint64("pause_ns", gc.PauseNs).
			Msg("garbage collection ran during measurement")
	}

	res.Latencies = append(res.Latencies, round.Own)
	if round.All != nil {
		res.All = append(res.All, round.All)
	}
	return nil
}

func (s *Sweeper) alloc(res *Result, mb int, node int) error {
	n := sizelist.Bytes(mb)
	if s.Budget != nil {
		if err := s.Budget.Acquire(uint64(n)); err != nil {
			return fmt.Errorf("reserve %s: %w", membudget.FormatBytes(uint64(n)), err)
		}
	}
	buf, err := s.Allocator.Alloc(n, node)
	if err != nil {
		if s.Budget != nil {
			s.Budget.Release(uint64(n))
		}
		return fmt.Errorf("allocate: %w", err)
	}
	res.buffer = buf
	res.reserved = uint64(n)
	return nil
}
