// Package memdiag keeps the Go runtime out of the way of timed regions and
// reports runtime memory usage for debugging.
//
// Enable debug logging with NUMABENCH_MEM_DEBUG=1.
package memdiag

import (
	"fmt"
	"os"
	"runtime"
	"runtime/debug"
	"sync"

	"github.com/eunmann/numabench/pkg/logging"
)

// Config holds configuration for memory diagnostics.
type Config struct {
	// Enabled controls whether memory diagnostics are logged.
	Enabled bool
}

// DefaultConfig returns the default configuration, reading from environment.
func DefaultConfig() Config {
	return Config{
		Enabled: os.Getenv("NUMABENCH_MEM_DEBUG") == "1",
	}
}

// Stats holds memory statistics from runtime.
type Stats struct {
	// HeapAlloc is bytes allocated on heap.
	HeapAlloc uint64

	// HeapSys is bytes obtained from OS for heap.
	HeapSys uint64

	// Sys is bytes obtained from OS.
	Sys uint64

	// NumGC is the number of completed GC cycles.
	NumGC uint32

	// PauseTotalNs is the cumulative stop-the-world pause time.
	PauseTotalNs uint64
}

// Read reads current memory statistics.
func Read() Stats {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	return Stats{
		HeapAlloc:    m.HeapAlloc,
		HeapSys:      m.HeapSys,
		Sys:          m.Sys,
		NumGC:        m.NumGC,
		PauseTotalNs: m.PauseTotalNs,
	}
}

// FormatMB formats bytes as megabytes.
func FormatMB(b uint64) string {
	return fmt.Sprintf("%.1fMB", float64(b)/(1024*1024))
}

var (
	suspendMu    sync.Mutex
	suspendDepth int
	suspendPrev  int
)

// SuspendGC turns the collector off and returns a function restoring the
// previous setting. Suspensions nest: in-process workers each suspend around
// their own measurement and collection resumes when the last one restores.
// Hold it only for one measurement; garbage allocated meanwhile is not
// reclaimed until the collector is back.
func SuspendGC() (restore func()) {
	suspendMu.Lock()
	if suspendDepth == 0 {
		suspendPrev = debug.SetGCPercent(-1)
	}
	suspendDepth++
	suspendMu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			suspendMu.Lock()
			defer suspendMu.Unlock()
			suspendDepth--
			if suspendDepth == 0 {
				debug.SetGCPercent(suspendPrev)
			}
		})
	}
}

// Reclaim runs a full collection and returns freed memory to the OS.
// Call it between measurements, never inside a timed region.
func Reclaim() {
	debug.FreeOSMemory()
}

// Window records runtime counters at its start so interference can be
// measured when it closes.
type Window struct {
	start Stats
}

// Watch opens a Window.
func Watch() Window {
	return Window{start: Read()}
}

// Interference describes runtime activity inside a Window.
type Interference struct {
	GCCycles uint32
	PauseNs  uint64
}

// Close returns what happened since Watch.
func (w Window) Close() Interference {
	end := Read()
	return Interference{
		GCCycles: end.NumGC - w.start.NumGC,
		PauseNs:  end.PauseTotalNs - w.start.PauseTotalNs,
	}
}

// Tracker logs memory usage at phase changes.
type Tracker struct {
	config   Config
	mu       sync.Mutex
	phase    string
	peakHeap uint64
}

// NewTracker creates a new memory tracker.
func NewTracker(config Config) *Tracker {
	return &Tracker{
		config: config,
		phase:  "init",
	}
}

// SetPhase sets the current phase for logging context.
func (t *Tracker) SetPhase(phase string) {
	t.mu.Lock()
	t.phase = phase
	t.mu.Unlock()

	if t.config.Enabled {
		t.LogNow("phase_change")
	}
}

// LogNow logs current memory stats immediately.
func (t *Tracker) LogNow(reason string) {
	if !t.config.Enabled {
		return
	}

	stats := Read()
	phase, peak := t.observe(stats)

	logging.L().Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", FormatMB(stats.HeapAlloc)).
		Str("heap_sys", FormatMB(stats.HeapSys)).
		Str("sys_total", FormatMB(stats.Sys)).
		Str("peak_heap", FormatMB(peak)).
		Uint32("num_gc", stats.NumGC).
		Msg("memory stats")
}

// LogWithBudget logs memory stats along with the buffer budget.
func (t *Tracker) LogWithBudget(reason string, budgetInUse, budgetTotal uint64) {
	if !t.config.Enabled {
		return
	}

	stats := Read()
	phase, peak := t.observe(stats)

	logging.L().Debug().
		Str("reason", reason).
		Str("phase", phase).
		Str("heap_alloc", FormatMB(stats.HeapAlloc)).
		Str("budget_inuse", FormatMB(budgetInUse)).
		Str("budget_total", FormatMB(budgetTotal)).
		Str("peak_heap", FormatMB(peak)).
		Uint32("num_gc", stats.NumGC).
		Msg("memory stats with budget")
}

// PeakHeap returns the peak heap allocation seen.
func (t *Tracker) PeakHeap() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.peakHeap
}

func (t *Tracker) observe(stats Stats) (phase string, peak uint64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if stats.HeapAlloc > t.peakHeap {
		t.peakHeap = stats.HeapAlloc
	}
	return t.phase, t.peakHeap
}
