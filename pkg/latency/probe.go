package latency

import (
	"errors"
	"math/rand/v2"
	"runtime"
	"time"
	"unsafe"
)

const (
	// DefaultWarmupHops is the number of untimed hops used to fault pages in
	// and warm the caches and TLB.
	DefaultWarmupHops = 1000

	// DefaultTimedHops is the number of hops inside the timed region.
	DefaultTimedHops = 100000

	// Failed is reported instead of a latency when the probe could not run.
	// It is a local condition; the worker keeps participating in the group.
	Failed = -1.0
)

var (
	// ErrScratchRefused is returned when the index scratch array could not be
	// reserved.
	ErrScratchRefused = errors.New("latency: scratch reservation refused")

	// ErrBufferTooSmall is returned for buffers that hold no full slot.
	ErrBufferTooSmall = errors.New("latency: buffer smaller than one slot")
)

// Reserver gates the scratch memory the probe needs next to the measured
// buffer. *membudget.Budget satisfies it.
type Reserver interface {
	TryReserve(n uint64) bool
	Release(n uint64)
}

// Sample is the outcome of one probe run.
type Sample struct {
	NsPerHop float64
	Elapsed  time.Duration
	Hops     int
	Slots    int
}

// Probe runs the warm-up and timed traversals over a buffer.
// A Probe is owned by a single worker and is not safe for concurrent use.
type Probe struct {
	// WarmupHops and TimedHops default to DefaultWarmupHops and
	// DefaultTimedHops when zero or negative.
	WarmupHops int
	TimedHops  int

	// Rand drives the shuffle. Nil means a generator seeded from the clock.
	Rand *rand.Rand

	// Scratch, when set, must grant the index array before the buffer is
	// touched.
	Scratch Reserver
}

// Measure returns the average nanoseconds per access over mem, or Failed.
// On failure mem is left unmodified.
func (p *Probe) Measure(mem []byte) float64 {
	s, err := p.MeasureDetailed(mem)
	if err != nil {
		return Failed
	}
	return s.NsPerHop
}

// MeasureDetailed is Measure with the full sample and the failure cause.
func (p *Probe) MeasureDetailed(mem []byte) (Sample, error) {
	slots := Slots(mem)
	n := len(slots)
	if n == 0 {
		return Sample{NsPerHop: Failed}, ErrBufferTooSmall
	}

	scratch := uint64(n) * uint64(unsafe.Sizeof(int(0)))
	if p.Scratch != nil {
		if !p.Scratch.TryReserve(scratch) {
			return Sample{NsPerHop: Failed, Slots: n}, ErrScratchRefused
		}
		defer p.Scratch.Release(scratch)
	}

	perm := make([]int, n)
	Identity(perm)
	Shuffle(p.rng(), perm)
	BuildRing(slots, perm)

	entry := unsafe.Pointer(&slots[perm[0]])

	warmup, hops := p.hops()
	sink = uintptr(chase(entry, warmup))

	start := time.Now()
	last := chase(entry, hops)
	elapsed := time.Since(start)

	sink = uintptr(last)
	runtime.KeepAlive(mem)

	return Sample{
		NsPerHop: float64(elapsed.Nanoseconds()) / float64(hops),
		Elapsed:  elapsed,
		Hops:     hops,
		Slots:    n,
	}, nil
}

func (p *Probe) hops() (warmup, timed int) {
	warmup, timed = p.WarmupHops, p.TimedHops
	if warmup <= 0 {
		warmup = DefaultWarmupHops
	}
	if timed <= 0 {
		timed = DefaultTimedHops
	}
	return warmup, timed
}

func (p *Probe) rng() *rand.Rand {
	if p.Rand == nil {
		p.Rand = NewRand(uint64(time.Now().UnixNano()), 0)
	}
	return p.Rand
}
