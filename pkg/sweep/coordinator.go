// Package sweep runs the latency measurement over a list of buffer sizes
// and coordinates the probes of all workers in the group.
package sweep

import (
	"context"
	"fmt"

	"github.com/eunmann/numabench/pkg/group"
)

// Mode selects how probes of different workers relate in time.
type Mode int

const (
	// ModeParallel lets every worker probe at once, between two barriers.
	ModeParallel Mode = iota
	// ModeSerial lets one worker probe at a time, in rank order.
	ModeSerial
)

func (m Mode) String() string {
	if m == ModeSerial {
		return "serial"
	}
	return "parallel"
}

// Prober measures one buffer. *latency.Probe implements it.
type Prober interface {
	Measure(mem []byte) float64
}

// Observer is told when a worker enters and leaves its timed region.
type Observer interface {
	Enter(rank int)
	Exit(rank int)
}

// Round is the outcome of one coordinated measurement.
type Round struct {
	// Own is this worker's latency in ns, or latency.Failed.
	Own float64
	// All holds every rank's latency in serial mode; nil in parallel mode.
	All []float64
}

// Coordinator runs one worker's probe under the group's mode.
type Coordinator struct {
	Mode     Mode
	Channel  group.Channel
	Probe    Prober
	Observer Observer
}

// Measure probes mem. In parallel mode it probes immediately and the caller
// supplies the surrounding barriers. In serial mode each rank in turn probes
// and broadcasts its result, followed by a barrier, so at most one worker is
// inside a timed region at any time.
func (c *Coordinator) Measure(ctx context.Context, mem []byte) (Round, error) {
	if c.Mode == ModeParallel {
		return Round{Own: c.probe(mem)}, nil
	}

	rank, size := c.Channel.Rank(), c.Channel.Size()
	all := make([]float64, size)
	for r := 0; r < size; r++ {
		var v float64
		if r == rank {
			v = c.probe(mem)
		}
		got, err := group.BroadcastFloat64(ctx, c.Channel, v, r)
		if err != nil {
			return Round{}, fmt.Errorf("serial turn of rank %d: %w", r, err)
		}
		all[r] = got
		if err := c.Channel.Barrier(ctx); err != nil {
			return Round{}, fmt.Errorf("serial turn of rank %d: %w", r, err)
		}
	}
	return Round{Own: all[rank], All: all}, nil
}

func (c *Coordinator) probe(mem []byte) float64 {
	rank := c.Channel.Rank()
	if c.Observer != nil {
		c.Observer.Enter(rank)
		defer c.Observer.Exit(rank)
	}
	return c.Probe.Measure(mem)
}
