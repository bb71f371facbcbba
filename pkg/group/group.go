// Package group provides the collective operations a fixed set of workers
// uses to coordinate a measurement: Barrier, Broadcast and Gather.
//
// Every worker numbers its collectives in call order. A rendezvous matches
// the n-th call of every worker and requires them to agree on the operation
// and root; disagreement is a protocol violation that aborts the group. After
// an abort every pending and future collective fails with ErrAborted. A
// worker whose context ends while it waits also aborts the group, since the
// round it left can never complete.
//
// Two transports share the same rendezvous: Local connects goroutines in one
// process, Remote connects processes through a gRPC server hosted by rank 0.
package group

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrAborted is returned by every collective after the group aborted.
	ErrAborted = errors.New("group: aborted")

	// ErrMismatch reports workers disagreeing on the operation or root of a
	// collective with the same sequence number.
	ErrMismatch = errors.New("group: collective mismatch")

	// ErrBadRoot reports a root outside [0, size).
	ErrBadRoot = errors.New("group: root out of range")

	// ErrBadRank reports a rank outside [0, size) or a non-positive size.
	ErrBadRank = errors.New("group: rank out of range")
)

// Op identifies a collective.
type Op uint8

const (
	OpBarrier Op = iota + 1
	OpBroadcast
	OpGather
)

func (o Op) String() string {
	switch o {
	case OpBarrier:
		return "barrier"
	case OpBroadcast:
		return "broadcast"
	case OpGather:
		return "gather"
	default:
		return fmt.Sprintf("op(%d)", uint8(o))
	}
}

// Channel is one worker's handle on the group. A Channel is used by a
// single goroutine; collectives are not safe for concurrent use.
type Channel interface {
	Rank() int
	Size() int

	// Barrier returns once every worker entered the same barrier.
	Barrier(ctx context.Context) error

	// Broadcast delivers root's value to every worker. Non-root callers pass
	// nil and receive root's value.
	Broadcast(ctx context.Context, value []byte, root int) ([]byte, error)

	// Gather collects every worker's value at root, indexed by rank. Other
	// workers receive nil.
	Gather(ctx context.Context, value []byte, root int) ([][]byte, error)

	// Abort fails all pending and future collectives of the whole group.
	Abort(cause error)

	// Close releases transport resources.
	Close() error
}

// IsLeader reports whether ch is rank 0.
func IsLeader(ch Channel) bool {
	return ch.Rank() == 0
}
