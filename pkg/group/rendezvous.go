package group

import (
	"context"
	"fmt"
	"sync"
)

// rendezvous matches the collectives of size workers by sequence number.
type rendezvous struct {
	size int

	mu      sync.Mutex
	rounds  map[uint64]*round
	err     error
	aborted chan struct{}
}

type round struct {
	op      Op
	root    int
	seen    []bool
	values  [][]byte
	arrived int
	pending int
	done    chan struct{}
}

func newRendezvous(size int) *rendezvous {
	return &rendezvous{
		size:    size,
		rounds:  make(map[uint64]*round),
		aborted: make(chan struct{}),
	}
}

// collect registers rank's call number seq and waits for the other workers.
// It returns the values contributed by every rank; callers must not modify
// them.
func (rv *rendezvous) collect(ctx context.Context, seq uint64, rank int, op Op, root int, value []byte) ([][]byte, error) {
	if rank < 0 || rank >= rv.size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrBadRank, rank, rv.size)
	}
	if op != OpBarrier && (root < 0 || root >= rv.size) {
		return nil, fmt.Errorf("%w: %s root %d of %d", ErrBadRoot, op, root, rv.size)
	}

	rv.mu.Lock()
	if rv.err != nil {
		err := rv.err
		rv.mu.Unlock()
		return nil, err
	}

	rd, ok := rv.rounds[seq]
	if !ok {
		rd = &round{
			op:      op,
			root:    root,
			seen:    make([]bool, rv.size),
			values:  make([][]byte, rv.size),
			pending: rv.size,
			done:    make(chan struct{}),
		}
		rv.rounds[seq] = rd
	}
	if rd.op != op || rd.root != root || rd.seen[rank] {
		err := fmt.Errorf("%w: call %d on rank %d is %s(root=%d), group is in %s(root=%d)",
			ErrMismatch, seq, rank, op, root, rd.op, rd.root)
		rv.abortLocked(err)
		rv.mu.Unlock()
		return nil, err
	}
	rd.seen[rank] = true
	rd.values[rank] = value
	rd.arrived++
	if rd.arrived == rv.size {
		close(rd.done)
	}
	rv.mu.Unlock()

	select {
	case <-rd.done:
	case <-rv.aborted:
		return nil, rv.abortErr()
	case <-ctx.Done():
		// The round can no longer complete without this rank.
		err := fmt.Errorf("%s %d on rank %d: %w", op, seq, rank, ctx.Err())
		rv.abort(err)
		return nil, err
	}

	rv.mu.Lock()
	rd.pending--
	if rd.pending == 0 {
		delete(rv.rounds, seq)
	}
	rv.mu.Unlock()

	return rd.values, nil
}

func (rv *rendezvous) abort(cause error) {
	rv.mu.Lock()
	rv.abortLocked(cause)
	rv.mu.Unlock()
}

func (rv *rendezvous) abortLocked(cause error) {
	if rv.err != nil {
		return
	}
	if cause == nil {
		rv.err = ErrAborted
	} else {
		rv.err = fmt.Errorf("%w: %w", ErrAborted, cause)
	}
	clear(rv.rounds)
	close(rv.aborted)
}

func (rv *rendezvous) abortErr() error {
	rv.mu.Lock()
	defer rv.mu.Unlock()
	return rv.err
}

// pick extracts what rank receives from a completed round.
func pick(op Op, rank, root int, values [][]byte) ([]byte, [][]byte) {
	switch op {
	case OpBroadcast:
		return values[root], nil
	case OpGather:
		if rank != root {
			return nil, nil
		}
		out := make([][]byte, len(values))
		copy(out, values)
		return nil, out
	default:
		return nil, nil
	}
}
