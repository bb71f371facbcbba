package group

import (
	"context"
	"fmt"
)

// Local is a Channel between goroutines of one process.
type Local struct {
	rv   *rendezvous
	rank int
	seq  uint64
}

// NewLocal returns n connected channels, one per rank.
func NewLocal(n int) ([]*Local, error) {
	if n <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrBadRank, n)
	}
	rv := newRendezvous(n)
	chans := make([]*Local, n)
	for r := range chans {
		chans[r] = &Local{rv: rv, rank: r}
	}
	return chans, nil
}

// Channels adapts the result of NewLocal to the interface slice.
func Channels(locals []*Local) []Channel {
	out := make([]Channel, len(locals))
	for i, l := range locals {
		out[i] = l
	}
	return out
}

func (l *Local) Rank() int { return l.rank }
func (l *Local) Size() int { return l.rv.size }

func (l *Local) call(ctx context.Context, op Op, root int, value []byte) ([]byte, [][]byte, error) {
	seq := l.seq
	l.seq++
	values, err := l.rv.collect(ctx, seq, l.rank, op, root, value)
	if err != nil {
		return nil, nil, err
	}
	one, all := pick(op, l.rank, root, values)
	return one, all, nil
}

func (l *Local) Barrier(ctx context.Context) error {
	_, _, err := l.call(ctx, OpBarrier, 0, nil)
	return err
}

func (l *Local) Broadcast(ctx context.Context, value []byte, root int) ([]byte, error) {
	if l.rank != root {
		value = nil
	}
	one, _, err := l.call(ctx, OpBroadcast, root, value)
	return one, err
}

func (l *Local) Gather(ctx context.Context, value []byte, root int) ([][]byte, error) {
	_, all, err := l.call(ctx, OpGather, root, value)
	return all, err
}

func (l *Local) Abort(cause error) { l.rv.abort(cause) }

func (l *Local) Close() error { return nil }
