package group

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runWorkers runs fn once per channel, each on its own goroutine, and
// returns the per-rank errors.
func runWorkers(chans []Channel, fn func(ch Channel) error) []error {
	errs := make([]error, len(chans))
	var wg sync.WaitGroup
	for i, ch := range chans {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs[i] = fn(ch)
		}()
	}
	wg.Wait()
	return errs
}

func newLocal(t *testing.T, n int) []Channel {
	t.Helper()
	locals, err := NewLocal(n)
	require.NoError(t, err)
	return Channels(locals)
}

func TestNewLocalRejectsEmptyGroup(t *testing.T) {
	_, err := NewLocal(0)
	assert.ErrorIs(t, err, ErrBadRank)
}

func TestLocalBarrierHoldsEveryone(t *testing.T) {
	const n = 5
	chans := newLocal(t, n)
	var before atomic.Int32

	errs := runWorkers(chans, func(ch Channel) error {
		before.Add(1)
		if err := ch.Barrier(context.Background()); err != nil {
			return err
		}
		if got := before.Load(); got != n {
			return fmt.Errorf("rank %d left barrier with %d arrivals", ch.Rank(), got)
		}
		return nil
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestLocalBroadcast(t *testing.T) {
	chans := newLocal(t, 4)
	got := make([]string, 4)

	errs := runWorkers(chans, func(ch Channel) error {
		var v []byte
		if ch.Rank() == 2 {
			v = []byte("from-two")
		}
		out, err := ch.Broadcast(context.Background(), v, 2)
		got[ch.Rank()] = string(out)
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"from-two", "from-two", "from-two", "from-two"}, got)
}

func TestLocalGatherOrderedByRank(t *testing.T) {
	chans := newLocal(t, 3)
	var atRoot [][]byte
	var others atomic.Int32

	errs := runWorkers(chans, func(ch Channel) error {
		out, err := ch.Gather(context.Background(), []byte{byte('a' + ch.Rank())}, 0)
		if ch.Rank() == 0 {
			atRoot = out
		} else if out == nil {
			others.Add(1)
		}
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, [][]byte{{'a'}, {'b'}, {'c'}}, atRoot)
	assert.EqualValues(t, 2, others.Load())
}

func TestLocalSequencedRounds(t *testing.T) {
	chans := newLocal(t, 3)

	errs := runWorkers(chans, func(ch Channel) error {
		ctx := context.Background()
		for round := 0; round < 20; round++ {
			root := round % ch.Size()
			v, err := BroadcastFloat64(ctx, ch, float64(round*10+root), root)
			if err != nil {
				return err
			}
			if v != float64(round*10+root) {
				return fmt.Errorf("round %d: got %v", round, v)
			}
			if err := ch.Barrier(ctx); err != nil {
				return err
			}
		}
		return nil
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
}

func TestLocalMismatchAbortsGroup(t *testing.T) {
	chans := newLocal(t, 3)

	errs := runWorkers(chans, func(ch Channel) error {
		ctx := context.Background()
		if ch.Rank() == 1 {
			_, err := ch.Broadcast(ctx, nil, 0)
			return err
		}
		return ch.Barrier(ctx)
	})

	var mismatches, aborts int
	for _, err := range errs {
		require.Error(t, err)
		if errors.Is(err, ErrAborted) {
			aborts++
		}
		if errors.Is(err, ErrMismatch) {
			mismatches++
		}
	}
	assert.Positive(t, mismatches)
	assert.Positive(t, aborts)

	// Nothing works after an abort.
	err := chans[0].Barrier(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
}

func TestLocalBroadcastRootMismatch(t *testing.T) {
	chans := newLocal(t, 2)

	errs := runWorkers(chans, func(ch Channel) error {
		_, err := ch.Broadcast(context.Background(), []byte("x"), ch.Rank())
		return err
	})
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrMismatch) || errors.Is(err, ErrAborted), "got %v", err)
	}
}

func TestLocalAbortReleasesPending(t *testing.T) {
	chans := newLocal(t, 3)
	cause := errors.New("allocation failed")

	errs := runWorkers(chans, func(ch Channel) error {
		if ch.Rank() == 2 {
			time.Sleep(20 * time.Millisecond)
			ch.Abort(cause)
			return nil
		}
		return ch.Barrier(context.Background())
	})

	require.NoError(t, errs[2])
	for _, err := range errs[:2] {
		assert.ErrorIs(t, err, ErrAborted)
		assert.ErrorIs(t, err, cause)
	}
}

func TestLocalBadRoot(t *testing.T) {
	chans := newLocal(t, 2)
	_, err := chans[0].Broadcast(context.Background(), nil, 2)
	assert.ErrorIs(t, err, ErrBadRoot)
	_, err = chans[0].Gather(context.Background(), nil, -1)
	assert.ErrorIs(t, err, ErrBadRoot)
}

func TestLocalContextCancelWhileBlocked(t *testing.T) {
	locals, err := NewLocal(2)
	require.NoError(t, err)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err = locals[0].Barrier(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned round aborts the group instead of waiting forever.
	err = locals[1].Barrier(context.Background())
	assert.ErrorIs(t, err, ErrAborted)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	rv := locals[0].rv
	rv.mu.Lock()
	defer rv.mu.Unlock()
	assert.Empty(t, rv.rounds)
}

type row struct {
	Rank   int       `json:"rank"`
	Values []float64 `json:"values"`
}

func TestGatherJSON(t *testing.T) {
	chans := newLocal(t, 3)
	var got []row

	errs := runWorkers(chans, func(ch Channel) error {
		out, err := GatherJSON(context.Background(), ch, row{Rank: ch.Rank(), Values: []float64{float64(ch.Rank()), 1.5}}, 0)
		if ch.Rank() == 0 {
			got = out
		} else if out != nil {
			return fmt.Errorf("rank %d received gather output", ch.Rank())
		}
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	require.Len(t, got, 3)
	for r, rw := range got {
		assert.Equal(t, r, rw.Rank)
		assert.Equal(t, []float64{float64(r), 1.5}, rw.Values)
	}
}

func TestOpString(t *testing.T) {
	assert.Equal(t, "barrier", OpBarrier.String())
	assert.Equal(t, "broadcast", OpBroadcast.String())
	assert.Equal(t, "gather", OpGather.String())
	assert.Equal(t, "op(9)", Op(9).String())
}
