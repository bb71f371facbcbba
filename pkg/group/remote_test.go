package group

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// startRemote runs a rendezvous on a loopback port and dials n workers.
func startRemote(t *testing.T, n int) (*Server, []Channel) {
	t.Helper()
	srv, err := Listen("127.0.0.1:0", n)
	require.NoError(t, err)
	srv.Start()
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	chans := make([]Channel, n)
	for r := range chans {
		rc, err := Dial(ctx, srv.Addr(), r, n)
		require.NoError(t, err)
		t.Cleanup(func() { _ = rc.Close() })
		chans[r] = rc
	}
	return srv, chans
}

func TestRemoteCollectives(t *testing.T) {
	_, chans := startRemote(t, 3)

	var gathered [][]byte
	errs := runWorkers(chans, func(ch Channel) error {
		ctx := context.Background()
		if err := ch.Barrier(ctx); err != nil {
			return err
		}
		v, err := BroadcastFloat64(ctx, ch, 42.25, 1)
		if err != nil {
			return err
		}
		if v != 42.25 {
			return fmt.Errorf("rank %d got %v", ch.Rank(), v)
		}
		out, err := ch.Gather(ctx, []byte(fmt.Sprintf("r%d", ch.Rank())), 0)
		if ch.Rank() == 0 {
			gathered = out
		}
		return err
	})
	for _, err := range errs {
		require.NoError(t, err)
	}
	assert.Equal(t, [][]byte{[]byte("r0"), []byte("r1"), []byte("r2")}, gathered)
}

func TestRemoteAbortPropagates(t *testing.T) {
	_, chans := startRemote(t, 3)
	cause := errors.New("export failed")

	errs := runWorkers(chans, func(ch Channel) error {
		if ch.Rank() == 0 {
			time.Sleep(50 * time.Millisecond)
			ch.Abort(cause)
			return nil
		}
		return ch.Barrier(context.Background())
	})

	require.NoError(t, errs[0])
	for _, err := range errs[1:] {
		assert.ErrorIs(t, err, ErrAborted)
	}

	// The aborting channel fails locally too.
	assert.ErrorIs(t, chans[0].Barrier(context.Background()), ErrAborted)
}

func TestRemoteMismatch(t *testing.T) {
	_, chans := startRemote(t, 2)

	errs := runWorkers(chans, func(ch Channel) error {
		ctx := context.Background()
		if ch.Rank() == 0 {
			return ch.Barrier(ctx)
		}
		_, err := ch.Gather(ctx, nil, 0)
		return err
	})
	for _, err := range errs {
		assert.True(t, errors.Is(err, ErrMismatch) || errors.Is(err, ErrAborted), "got %v", err)
	}
}

func TestDialRejectsWrongSize(t *testing.T) {
	srv, err := Listen("127.0.0.1:0", 2)
	require.NoError(t, err)
	srv.Start()
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Stop(ctx)
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = Dial(ctx, srv.Addr(), 0, 3)
	assert.ErrorIs(t, err, ErrBadRank)

	_, err = Dial(ctx, srv.Addr(), 5, 2)
	assert.ErrorIs(t, err, ErrBadRank)
}

func TestJoinHostsRendezvousOnRankZero(t *testing.T) {
	// Reserve a free port, then hand it to Join.
	probe, err := Listen("127.0.0.1:0", 1)
	require.NoError(t, err)
	addr := probe.Addr()
	require.NoError(t, probe.lis.Close())

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	leader, err := Join(ctx, addr, 0, 2)
	require.NoError(t, err)
	follower, err := Join(ctx, addr, 1, 2)
	require.NoError(t, err)

	errs := runWorkers([]Channel{leader, follower}, func(ch Channel) error {
		return ch.Barrier(context.Background())
	})
	for _, err := range errs {
		require.NoError(t, err)
	}

	require.NoError(t, follower.Close())
	require.NoError(t, leader.Close())
}
