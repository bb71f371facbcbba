package group

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/eunmann/numabench/pkg/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// abortTimeout bounds the best-effort abort notification.
const abortTimeout = 2 * time.Second

// stopTimeout bounds how long rank 0 drains the rendezvous on Close.
const stopTimeout = 10 * time.Second

// Remote is a Channel to a rendezvous Server over gRPC.
type Remote struct {
	rank, size int
	conn       *grpc.ClientConn
	seq        uint64

	// server is set on the rank that hosts the rendezvous.
	server *Server

	mu  sync.Mutex
	err error
}

// Dial connects rank to the rendezvous at addr and waits, bounded by ctx,
// until the server answers.
func Dial(ctx context.Context, addr string, rank, size int) (*Remote, error) {
	if size <= 0 || rank < 0 || rank >= size {
		return nil, fmt.Errorf("%w: rank %d of %d", ErrBadRank, rank, size)
	}
	conn, err := grpc.NewClient(addr,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(codecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("dial rendezvous %s: %w", addr, err)
	}

	reply := new(HelloReply)
	err = conn.Invoke(ctx, helloMethod, &HelloRequest{Rank: rank, Size: size}, reply, grpc.WaitForReady(true))
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("join rendezvous %s: %w", addr, fromStatus(err))
	}

	return &Remote{rank: rank, size: size, conn: conn}, nil
}

// Join is the multi-process entry point: rank 0 starts the rendezvous on
// addr's port and then dials it like every other rank.
func Join(ctx context.Context, addr string, rank, size int) (*Remote, error) {
	var srv *Server
	if rank == 0 {
		_, port, err := net.SplitHostPort(addr)
		if err != nil {
			return nil, fmt.Errorf("coordinator address %q: %w", addr, err)
		}
		srv, err = Listen(net.JoinHostPort("", port), size)
		if err != nil {
			return nil, err
		}
		srv.Start()
		logging.L().Info().Str("addr", srv.Addr()).Int("world_size", size).Msg("rendezvous listening")
	}

	r, err := Dial(ctx, addr, rank, size)
	if err != nil {
		if srv != nil {
			stopCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
			srv.Stop(stopCtx)
			cancel()
		}
		return nil, err
	}
	r.server = srv
	return r, nil
}

func (r *Remote) Rank() int { return r.rank }
func (r *Remote) Size() int { return r.size }

func (r *Remote) call(ctx context.Context, op Op, root int, value []byte) (*CollectiveReply, error) {
	if err := r.abortErr(); err != nil {
		return nil, err
	}
	if op != OpBarrier && (root < 0 || root >= r.size) {
		return nil, fmt.Errorf("%w: %s root %d of %d", ErrBadRoot, op, root, r.size)
	}

	req := &CollectiveRequest{Rank: r.rank, Seq: r.seq, Op: op, Root: root, Value: value}
	r.seq++

	reply := new(CollectiveReply)
	if err := r.conn.Invoke(ctx, collectiveMethod, req, reply); err != nil {
		return nil, fromStatus(err)
	}
	return reply, nil
}

func (r *Remote) Barrier(ctx context.Context) error {
	_, err := r.call(ctx, OpBarrier, 0, nil)
	return err
}

func (r *Remote) Broadcast(ctx context.Context, value []byte, root int) ([]byte, error) {
	if r.rank != root {
		value = nil
	}
	reply, err := r.call(ctx, OpBroadcast, root, value)
	if err != nil {
		return nil, err
	}
	return reply.Value, nil
}

func (r *Remote) Gather(ctx context.Context, value []byte, root int) ([][]byte, error) {
	reply, err := r.call(ctx, OpGather, root, value)
	if err != nil {
		return nil, err
	}
	if r.rank != root {
		return nil, nil
	}
	if len(reply.Values) != r.size {
		return nil, fmt.Errorf("gather at rank %d: got %d values, want %d", r.rank, len(reply.Values), r.size)
	}
	return reply.Values, nil
}

// Abort marks this channel aborted and tells the rendezvous, which fails
// every other worker's pending and future collectives.
func (r *Remote) Abort(cause error) {
	reason := "aborted"
	if cause != nil {
		reason = cause.Error()
	}

	r.mu.Lock()
	already := r.err != nil
	if !already {
		if cause == nil {
			r.err = ErrAborted
		} else {
			r.err = fmt.Errorf("%w: %w", ErrAborted, cause)
		}
	}
	r.mu.Unlock()
	if already {
		return
	}

	if r.server != nil {
		r.server.rv.abort(fmt.Errorf("rank %d: %s", r.rank, reason))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), abortTimeout)
	defer cancel()
	err := r.conn.Invoke(ctx, abortMethod, &AbortRequest{Rank: r.rank, Reason: reason}, new(AbortReply))
	if err != nil {
		logging.L().Warn().Err(err).Int("rank", r.rank).Msg("abort notification not delivered")
	}
}

func (r *Remote) abortErr() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// Close disconnects; on rank 0 it also drains and stops the rendezvous.
func (r *Remote) Close() error {
	err := r.conn.Close()
	if r.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), stopTimeout)
		r.server.Stop(ctx)
		cancel()
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("close rendezvous connection: %w", err)
	}
	return nil
}
