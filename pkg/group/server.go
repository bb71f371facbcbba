package group

import (
	"context"
	"errors"
	"fmt"
	"net"

	"github.com/eunmann/numabench/pkg/logging"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// Server hosts the rendezvous for a multi-process group. Rank 0 runs it
// next to its own Remote client.
type Server struct {
	rv  *rendezvous
	srv *grpc.Server
	lis net.Listener
}

// Listen binds addr and prepares a server for a group of size workers.
func Listen(addr string, size int) (*Server, error) {
	if size <= 0 {
		return nil, fmt.Errorf("%w: size %d", ErrBadRank, size)
	}
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", addr, err)
	}
	return NewServer(lis, size), nil
}

// NewServer serves the rendezvous on an existing listener.
func NewServer(lis net.Listener, size int) *Server {
	s := &Server{
		rv:  newRendezvous(size),
		srv: grpc.NewServer(),
		lis: lis,
	}
	s.srv.RegisterService(&groupServiceDesc, s)
	return s
}

// Addr is the bound listener address.
func (s *Server) Addr() string {
	return s.lis.Addr().String()
}

// Start serves in the background.
func (s *Server) Start() {
	go func() {
		if err := s.srv.Serve(s.lis); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
			logging.L().Error().Err(err).Str("addr", s.Addr()).Msg("group server stopped")
		}
	}()
}

// Stop drains in-flight collectives, or cuts them off when ctx ends first.
func (s *Server) Stop(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		s.srv.GracefulStop()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		s.srv.Stop()
		<-done
	}
}

func (s *Server) Hello(_ context.Context, in *HelloRequest) (*HelloReply, error) {
	if in.Size != s.rv.size {
		return nil, status.Errorf(codes.InvalidArgument,
			"%s: worker %d expects %d workers, rendezvous has %d", ErrBadRank, in.Rank, in.Size, s.rv.size)
	}
	if in.Rank < 0 || in.Rank >= s.rv.size {
		return nil, status.Errorf(codes.InvalidArgument, "%s: rank %d of %d", ErrBadRank, in.Rank, s.rv.size)
	}
	logging.L().Debug().Int("rank", in.Rank).Int("world_size", in.Size).Msg("worker joined")
	return &HelloReply{Size: s.rv.size}, nil
}

func (s *Server) Collective(ctx context.Context, in *CollectiveRequest) (*CollectiveReply, error) {
	values, err := s.rv.collect(ctx, in.Seq, in.Rank, in.Op, in.Root, in.Value)
	if err != nil {
		return nil, toStatus(err)
	}
	one, all := pick(in.Op, in.Rank, in.Root, values)
	return &CollectiveReply{Value: one, Values: all}, nil
}

func (s *Server) Abort(_ context.Context, in *AbortRequest) (*AbortReply, error) {
	logging.L().Warn().Int("rank", in.Rank).Str("reason", in.Reason).Msg("group abort requested")
	s.rv.abort(fmt.Errorf("rank %d: %s", in.Rank, in.Reason))
	return &AbortReply{}, nil
}
