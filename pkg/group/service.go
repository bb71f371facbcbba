package group

import (
	"context"
	"errors"
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	serviceName      = "numabench.group.v1.Group"
	helloMethod      = "/" + serviceName + "/Hello"
	collectiveMethod = "/" + serviceName + "/Collective"
	abortMethod      = "/" + serviceName + "/Abort"
)

// HelloRequest announces a worker to the rendezvous.
type HelloRequest struct {
	Rank int `json:"rank"`
	Size int `json:"size"`
}

// HelloReply confirms the group size the server was started with.
type HelloReply struct {
	Size int `json:"size"`
}

// CollectiveRequest is one worker's side of a collective.
type CollectiveRequest struct {
	Rank  int    `json:"rank"`
	Seq   uint64 `json:"seq"`
	Op    Op     `json:"op"`
	Root  int    `json:"root"`
	Value []byte `json:"value,omitempty"`
}

// CollectiveReply carries the broadcast value or, at the gather root, all
// gathered values.
type CollectiveReply struct {
	Value  []byte   `json:"value,omitempty"`
	Values [][]byte `json:"values,omitempty"`
}

// AbortRequest asks the rendezvous to abort the group.
type AbortRequest struct {
	Rank   int    `json:"rank"`
	Reason string `json:"reason"`
}

// AbortReply is empty.
type AbortReply struct{}

type groupServer interface {
	Hello(context.Context, *HelloRequest) (*HelloReply, error)
	Collective(context.Context, *CollectiveRequest) (*CollectiveReply, error)
	Abort(context.Context, *AbortRequest) (*AbortReply, error)
}

var groupServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*groupServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Hello", Handler: helloHandler},
		{MethodName: "Collective", Handler: collectiveHandler},
		{MethodName: "Abort", Handler: abortHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "numabench/group",
}

func helloHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(HelloRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(groupServer).Hello(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: helloMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(groupServer).Hello(ctx, req.(*HelloRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func collectiveHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(CollectiveRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(groupServer).Collective(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: collectiveMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(groupServer).Collective(ctx, req.(*CollectiveRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func abortHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AbortRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(groupServer).Abort(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: abortMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(groupServer).Abort(ctx, req.(*AbortRequest))
	}
	return interceptor(ctx, in, info, handler)
}

// toStatus maps rendezvous errors onto gRPC codes. Abort is checked first:
// peers of a mismatching worker see the mismatch wrapped in ErrAborted.
func toStatus(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, ErrAborted):
		return status.Error(codes.Aborted, err.Error())
	case errors.Is(err, ErrMismatch):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, ErrBadRoot):
		return status.Error(codes.OutOfRange, err.Error())
	case errors.Is(err, ErrBadRank):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	default:
		return status.Error(codes.Internal, err.Error())
	}
}

// fromStatus restores the sentinel errors on the client side. A rendezvous
// that went away is treated as an abort.
func fromStatus(err error) error {
	st, ok := status.FromError(err)
	if !ok {
		return err
	}
	switch st.Code() {
	case codes.Aborted:
		return fmt.Errorf("%w: %s", ErrAborted, trimPrefix(st.Message(), ErrAborted))
	case codes.Unavailable:
		return fmt.Errorf("%w: rendezvous unavailable: %s", ErrAborted, st.Message())
	case codes.FailedPrecondition:
		return fmt.Errorf("%w: %s", ErrMismatch, trimPrefix(st.Message(), ErrMismatch))
	case codes.OutOfRange:
		return fmt.Errorf("%w: %s", ErrBadRoot, trimPrefix(st.Message(), ErrBadRoot))
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrBadRank, trimPrefix(st.Message(), ErrBadRank))
	case codes.Canceled:
		return fmt.Errorf("%s: %w", st.Message(), context.Canceled)
	case codes.DeadlineExceeded:
		return fmt.Errorf("%s: %w", st.Message(), context.DeadlineExceeded)
	default:
		return err
	}
}

func trimPrefix(msg string, sentinel error) string {
	p := sentinel.Error() + ": "
	if len(msg) >= len(p) && msg[:len(p)] == p {
		return msg[len(p):]
	}
	return msg
}
