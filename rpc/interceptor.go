package rpc

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"

	"xdao.co/libreg/internal/metrics"
)

// UnaryLogger logs and counts every unary call.
func UnaryLogger(log zerolog.Logger) grpc.UnaryServerInterceptor {
	return func(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {
		start := time.Now()
		resp, err := handler(ctx, req)
		observe(log, info.FullMethod, err, time.Since(start))
		return resp, err
	}
}

// StreamLogger logs and counts every streaming call when it ends.
func StreamLogger(log zerolog.Logger) grpc.StreamServerInterceptor {
	return func(srv interface{}, ss grpc.ServerStream, info *grpc.StreamServerInfo, handler grpc.StreamHandler) error {
		start := time.Now()
		err := handler(srv, ss)
		observe(log, info.FullMethod, err, time.Since(start))
		return err
	}
}

func observe(log zerolog.Logger, method string, err error, d time.Duration) {
	code := status.Code(err)
	metrics.RecordRPC(method, code.String(), d)

	ev := log.Info()
	if err != nil {
		ev = log.Warn().Err(err)
	}
	ev.Str("method", method).
		Str("code", code.String()).
		Dur("duration", d).
		Msg("rpc")
}

// NewGRPCServer returns a gRPC server with the Control service and the
// logging interceptors installed.
func NewGRPCServer(ep Control, opts ...grpc.ServerOption) *grpc.Server {
	srv := NewServer(ep)
	opts = append(opts,
		grpc.ChainUnaryInterceptor(UnaryLogger(srv.log)),
		grpc.ChainStreamInterceptor(StreamLogger(srv.log)),
	)
	s := grpc.NewServer(opts...)
	RegisterControlServer(s, srv)
	return s
}
