package rpc

import (
	"context"

	"github.com/rs/zerolog"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/codec"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/internal/logging"
	"xdao.co/libreg/journal"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
)

// Control is the part of an endpoint the service exposes.
type Control interface {
	Execute(ownership.Signed) (endpoint.Result, error)
	Accept(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID) bool
	AcceptAt(app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID, at checkpoint.Checkpoint) (bool, error)
	Describe(app msglib.AppID, eid msglib.EID) (endpoint.PathView, error)
	Libraries() []directory.Entry
	Head() endpoint.Head
	Journal() *journal.Journal
}

// WatchBuffer is the per-stream buffer of the Watch method. A watcher that
// falls this far behind is disconnected.
const WatchBuffer = 64

// Server exposes an endpoint over the Control gRPC service.
type Server struct {
	UnimplementedControlServer
	Endpoint Control

	log zerolog.Logger
}

func NewServer(ep Control) *Server {
	return &Server{Endpoint: ep, log: logging.New("rpc")}
}

func (s *Server) ready() error {
	if s == nil || s.Endpoint == nil {
		return status.Error(codes.FailedPrecondition, "missing endpoint")
	}
	return nil
}

func decodeRequest(in *wrapperspb.BytesValue, v any) error {
	if err := codec.Unmarshal(in.GetValue(), v); err != nil {
		return status.Error(codes.InvalidArgument, "decode request: "+err.Error())
	}
	return nil
}

func encodeReply(v any) (*wrapperspb.BytesValue, error) {
	b, err := codec.Marshal(v)
	if err != nil {
		return nil, status.Error(codes.Internal, "encode reply: "+err.Error())
	}
	return wrapperspb.Bytes(b), nil
}

func (s *Server) Execute(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	signed, err := ownership.UnmarshalSigned(in.GetValue())
	if err != nil {
		return nil, toStatus(err)
	}
	res, err := s.Endpoint.Execute(signed)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeReply(res)
}

func (s *Server) Accept(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req AcceptRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	if req.At == nil {
		return wrapperspb.Bool(s.Endpoint.Accept(req.App, req.EID, req.Library)), nil
	}
	ok, err := s.Endpoint.AcceptAt(req.App, req.EID, req.Library, *req.At)
	if err != nil {
		return nil, toStatus(err)
	}
	return wrapperspb.Bool(ok), nil
}

func (s *Server) Describe(ctx context.Context, in *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	var req PathRequest
	if err := decodeRequest(in, &req); err != nil {
		return nil, err
	}
	v, err := s.Endpoint.Describe(req.App, req.EID)
	if err != nil {
		return nil, toStatus(err)
	}
	return encodeReply(v)
}

func (s *Server) Libraries(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	return encodeReply(s.Endpoint.Libraries())
}

func (s *Server) Head(ctx context.Context, _ *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	_ = ctx
	if err := s.ready(); err != nil {
		return nil, err
	}
	return encodeReply(s.Endpoint.Head())
}

// Watch streams every change committed after the call starts.
func (s *Server) Watch(_ *emptypb.Empty, stream Control_WatchServer) error {
	if err := s.ready(); err != nil {
		return err
	}
	records, cancel := s.Endpoint.Journal().Subscribe(WatchBuffer)
	defer cancel()

	ctx := stream.Context()
	for {
		select {
		case <-ctx.Done():
			return nil
		case rec, ok := <-records:
			if !ok {
				s.log.Warn().Msg("watcher fell behind, closing stream")
				return status.Error(codes.ResourceExhausted, "watcher fell behind")
			}
			msg, err := encodeReply(WatchEvent{Block: rec.CID.String(), Entry: rec.Entry})
			if err != nil {
				return err
			}
			if err := stream.Send(msg); err != nil {
				return err
			}
		}
	}
}
