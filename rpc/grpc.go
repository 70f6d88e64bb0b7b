package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

// ServiceName is the fully qualified gRPC service name.
const ServiceName = "xdao.libreg.v1.Control"

const (
	methodExecute   = "/" + ServiceName + "/Execute"
	methodAccept    = "/" + ServiceName + "/Accept"
	methodDescribe  = "/" + ServiceName + "/Describe"
	methodLibraries = "/" + ServiceName + "/Libraries"
	methodHead      = "/" + ServiceName + "/Head"
	methodWatch     = "/" + ServiceName + "/Watch"
)

// ControlServer is the server API for the Control service.
//
// Messages are protobuf well-known wrapper types whose bytes carry canonical
// CBOR, so this package needs no protoc/codegen toolchain.
type ControlServer interface {
	Execute(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Accept(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error)
	Describe(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error)
	Libraries(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Head(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error)
	Watch(*emptypb.Empty, Control_WatchServer) error
}

// UnimplementedControlServer can be embedded to have forward compatible implementations.
type UnimplementedControlServer struct{}

func (UnimplementedControlServer) Execute(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Execute not implemented")
}
func (UnimplementedControlServer) Accept(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BoolValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Accept not implemented")
}
func (UnimplementedControlServer) Describe(context.Context, *wrapperspb.BytesValue) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Describe not implemented")
}
func (UnimplementedControlServer) Libraries(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Libraries not implemented")
}
func (UnimplementedControlServer) Head(context.Context, *emptypb.Empty) (*wrapperspb.BytesValue, error) {
	return nil, status.Error(codes.Unimplemented, "method Head not implemented")
}
func (UnimplementedControlServer) Watch(*emptypb.Empty, Control_WatchServer) error {
	return status.Error(codes.Unimplemented, "method Watch not implemented")
}

// RegisterControlServer registers the Control service on a gRPC server.
func RegisterControlServer(s grpc.ServiceRegistrar, srv ControlServer) {
	s.RegisterService(&Control_ServiceDesc, srv)
}

// Control_WatchServer is the server side of the Watch stream.
type Control_WatchServer interface {
	Send(*wrapperspb.BytesValue) error
	grpc.ServerStream
}

type controlWatchServer struct{ grpc.ServerStream }

func (x *controlWatchServer) Send(m *wrapperspb.BytesValue) error {
	return x.ServerStream.SendMsg(m)
}

// ControlClient is the client API for the Control service.
type ControlClient interface {
	Execute(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Accept(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error)
	Describe(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Libraries(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Head(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error)
	Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Control_WatchClient, error)
}

type controlClient struct{ cc grpc.ClientConnInterface }

func NewControlClient(cc grpc.ClientConnInterface) ControlClient { return &controlClient{cc: cc} }

func (c *controlClient) Execute(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodExecute, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Accept(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BoolValue, error) {
	out := new(wrapperspb.BoolValue)
	if err := c.cc.Invoke(ctx, methodAccept, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Describe(ctx context.Context, in *wrapperspb.BytesValue, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodDescribe, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Libraries(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodLibraries, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Head(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (*wrapperspb.BytesValue, error) {
	out := new(wrapperspb.BytesValue)
	if err := c.cc.Invoke(ctx, methodHead, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *controlClient) Watch(ctx context.Context, in *emptypb.Empty, opts ...grpc.CallOption) (Control_WatchClient, error) {
	stream, err := c.cc.NewStream(ctx, &Control_ServiceDesc.Streams[0], methodWatch, opts...)
	if err != nil {
		return nil, err
	}
	x := &controlWatchClient{stream}
	if err := x.ClientStream.SendMsg(in); err != nil {
		return nil, err
	}
	if err := x.ClientStream.CloseSend(); err != nil {
		return nil, err
	}
	return x, nil
}

// Control_WatchClient is the client side of the Watch stream.
type Control_WatchClient interface {
	Recv() (*wrapperspb.BytesValue, error)
	grpc.ClientStream
}

type controlWatchClient struct{ grpc.ClientStream }

func (x *controlWatchClient) Recv() (*wrapperspb.BytesValue, error) {
	m := new(wrapperspb.BytesValue)
	if err := x.ClientStream.RecvMsg(m); err != nil {
		return nil, err
	}
	return m, nil
}

func _Control_Execute_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Execute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodExecute}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Execute(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Accept_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Accept(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodAccept}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Accept(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Describe_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(wrapperspb.BytesValue)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Describe(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodDescribe}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Describe(ctx, req.(*wrapperspb.BytesValue))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Libraries_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Libraries(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodLibraries}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Libraries(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Head_Handler(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
	in := new(emptypb.Empty)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(ControlServer).Head(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodHead}
	handler := func(ctx context.Context, req interface{}) (interface{}, error) {
		return srv.(ControlServer).Head(ctx, req.(*emptypb.Empty))
	}
	return interceptor(ctx, in, info, handler)
}

func _Control_Watch_Handler(srv interface{}, stream grpc.ServerStream) error {
	m := new(emptypb.Empty)
	if err := stream.RecvMsg(m); err != nil {
		return err
	}
	return srv.(ControlServer).Watch(m, &controlWatchServer{stream})
}

// Control_ServiceDesc is the grpc.ServiceDesc for the Control service.
var Control_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*ControlServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Execute", Handler: _Control_Execute_Handler},
		{MethodName: "Accept", Handler: _Control_Accept_Handler},
		{MethodName: "Describe", Handler: _Control_Describe_Handler},
		{MethodName: "Libraries", Handler: _Control_Libraries_Handler},
		{MethodName: "Head", Handler: _Control_Head_Handler},
	},
	Streams: []grpc.StreamDesc{
		{StreamName: "Watch", Handler: _Control_Watch_Handler, ServerStreams: true},
	},
	Metadata: "control.proto",
}
