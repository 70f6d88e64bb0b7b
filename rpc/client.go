package rpc

import (
	"context"
	"errors"
	"io"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/wrapperspb"

	"xdao.co/libreg/checkpoint"
	"xdao.co/libreg/codec"
	"xdao.co/libreg/directory"
	"xdao.co/libreg/endpoint"
	"xdao.co/libreg/msglib"
	"xdao.co/libreg/ownership"
)

// Client calls a remote Control service. Errors returned by the endpoint come
// back as *msglib.Error with their Kind and RuleID intact.
type Client struct {
	cc     *grpc.ClientConn
	client ControlClient

	// Timeout applies per RPC when non-zero. It does not bound Watch.
	Timeout time.Duration
}

type DialOptions struct {
	// Timeout applies to the initial dial when non-zero.
	Timeout time.Duration

	// MaxMsgBytes sets both send/recv max sizes when non-zero.
	MaxMsgBytes int

	// Extra is appended to the dial options, e.g. a context dialer.
	Extra []grpc.DialOption
}

func Dial(target string, opts DialOptions) (*Client, error) {
	dialOpts := []grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	}
	if opts.MaxMsgBytes > 0 {
		dialOpts = append(dialOpts,
			grpc.WithDefaultCallOptions(
				grpc.MaxCallRecvMsgSize(opts.MaxMsgBytes),
				grpc.MaxCallSendMsgSize(opts.MaxMsgBytes),
			),
		)
	}
	dialOpts = append(dialOpts, opts.Extra...)

	ctx := context.Background()
	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	cc, err := grpc.DialContext(ctx, target, dialOpts...)
	if err != nil {
		return nil, err
	}
	return &Client{cc: cc, client: NewControlClient(cc)}, nil
}

func (c *Client) Close() error {
	if c == nil || c.cc == nil {
		return nil
	}
	return c.cc.Close()
}

func (c *Client) ctx(parent context.Context) (context.Context, context.CancelFunc) {
	if c.Timeout <= 0 {
		return context.WithCancel(parent)
	}
	return context.WithTimeout(parent, c.Timeout)
}

func decodeReply(reply *wrapperspb.BytesValue, v any) error {
	if err := codec.Unmarshal(reply.GetValue(), v); err != nil {
		return msglib.Wrap(msglib.KindInternal, "LIBREG-RPC-001", "decode reply", err)
	}
	return nil
}

// Execute submits a signed command.
func (c *Client) Execute(ctx context.Context, signed ownership.Signed) (endpoint.Result, error) {
	b, err := ownership.MarshalSigned(signed)
	if err != nil {
		return endpoint.Result{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Execute(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return endpoint.Result{}, fromStatus(err)
	}
	var res endpoint.Result
	if err := decodeReply(reply, &res); err != nil {
		return endpoint.Result{}, err
	}
	return res, nil
}

// Accept evaluates the acceptance predicate at the endpoint's checkpoint.
func (c *Client) Accept(ctx context.Context, app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID) (bool, error) {
	return c.accept(ctx, AcceptRequest{App: app, EID: eid, Library: candidate})
}

// AcceptAt evaluates the acceptance predicate at an explicit checkpoint.
func (c *Client) AcceptAt(ctx context.Context, app msglib.AppID, eid msglib.EID, candidate msglib.LibraryID, at checkpoint.Checkpoint) (bool, error) {
	return c.accept(ctx, AcceptRequest{App: app, EID: eid, Library: candidate, At: &at})
}

func (c *Client) accept(ctx context.Context, req AcceptRequest) (bool, error) {
	b, err := codec.Marshal(req)
	if err != nil {
		return false, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Accept(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return false, fromStatus(err)
	}
	return reply.GetValue(), nil
}

func (c *Client) Describe(ctx context.Context, app msglib.AppID, eid msglib.EID) (endpoint.PathView, error) {
	b, err := codec.Marshal(PathRequest{App: app, EID: eid})
	if err != nil {
		return endpoint.PathView{}, err
	}
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Describe(ctx, wrapperspb.Bytes(b))
	if err != nil {
		return endpoint.PathView{}, fromStatus(err)
	}
	var v endpoint.PathView
	if err := decodeReply(reply, &v); err != nil {
		return endpoint.PathView{}, err
	}
	return v, nil
}

func (c *Client) Libraries(ctx context.Context) ([]directory.Entry, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Libraries(ctx, &emptypb.Empty{})
	if err != nil {
		return nil, fromStatus(err)
	}
	var out []directory.Entry
	if err := decodeReply(reply, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (c *Client) Head(ctx context.Context) (endpoint.Head, error) {
	ctx, cancel := c.ctx(ctx)
	defer cancel()

	reply, err := c.client.Head(ctx, &emptypb.Empty{})
	if err != nil {
		return endpoint.Head{}, fromStatus(err)
	}
	var h endpoint.Head
	if err := decodeReply(reply, &h); err != nil {
		return endpoint.Head{}, err
	}
	return h, nil
}

// Watch calls fn for every change the endpoint commits until ctx is done, the
// stream ends or fn returns an error. A cancelled ctx returns nil.
func (c *Client) Watch(ctx context.Context, fn func(WatchEvent) error) error {
	stream, err := c.client.Watch(ctx, &emptypb.Empty{})
	if err != nil {
		return fromStatus(err)
	}
	for {
		msg, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if status.Code(err) == codes.Canceled && ctx.Err() != nil {
				return nil
			}
			return fromStatus(err)
		}
		var ev WatchEvent
		if err := decodeReply(msg, &ev); err != nil {
			return err
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
