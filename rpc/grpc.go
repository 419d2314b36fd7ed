// Package rpc declares the bittensor.Bittensor gRPC service without protoc
// generated code. Messages travel through wire.Codec.
//
// Proto definition: wire/bittensor.proto.
package rpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/parall4x/bittensor/wire"
)

const (
	ServiceName    = "bittensor.Bittensor"
	ForwardMethod  = "/bittensor.Bittensor/Forward"
	BackwardMethod = "/bittensor.Bittensor/Backward"
)

// BittensorServer is the server API for the Bittensor service.
//
// Implementations report protocol outcomes inside the returned envelope; a
// non-nil error is reserved for transport-level failures.
type BittensorServer interface {
	Forward(context.Context, *wire.TensorMessage) (*wire.TensorMessage, error)
	Backward(context.Context, *wire.TensorMessage) (*wire.TensorMessage, error)
}

// MalformedHandler is optionally implemented by a BittensorServer that wants
// to answer undecodable request bytes with an envelope instead of a gRPC error.
type MalformedHandler interface {
	Malformed(ctx context.Context, method string, err error) *wire.TensorMessage
}

// UnimplementedBittensorServer can be embedded to have forward compatible implementations.
type UnimplementedBittensorServer struct{}

func (UnimplementedBittensorServer) Forward(context.Context, *wire.TensorMessage) (*wire.TensorMessage, error) {
	return nil, status.Error(codes.Unimplemented, "method Forward not implemented")
}
func (UnimplementedBittensorServer) Backward(context.Context, *wire.TensorMessage) (*wire.TensorMessage, error) {
	return nil, status.Error(codes.Unimplemented, "method Backward not implemented")
}

// RegisterBittensorServer registers the service on a gRPC server. The server
// must be created with grpc.ForceServerCodec(wire.Codec{}).
func RegisterBittensorServer(s grpc.ServiceRegistrar, srv BittensorServer) {
	s.RegisterService(&Bittensor_ServiceDesc, srv)
}

// BittensorClient is the client API for the Bittensor service.
type BittensorClient interface {
	Forward(ctx context.Context, in *wire.TensorMessage, opts ...grpc.CallOption) (*wire.TensorMessage, error)
	Backward(ctx context.Context, in *wire.TensorMessage, opts ...grpc.CallOption) (*wire.TensorMessage, error)
}

type bittensorClient struct{ cc grpc.ClientConnInterface }

// NewBittensorClient returns a client that forces wire.Codec on every call.
func NewBittensorClient(cc grpc.ClientConnInterface) BittensorClient {
	return &bittensorClient{cc: cc}
}

func (c *bittensorClient) Forward(ctx context.Context, in *wire.TensorMessage, opts ...grpc.CallOption) (*wire.TensorMessage, error) {
	return c.invoke(ctx, ForwardMethod, in, opts)
}

func (c *bittensorClient) Backward(ctx context.Context, in *wire.TensorMessage, opts ...grpc.CallOption) (*wire.TensorMessage, error) {
	return c.invoke(ctx, BackwardMethod, in, opts)
}

func (c *bittensorClient) invoke(ctx context.Context, method string, in *wire.TensorMessage, opts []grpc.CallOption) (*wire.TensorMessage, error) {
	out := new(wire.TensorMessage)
	opts = append([]grpc.CallOption{grpc.ForceCodec(wire.Codec{})}, opts...)
	if err := c.cc.Invoke(ctx, method, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

func handle(method string, call func(BittensorServer, context.Context, *wire.TensorMessage) (*wire.TensorMessage, error)) func(interface{}, context.Context, func(interface{}) error, grpc.UnaryServerInterceptor) (interface{}, error) {
	return func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
		in := new(wire.TensorMessage)
		if err := dec(in); err != nil {
			if mh, ok := srv.(MalformedHandler); ok {
				return mh.Malformed(ctx, method, err), nil
			}
			return nil, err
		}
		if interceptor == nil {
			return call(srv.(BittensorServer), ctx, in)
		}
		info := &grpc.UnaryServerInfo{Server: srv, FullMethod: method}
		handler := func(ctx context.Context, req interface{}) (interface{}, error) {
			return call(srv.(BittensorServer), ctx, req.(*wire.TensorMessage))
		}
		return interceptor(ctx, in, info, handler)
	}
}

var (
	_Bittensor_Forward_Handler = handle(ForwardMethod, func(s BittensorServer, ctx context.Context, in *wire.TensorMessage) (*wire.TensorMessage, error) {
		return s.Forward(ctx, in)
	})
	_Bittensor_Backward_Handler = handle(BackwardMethod, func(s BittensorServer, ctx context.Context, in *wire.TensorMessage) (*wire.TensorMessage, error) {
		return s.Backward(ctx, in)
	})
)

// Bittensor_ServiceDesc is the grpc.ServiceDesc for the Bittensor service.
var Bittensor_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*BittensorServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Forward", Handler: _Bittensor_Forward_Handler},
		{MethodName: "Backward", Handler: _Bittensor_Backward_Handler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "bittensor.proto",
}
