package core

import (
	"context"

	"google.golang.org/grpc"
)

// serviceName is the fully-qualified grpc service name for the node's
// inbound RPC surface.
const serviceName = "ringnode.NodeService"

// RequestHandler is implemented by the orchestrator and dispatched to by the
// inbound RPC server.
type RequestHandler interface {
	HandleSendPrompt(ctx context.Context, req *SendPromptRequest) (*TensorResponse, error)
	HandleSendTensor(ctx context.Context, req *SendTensorRequest) (*TensorResponse, error)
	HandleCollectTopology(ctx context.Context, req *CollectTopologyRequest) (*TopologyResponse, error)
	HandleSendResult(ctx context.Context, req *SendResultRequest) (*AckResponse, error)
	HandleSendOpaqueStatus(ctx context.Context, req *SendOpaqueStatusRequest) (*AckResponse, error)
	HandleHealthCheck(ctx context.Context, req *HealthCheckRequest) (*HealthCheckResponse, error)
}

func methodFullName(method string) string {
	return "/" + serviceName + "/" + method
}

var nodeServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*RequestHandler)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SendPrompt",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &SendPromptRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleSendPrompt(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("SendPrompt")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleSendPrompt(ctx, req.(*SendPromptRequest))
				})
			},
		},
		{
			MethodName: "SendTensor",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &SendTensorRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleSendTensor(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("SendTensor")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleSendTensor(ctx, req.(*SendTensorRequest))
				})
			},
		},
		{
			MethodName: "CollectTopology",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &CollectTopologyRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleCollectTopology(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("CollectTopology")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleCollectTopology(ctx, req.(*CollectTopologyRequest))
				})
			},
		},
		{
			MethodName: "SendResult",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &SendResultRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleSendResult(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("SendResult")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleSendResult(ctx, req.(*SendResultRequest))
				})
			},
		},
		{
			MethodName: "SendOpaqueStatus",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &SendOpaqueStatusRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleSendOpaqueStatus(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("SendOpaqueStatus")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleSendOpaqueStatus(ctx, req.(*SendOpaqueStatusRequest))
				})
			},
		},
		{
			MethodName: "HealthCheck",
			Handler: func(srv interface{}, ctx context.Context, dec func(interface{}) error, interceptor grpc.UnaryServerInterceptor) (interface{}, error) {
				in := &HealthCheckRequest{}
				if err := dec(in); err != nil {
					return nil, err
				}
				h := srv.(RequestHandler)
				if interceptor == nil {
					return h.HandleHealthCheck(ctx, in)
				}
				info := &grpc.UnaryServerInfo{Server: srv, FullMethod: methodFullName("HealthCheck")}
				return interceptor(ctx, in, info, func(ctx context.Context, req interface{}) (interface{}, error) {
					return h.HandleHealthCheck(ctx, req.(*HealthCheckRequest))
				})
			},
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "ringnode.proto",
}
