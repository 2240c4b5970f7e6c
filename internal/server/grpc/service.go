package grpc

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/proto"
	"google.golang.org/grpc"
)

// SyncServiceServer is the server API of tasksync.SyncService.
type SyncServiceServer interface {
	Sync(context.Context, *proto.SyncRequest) (*proto.SyncResponse, error)
	Ping(context.Context, *proto.PingRequest) (*proto.PingResponse, error)
}

var serviceDesc = grpc.ServiceDesc{
	ServiceName: proto.ServiceName,
	HandlerType: (*SyncServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{MethodName: "Sync", Handler: syncHandler},
		{MethodName: "Ping", Handler: pingHandler},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "tasksync/sync.proto",
}

func syncHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(proto.SyncRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServiceServer).Sync(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: proto.SyncFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServiceServer).Sync(ctx, req.(*proto.SyncRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func pingHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(proto.PingRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SyncServiceServer).Ping(ctx, in)
	}
	info := &grpc.UnaryServerInfo{Server: srv, FullMethod: proto.PingFullMethod}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SyncServiceServer).Ping(ctx, req.(*proto.PingRequest))
	}
	return interceptor(ctx, in, info, handler)
}
