// Package grpc exposes the sync service over gRPC. Messages travel in
// protobuf wire format through proto.Codec, which encodes them without
// generated code, so the service descriptor is declared by hand.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"google.golang.org/grpc"
)

// Syncer merges a device batch for an authenticated account.
type Syncer interface {
	Sync(ctx context.Context, accountID string, req *proto.SyncRequest) (*proto.SyncResponse, error)
}

// Authenticator resolves a bearer token to an account id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type GRPCServer struct {
	address string
	syncer  Syncer
	auth    Authenticator
	logger  logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, syncer Syncer, auth Authenticator) *GRPCServer {
	return &GRPCServer{
		address: a,
		logger:  l.With("module", "grpc_server"),
		syncer:  syncer,
		auth:    auth,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {
	srv := grpc.NewServer(
		grpc.ForceServerCodec(proto.Codec{}),
		grpc.ChainUnaryInterceptor(s.accessTokenInterceptor),
	)

	srv.RegisterService(&serviceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
