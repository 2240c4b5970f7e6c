package client

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type GRPCClient struct {
	endpointURL string
	conn        *grpc.ClientConn

	mu          sync.RWMutex
	accessToken string
}

func withAccessToken(ctx context.Context, token string) context.Context {
	md, _ := metadata.FromOutgoingContext(ctx)
	md = md.Copy()
	if md == nil {
		md = metadata.MD{}
	}
	md.Set(common.AuthorizationMetadataKey, common.BearerPrefix+token)

	return metadata.NewOutgoingContext(ctx, md)
}

func (s *GRPCClient) accessTokenInterceptor(
	ctx context.Context,
	method string,
	req, reply any,
	cc *grpc.ClientConn,
	invoker grpc.UnaryInvoker,
	opts ...grpc.CallOption,
) error {
	s.mu.RLock()
	token := s.accessToken
	s.mu.RUnlock()

	return invoker(withAccessToken(ctx, token), method, req, reply, cc, opts...)
}

// NewGRPCClient prepares a lazy connection to endpointURL. Extra dial
// options are appended, which tests use to dial an in-memory listener.
func NewGRPCClient(endpointURL, token string, opts ...grpc.DialOption) (*GRPCClient, error) {
	c := &GRPCClient{endpointURL: strings.TrimPrefix(endpointURL, "grpc://"), accessToken: token}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithUnaryInterceptor(c.accessTokenInterceptor),
		grpc.WithDefaultCallOptions(grpc.ForceCodec(proto.Codec{})),
	}, opts...)

	conn, err := grpc.NewClient(c.endpointURL, dialOpts...)
	if err != nil {
		return nil, err
	}
	c.conn = conn
	return c, nil
}

func (s *GRPCClient) SetToken(token string) {
	s.mu.Lock()
	s.accessToken = token
	s.mu.Unlock()
}

func (s *GRPCClient) Sync(ctx context.Context, req *proto.SyncRequest) (*proto.SyncResponse, error) {
	resp := new(proto.SyncResponse)
	if err := s.conn.Invoke(ctx, proto.SyncFullMethod, req, resp); err != nil {
		return nil, s.mapError(ctx, err)
	}
	return resp, nil
}

func (s *GRPCClient) Ping(ctx context.Context) error {
	resp := new(proto.PingResponse)
	if err := s.conn.Invoke(ctx, proto.PingFullMethod, &proto.PingRequest{}, resp); err != nil {
		return s.mapError(ctx, err)
	}

	if resp.Status != "OK" {
		return ErrUnavailable
	}

	return nil
}

func (s *GRPCClient) Close() error {
	return s.conn.Close()
}

func (s *GRPCClient) mapError(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil && errors.Is(ctxErr, context.Canceled) {
		return ctxErr
	}
	st, _ := status.FromError(err)
	switch st.Code() {
	case codes.Unauthenticated, codes.PermissionDenied:
		return ErrUnauthorized
	case codes.Unavailable, codes.DeadlineExceeded, codes.ResourceExhausted:
		return fmt.Errorf("%w: %s", ErrUnavailable, st.Message())
	case codes.OutOfRange:
		return fmt.Errorf("%w: %s", ErrBatchTooLarge, st.Message())
	case codes.InvalidArgument:
		return fmt.Errorf("%w: %s", ErrRejected, st.Message())
	default:
		return fmt.Errorf("rpc error: %w", err)
	}
}
