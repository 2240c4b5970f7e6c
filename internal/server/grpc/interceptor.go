package grpc

import (
	"context"
	"errors"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

type ctxKey string

const accountIDKey ctxKey = "accountID"

// accessTokenInterceptor authenticates every call except Ping.
func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {

	if info.FullMethod == proto.PingFullMethod {
		return handler(ctx, req)
	}

	var token string
	if md, ok := metadata.FromIncomingContext(ctx); ok {
		values := md.Get(common.AuthorizationMetadataKey)
		if len(values) > 0 {
			token = common.ParseBearer(values[0])
		}
	}
	if len(token) == 0 {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	accountID, err := s.auth.Authenticate(ctx, token)
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, status.Error(codes.Unauthenticated, "unauthorized")
		}
		s.logger.Error(ctx, "authentication failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	ctx = context.WithValue(ctx, accountIDKey, accountID)

	return handler(ctx, req)
}
