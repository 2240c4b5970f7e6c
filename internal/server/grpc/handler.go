package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/timex"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (s *GRPCServer) Sync(ctx context.Context, req *proto.SyncRequest) (*proto.SyncResponse, error) {

	accountID, ok := ctx.Value(accountIDKey).(string)
	if !ok || accountID == "" {
		return nil, status.Error(codes.Unauthenticated, "unauthorized")
	}

	resp, err := s.syncer.Sync(ctx, accountID, req)
	if err != nil {
		st := statusFor(err)
		if st.Code() == codes.Internal {
			s.logger.Error(ctx, "sync failed", "account_id", accountID, "error", err)
		}
		return nil, st.Err()
	}

	return resp, nil
}

func (s *GRPCServer) Ping(ctx context.Context, req *proto.PingRequest) (*proto.PingResponse, error) {

	return &proto.PingResponse{Status: "OK", ServerTime: timex.Micros(time.Now())}, nil

}

func statusFor(err error) *status.Status {
	switch {
	case errors.Is(err, common.ErrBatchTooLarge):
		return status.New(codes.OutOfRange, err.Error())
	case errors.Is(err, common.ErrInvalidRequest):
		return status.New(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorUnauthorized):
		return status.New(codes.Unauthenticated, "unauthorized")
	default:
		return status.New(codes.Internal, "internal error")
	}
}
