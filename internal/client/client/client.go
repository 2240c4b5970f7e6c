package client

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/tasksync/internal/proto"
)

// Client is the transport a sync round talks through.
type Client interface {
	Sync(ctx context.Context, req *proto.SyncRequest) (*proto.SyncResponse, error)
	Ping(ctx context.Context) error
	// SetToken replaces the bearer token used by later calls.
	SetToken(token string)
	Close() error
}

const (
	TransportHTTP = "http"
	TransportGRPC = "grpc"
)

// New builds the transport named by transport for server.
func New(transport, server, token string) (Client, error) {
	if server == "" {
		return nil, ErrNotConfigured
	}

	switch strings.ToLower(transport) {
	case "", TransportHTTP:
		return NewHTTPClient(server, token), nil
	case TransportGRPC:
		return NewGRPCClient(server, token)
	default:
		return nil, fmt.Errorf("unknown transport %q", transport)
	}
}
