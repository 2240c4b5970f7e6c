// Package httpserver exposes the sync endpoint over HTTP using gin.
package httpserver

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/gin-gonic/gin"
)

// maxBodyBytes bounds a single sync request body.
const maxBodyBytes = 32 << 20

// Syncer merges a device batch for an authenticated account.
type Syncer interface {
	Sync(ctx context.Context, accountID string, req *proto.SyncRequest) (*proto.SyncResponse, error)
}

// Authenticator resolves a bearer token to an account id.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (string, error)
}

type Server struct {
	address string
	syncer  Syncer
	auth    Authenticator
	logger  logging.Logger
	router  *gin.Engine
}

func NewServer(address string, l logging.Logger, syncer Syncer, auth Authenticator) *Server {
	s := &Server{
		address: address,
		syncer:  syncer,
		auth:    auth,
		logger:  l.With("module", "http_server"),
	}

	router := gin.New()
	router.Use(gin.Recovery(), s.accessLog)

	router.GET("/health", s.handleHealth)
	router.POST("/sync", s.requireAuth, s.handleSync)

	api := router.Group("/api/v1", s.requireAuth)
	{
		api.POST("/sync", s.handleSync)
	}

	s.router = router
	return s
}

// Handler exposes the router, mainly for httptest.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run listens on the configured address until ctx is cancelled.
func (s *Server) Run(ctx context.Context) error {
	lis, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}
	return s.Serve(ctx, lis)
}

// Serve accepts connections on lis and shuts down gracefully when ctx ends.
func (s *Server) Serve(ctx context.Context, lis net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping HTTP server...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info(ctx, "Starting HTTP server", "address", lis.Addr().String())

	if err := srv.Serve(lis); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
