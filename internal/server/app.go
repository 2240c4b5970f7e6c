// Package server initializes and runs the sync server. It picks the storage
// backend, applies migrations, starts the HTTP and gRPC transports and the
// snapshot loop, and shuts everything down on SIGINT/SIGTERM.
package server

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/httpserver"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/tasksync/internal/server/services"

	gs "github.com/dmitrijs2005/tasksync/internal/server/grpc"
)

type App struct {
	config        *config.Config
	logger        logging.Logger
	logCloser     io.Closer
	repomanager   repomanager.RepositoryManager
	syncService   *services.SyncService
	authService   *services.AuthService
	backupService *services.BackupService
}

// OpenRepositoryManager connects to PostgreSQL when a DSN is configured and
// falls back to the in-memory store otherwise. Migrations are applied.
func OpenRepositoryManager(ctx context.Context, c *config.Config) (repomanager.RepositoryManager, error) {
	var m repomanager.RepositoryManager

	if c.DatabaseDSN == "" {
		m = repomanager.NewInMemoryRepositoryManager()
	} else {
		pm, err := repomanager.OpenPostgres(ctx, c.DatabaseDSN)
		if err != nil {
			return nil, fmt.Errorf("db init error: %w", err)
		}
		m = pm
	}

	if err := m.RunMigrations(ctx); err != nil {
		_ = m.Close()
		return nil, fmt.Errorf("migrations error: %w", err)
	}

	return m, nil
}

func NewApp(ctx context.Context, c *config.Config) (*App, error) {

	logger, closer := logging.NewLogger(logging.Options{Level: c.LogLevel, JSON: true})

	m, err := OpenRepositoryManager(ctx, c)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}

	app := &App{
		config:      c,
		logger:      logger,
		logCloser:   closer,
		repomanager: m,
		syncService: services.NewSyncService(m, c, logger),
		authService: services.NewAuthService(m, c),
	}

	if c.S3Bucket != "" {
		u, err := services.NewS3Uploader(ctx, c)
		if err != nil {
			_ = m.Close()
			_ = closer.Close()
			return nil, fmt.Errorf("s3 init error: %w", err)
		}
		app.backupService = services.NewBackupService(m, u, c, logger)
	}

	if c.DatabaseDSN == "" {
		logger.Warn(ctx, "no database configured, using in-memory store: data is not persisted and transactions of all accounts run one at a time")
	}

	return app, nil
}

func (app *App) initSignalHandler(cancelFunc context.CancelFunc) {
	// Channel to catch OS signals.
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	go func() {
		<-sigs
		cancelFunc()
	}()
}

func (app *App) startHTTPServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := httpserver.NewServer(app.config.EndpointAddrHTTP, app.logger, app.syncService, app.authService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

func (app *App) startGRPCServer(ctx context.Context, cancelFunc context.CancelFunc) {
	s := gs.NewGRPCServer(app.config.EndpointAddrGRPC, app.logger, app.syncService, app.authService)

	if err := s.Run(ctx); err != nil {
		app.logger.Error(ctx, err.Error())
		cancelFunc()
	}
}

// Run blocks until a signal arrives, ctx is cancelled, or a transport fails.
func (app *App) Run(ctx context.Context) {

	ctx, cancelFunc := context.WithCancel(ctx)
	defer cancelFunc()

	app.logger.Info(ctx, "Starting app...")

	app.initSignalHandler(cancelFunc)

	var wg sync.WaitGroup

	if app.config.EndpointAddrHTTP != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startHTTPServer(ctx, cancelFunc)
		}()
	}

	if app.config.EndpointAddrGRPC != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.startGRPCServer(ctx, cancelFunc)
		}()
	}

	if app.backupService != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			app.backupService.Run(ctx)
		}()
	}

	wg.Wait()

	if err := app.repomanager.Close(); err != nil {
		app.logger.Error(context.Background(), "closing storage", "error", err)
	}
	app.logger.Info(context.Background(), "Stopped")
	_ = app.logCloser.Close()
}
