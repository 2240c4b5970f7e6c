package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/dmitrijs2005/tasksync/internal/client/client"
	"github.com/dmitrijs2005/tasksync/internal/client/config"
	"github.com/dmitrijs2005/tasksync/internal/client/scheduler"
	"github.com/dmitrijs2005/tasksync/internal/client/services"
	"github.com/dmitrijs2005/tasksync/internal/logging"
)

type App struct {
	mu     sync.Mutex
	config *config.Config

	logger    logging.Logger
	logCloser io.Closer
	store     *client.Store
	records   services.RecordService
	syncer    services.SyncService
	scheduler *scheduler.Scheduler
	reader    *bufio.Reader
	out       io.Writer
}

// NewApp opens the local store and wires the sync machinery. It prompts for
// a token when a server is configured without one and stdin is a terminal.
func NewApp(ctx context.Context, c *config.Config) (*App, error) {
	logger, closer := logging.NewLogger(logging.Options{File: c.LogFile, Level: c.LogLevel})

	a, err := newApp(ctx, c, logger, bufio.NewReader(os.Stdin), os.Stdout)
	if err != nil {
		_ = closer.Close()
		return nil, err
	}
	a.logCloser = closer
	return a, nil
}

func newApp(ctx context.Context, c *config.Config, logger logging.Logger, reader *bufio.Reader, out io.Writer) (*App, error) {
	store, err := client.InitDatabase(ctx, c.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("error initializing database: %w", err)
	}

	records := services.NewRecordService(store, logger)
	if err := records.Open(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("error opening records: %w", err)
	}

	if c.SyncEnabled && c.ServerURL != "" && c.Token == "" && isTerminal(int(os.Stdin.Fd())) {
		tok, err := GetToken(out)
		if err != nil {
			logger.Warn(ctx, "token prompt failed", "error", err)
		}
		c.Token = tok
	}

	syncer, err := services.NewSyncService(store, records, c, logger)
	if err != nil {
		_ = store.Close()
		return nil, err
	}

	sched := scheduler.New(syncer, scheduler.Options{
		Interval:       c.SyncInterval,
		RoundTimeout:   c.RoundTimeout,
		RetryBaseDelay: c.RetryBaseDelay,
	}, logger)

	a := &App{
		config:    c,
		logger:    logger,
		logCloser: io.NopCloser(nil),
		store:     store,
		records:   records,
		syncer:    syncer,
		scheduler: sched,
		reader:    reader,
		out:       out,
	}
	sched.OnRound(a.onRound)
	return a, nil
}

func (a *App) cfg() *config.Config {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.config
}

func (a *App) onRound(_ *services.SyncResult, err error) {
	switch {
	case errors.Is(err, client.ErrUnauthorized):
		printlnFn("Sync paused: the server refused the token. Update it in the config file to resume.")
	case errors.Is(err, client.ErrWatermarkRegression):
		printlnFn("Sync paused: the server lost data this device already had. Run 'resync'.")
	case errors.Is(err, client.ErrRejected):
		printlnFn("Sync paused: the server rejected the request:", err)
	}
}

// onConfigChange applies a reloaded config file. Only sync settings take
// effect while running.
func (a *App) onConfigChange(c *config.Config) {
	ctx := context.Background()

	a.mu.Lock()
	if c.Token == "" {
		c.Token = a.config.Token
	}
	changed := c.Token != a.config.Token || c.ServerURL != a.config.ServerURL ||
		c.Transport != a.config.Transport || c.SyncEnabled != a.config.SyncEnabled
	a.config = c
	a.mu.Unlock()

	if !changed {
		return
	}
	if err := a.syncer.Reconfigure(c); err != nil {
		a.logger.Error(ctx, "applying new sync settings", "error", err)
		return
	}
	a.logger.Info(ctx, "sync settings reloaded", "server", c.ServerURL, "transport", c.Transport)
	a.scheduler.Resume()
}

func (a *App) statusLine() string {
	st, err := a.syncer.Status(context.Background())
	if err != nil {
		return "(local store unavailable) "
	}
	switch {
	case !st.Configured:
		return "(offline) "
	case a.scheduler.Paused():
		return fmt.Sprintf("(paused, %d pending) ", st.Pending)
	case st.Pending > 0:
		return fmt.Sprintf("(%d pending) ", st.Pending)
	}
	return ""
}

// Run starts background sync and the config watcher, then blocks in the
// REPL until the user exits or ctx is cancelled.
func (a *App) Run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		a.scheduler.Run(ctx)
	}()

	if a.config.ConfigFile != "" {
		if err := config.Watch(ctx, a.config.ConfigFile, a.logger, a.onConfigChange); err != nil {
			a.logger.Warn(ctx, "config file is not watched", "path", a.config.ConfigFile, "error", err)
		}
	}

	printlnFn("tasksync (type 'help' for commands)")
	runREPL(ctx, a, a.statusLine, a.reader)

	cancel()
	wg.Wait()
	a.Close()
}

func (a *App) Close() {
	ctx := context.Background()
	if err := a.syncer.Close(); err != nil {
		a.logger.Warn(ctx, "closing transport", "error", err)
	}
	if err := a.store.Close(); err != nil {
		a.logger.Warn(ctx, "closing database", "error", err)
	}
	_ = a.logCloser.Close()
}
