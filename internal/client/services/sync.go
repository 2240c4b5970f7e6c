package services

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/client/client"
	"github.com/dmitrijs2005/tasksync/internal/client/config"
	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/cryptox"
	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/timex"
)

// DefaultBatchSize bounds the changes sent in one round. It stays below the
// server's default batch limit.
const DefaultBatchSize = 500

// SyncResult summarises one round.
type SyncResult struct {
	Sent int
	// Applied counts incoming changes that replaced local state; Skipped
	// counts those that lost to it or were malformed.
	Applied      int
	Skipped      int
	Conflicts    []proto.Conflict
	NewWatermark int64
	// Remaining is the number of outbox entries left for a later round.
	Remaining int
}

type Status struct {
	Configured bool
	LastSync   time.Time
	LastError  string
	Pending    int
	Watermark  int64
	Syncing    bool
}

type SyncService interface {
	// Sync runs one round: upload pending changes, apply the server's delta
	// and advance the watermark.
	Sync(ctx context.Context) (*SyncResult, error)
	// Resync forgets the watermark and queues every local record again.
	Resync(ctx context.Context) (int, error)
	Status(ctx context.Context) (*Status, error)
	// Reconfigure switches server, transport or token for later rounds.
	Reconfigure(cfg *config.Config) error
	Close() error
}

type ClientFactory func(transport, server, token string) (client.Client, error)

type SyncOption func(*syncService)

func WithClientFactory(f ClientFactory) SyncOption {
	return func(s *syncService) { s.newClient = f }
}

func WithBatchSize(n int) SyncOption {
	return func(s *syncService) { s.batchSize = n }
}

type syncService struct {
	store     *client.Store
	records   RecordStore
	logger    logging.Logger
	now       func() time.Time
	newClient ClientFactory
	batchSize int
	// batch is the size actually sent; it shrinks when the server refuses a
	// batch as too large and resets when the server changes.
	batch int

	// round serialises rounds, resyncs and reconfiguration.
	round   sync.Mutex
	syncing atomic.Bool

	mu        sync.RWMutex
	client    client.Client
	enabled   bool
	transport string
	server    string
	token     string
	lastErr   string
}

func NewSyncService(store *client.Store, records RecordStore, cfg *config.Config, l logging.Logger, opts ...SyncOption) (SyncService, error) {
	s := &syncService{
		store:     store,
		records:   records,
		logger:    l,
		now:       time.Now,
		newClient: client.New,
		batchSize: DefaultBatchSize,
	}
	for _, o := range opts {
		o(s)
	}
	s.batch = s.batchSize
	if err := s.Reconfigure(cfg); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *syncService) Reconfigure(cfg *config.Config) error {
	s.round.Lock()
	defer s.round.Unlock()
	s.mu.Lock()
	defer s.mu.Unlock()

	s.enabled = cfg.SyncEnabled
	if s.client != nil && s.server == cfg.ServerURL && s.transport == cfg.Transport {
		if s.token != cfg.Token {
			s.client.SetToken(cfg.Token)
			s.token = cfg.Token
		}
		return nil
	}

	if s.client != nil {
		if err := s.client.Close(); err != nil {
			s.logger.Warn(context.Background(), "closing previous transport", "error", err)
		}
		s.client = nil
	}
	s.server, s.transport, s.token = cfg.ServerURL, cfg.Transport, cfg.Token
	s.batch = s.batchSize
	if cfg.ServerURL == "" {
		return nil
	}

	c, err := s.newClient(cfg.Transport, cfg.ServerURL, cfg.Token)
	if err != nil {
		return fmt.Errorf("sync transport: %w", err)
	}
	s.client = c
	return nil
}

func (s *syncService) snapshot() (c client.Client, server, token string, ok bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ok = s.enabled && s.client != nil && s.server != "" && s.token != ""
	return s.client, s.server, s.token, ok
}

func (s *syncService) Sync(ctx context.Context) (*SyncResult, error) {
	s.round.Lock()
	defer s.round.Unlock()

	c, server, token, ok := s.snapshot()
	if !ok {
		return nil, client.ErrNotConfigured
	}

	s.syncing.Store(true)
	defer s.syncing.Store(false)

	res, err := s.run(ctx, c, cryptox.WatermarkKey(server, token))

	s.mu.Lock()
	s.lastErr = ""
	if err != nil {
		s.lastErr = err.Error()
	}
	s.mu.Unlock()

	if err != nil {
		return nil, err
	}
	s.logger.Info(ctx, "sync round complete",
		"sent", res.Sent, "applied", res.Applied, "skipped", res.Skipped,
		"conflicts", len(res.Conflicts), "watermark", res.NewWatermark)
	return res, nil
}

func localErr(err error) error {
	return fmt.Errorf("%w: %v", client.ErrLocalDataNotAvailable, err)
}

func (s *syncService) run(ctx context.Context, c client.Client, wmKey string) (*SyncResult, error) {
	repos := s.store.Repos()

	wm, err := repos.Metadata.GetInt64(ctx, wmKey)
	if err != nil {
		return nil, localErr(err)
	}
	entries, err := s.records.ReadChangesSince(ctx, 0)
	if err != nil {
		return nil, localErr(err)
	}

	res, resp, maxSeq, err := s.send(ctx, c, wm, entries)
	if err != nil {
		return nil, err
	}
	if resp.NewWatermark < wm {
		return nil, fmt.Errorf("%w: have %d, server sent %d", client.ErrWatermarkRegression, wm, resp.NewWatermark)
	}
	res.NewWatermark = resp.NewWatermark
	res.Conflicts = resp.Conflicts

	for _, cf := range resp.Conflicts {
		if cf.Reason == proto.ReasonInvalid {
			s.logger.Warn(ctx, "server dropped invalid change", "entity", cf.EntityType, "id", cf.ID, "detail", cf.Detail)
			continue
		}
		s.logger.Debug(ctx, "local change superseded", "entity", cf.EntityType, "id", cf.ID)
	}

	for _, ch := range applyOrder(resp.Changes) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		applied, err := s.records.ApplyChange(ctx, ch)
		switch {
		case errors.Is(err, common.ErrInvalidChange):
			s.logger.Warn(ctx, "skipping malformed change from server", "key", ch.Key(), "error", err)
			res.Skipped++
		case err != nil:
			return nil, localErr(err)
		case applied:
			res.Applied++
		default:
			res.Skipped++
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	err = s.store.InTx(ctx, func(ctx context.Context, r client.Repositories) error {
		if err := r.Metadata.SetInt64(ctx, wmKey, resp.NewWatermark); err != nil {
			return err
		}
		if maxSeq > 0 {
			if err := r.Outbox.PruneThrough(ctx, maxSeq); err != nil {
				return err
			}
		}
		return r.Metadata.SetInt64(ctx, keyLastSync, timex.Micros(s.now()))
	})
	if err != nil {
		return nil, localErr(err)
	}
	return res, nil
}

// send uploads the oldest outbox entries. When the server refuses the batch
// as too large it is halved and sent again, and the smaller size is kept for
// later rounds.
func (s *syncService) send(ctx context.Context, c client.Client, wm int64, entries []models.OutboxEntry) (*SyncResult, *proto.SyncResponse, int64, error) {
	for {
		batch := entries
		res := &SyncResult{}
		if s.batch > 0 && len(batch) > s.batch {
			res.Remaining = len(batch) - s.batch
			batch = batch[:s.batch]
		}

		var maxSeq int64
		changes := make([]proto.Change, 0, len(batch))
		for _, e := range batch {
			changes = append(changes, e.Change)
			maxSeq = e.Seq
		}
		res.Sent = len(changes)

		resp, err := c.Sync(ctx, &proto.SyncRequest{
			DeviceID:      s.records.DeviceID(),
			LastWatermark: wm,
			Changes:       changes,
		})
		if errors.Is(err, client.ErrBatchTooLarge) && len(changes) > 1 {
			s.batch = len(changes) / 2
			s.logger.Warn(ctx, "server refused batch size, retrying smaller", "sent", len(changes), "batch", s.batch)
			continue
		}
		if err != nil {
			return nil, nil, 0, err
		}
		return res, resp, maxSeq, nil
	}
}

// applyOrder puts upserts first, containers before the records that point
// at them, then deletions in the reverse order.
func applyOrder(changes []proto.Change) []proto.Change {
	out := slices.Clone(changes)
	slices.SortStableFunc(out, func(a, b proto.Change) int {
		ad, bd := a.Op == proto.OpDelete, b.Op == proto.OpDelete
		switch {
		case ad != bd:
			if ad {
				return 1
			}
			return -1
		case ad:
			return b.EntityType.ApplyRank() - a.EntityType.ApplyRank()
		default:
			return a.EntityType.ApplyRank() - b.EntityType.ApplyRank()
		}
	})
	return out
}

func (s *syncService) Resync(ctx context.Context) (int, error) {
	s.round.Lock()
	defer s.round.Unlock()

	_, server, token, ok := s.snapshot()
	if !ok {
		return 0, client.ErrNotConfigured
	}

	if err := s.store.Repos().Metadata.SetInt64(ctx, cryptox.WatermarkKey(server, token), 0); err != nil {
		return 0, localErr(err)
	}
	n, err := s.records.RequeueAll(ctx)
	if err != nil {
		return 0, localErr(err)
	}
	s.logger.Info(ctx, "full resync scheduled", "changes", n)
	return n, nil
}

func (s *syncService) Status(ctx context.Context) (*Status, error) {
	_, server, token, ok := s.snapshot()

	s.mu.RLock()
	st := &Status{Configured: ok, LastError: s.lastErr, Syncing: s.syncing.Load()}
	s.mu.RUnlock()

	repos := s.store.Repos()
	var err error
	if st.Pending, err = repos.Outbox.Count(ctx); err != nil {
		return nil, localErr(err)
	}
	if ok {
		if st.Watermark, err = repos.Metadata.GetInt64(ctx, cryptox.WatermarkKey(server, token)); err != nil {
			return nil, localErr(err)
		}
	}
	last, err := repos.Metadata.GetInt64(ctx, keyLastSync)
	if err != nil {
		return nil, localErr(err)
	}
	if last > 0 {
		st.LastSync = timex.FromMicros(last)
	}
	return st, nil
}

func (s *syncService) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.client == nil {
		return nil
	}
	err := s.client.Close()
	s.client = nil
	return err
}
