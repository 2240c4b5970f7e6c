// Package scheduler runs sync rounds in the background: periodically, on
// demand, and with exponential backoff after transient failures.
package scheduler

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/client/client"
	"github.com/dmitrijs2005/tasksync/internal/client/services"
	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/sethvargo/go-retry"
)

type Syncer interface {
	Sync(ctx context.Context) (*services.SyncResult, error)
}

// Options control round timing.
//
// Interval is the pause between successful rounds; zero disables automatic
// rounds, so only Trigger starts one. RoundTimeout bounds a single round.
// RetryBaseDelay is the first backoff step after a transient failure; the
// steps double up to Interval.
type Options struct {
	Interval       time.Duration
	RoundTimeout   time.Duration
	RetryBaseDelay time.Duration
}

type Scheduler struct {
	syncer Syncer
	opts   Options
	logger logging.Logger

	trigger chan struct{}
	paused  atomic.Bool

	mu      sync.Mutex
	onRound func(*services.SyncResult, error)
}

func New(s Syncer, opts Options, l logging.Logger) *Scheduler {
	return &Scheduler{
		syncer:  s,
		opts:    opts,
		logger:  l.With("module", "scheduler"),
		trigger: make(chan struct{}, 1),
	}
}

// OnRound registers fn to be called after every round.
func (s *Scheduler) OnRound(fn func(*services.SyncResult, error)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRound = fn
}

// Trigger asks for a round as soon as possible. Requests made while one is
// already pending collapse into it.
func (s *Scheduler) Trigger() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Paused reports whether automatic rounds stopped after a failure that
// retrying cannot fix.
func (s *Scheduler) Paused() bool {
	return s.paused.Load()
}

// Resume clears a pause and starts a round.
func (s *Scheduler) Resume() {
	if s.paused.CompareAndSwap(true, false) {
		s.logger.Info(context.Background(), "sync resumed")
	}
	s.Trigger()
}

// Run drives rounds until ctx is done. The first automatic round starts
// immediately.
func (s *Scheduler) Run(ctx context.Context) {
	timer := time.NewTimer(0)
	defer timer.Stop()
	if s.opts.Interval <= 0 {
		timer.Stop()
	}

	var backoff retry.Backoff
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.trigger:
		case <-timer.C:
		}

		if s.paused.Load() {
			continue
		}

		res, err := s.round(ctx)
		if ctx.Err() != nil {
			return
		}

		delay := s.next(ctx, res, err, &backoff)
		timer.Stop()
		if delay >= 0 {
			timer.Reset(delay)
		}
	}
}

func (s *Scheduler) round(ctx context.Context) (*services.SyncResult, error) {
	if s.opts.RoundTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.opts.RoundTimeout)
		defer cancel()
	}

	res, err := s.syncer.Sync(ctx)

	s.mu.Lock()
	fn := s.onRound
	s.mu.Unlock()
	if fn != nil {
		fn(res, err)
	}
	return res, err
}

// next returns the delay before the following automatic round, or -1 when
// none should be scheduled.
func (s *Scheduler) next(ctx context.Context, res *services.SyncResult, err error, backoff *retry.Backoff) time.Duration {
	switch {
	case err == nil:
		*backoff = nil
		if res != nil && res.Remaining > 0 {
			return 0
		}
		if s.opts.Interval <= 0 {
			return -1
		}
		return s.opts.Interval

	case errors.Is(err, client.ErrUnauthorized),
		errors.Is(err, client.ErrWatermarkRegression),
		errors.Is(err, client.ErrNotConfigured),
		errors.Is(err, client.ErrRejected):
		*backoff = nil
		s.paused.Store(true)
		s.logger.Warn(ctx, "sync paused", "error", err)
		return -1
	}

	s.logger.Warn(ctx, "sync round failed", "error", err)
	if s.opts.Interval <= 0 {
		return -1
	}
	if *backoff == nil {
		base := s.opts.RetryBaseDelay
		if base <= 0 {
			base = time.Second
		}
		*backoff = retry.WithCappedDuration(s.opts.Interval, retry.NewExponential(base))
	}
	d, stop := (*backoff).Next()
	if stop {
		return s.opts.Interval
	}
	return d
}
