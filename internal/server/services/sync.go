// Package services contains server-side business logic: the merge of device
// change batches into account stores, bearer-token authentication, and
// periodic account snapshots.
package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/lww"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/config"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
	"github.com/dmitrijs2005/tasksync/internal/server/repositories/repomanager"
)

// SyncService merges change batches into an account's store and computes
// the delta each device is missing.
type SyncService struct {
	repomanager repomanager.RepositoryManager
	locks       *keyLock
	maxBatch    int
	maxSkew     time.Duration
	logger      logging.Logger
	now         func() time.Time
}

func NewSyncService(m repomanager.RepositoryManager, cfg *config.Config, l logging.Logger) *SyncService {
	skew := cfg.MaxClockSkew
	if skew <= 0 {
		skew = config.DefaultMaxClockSkew
	}
	return &SyncService{
		repomanager: m,
		locks:       newKeyLock(),
		maxBatch:    cfg.MaxBatchSize,
		maxSkew:     skew,
		logger:      l.With("module", "sync_service"),
		now:         time.Now,
	}
}

type slotKey struct {
	entity proto.EntityType
	id     string
}

func keyOf(entity proto.EntityType, id string) slotKey {
	return slotKey{entity: entity, id: id}
}

// Sync merges req into the account and returns the authoritative response.
//
// The whole batch is merged and the delta computed in one transaction while
// the account is locked; on any storage error nothing is applied. Changes
// that fail validation or lose the merge are reported as conflicts and do
// not fail the request.
func (s *SyncService) Sync(ctx context.Context, accountID string, req *proto.SyncRequest) (*proto.SyncResponse, error) {
	if err := req.Validate(s.maxBatch); err != nil {
		return nil, err
	}

	unlock := s.locks.Lock(accountID)
	defer unlock()

	log := s.logger.With("account_id", accountID, "device_id", req.DeviceID)

	var resp *proto.SyncResponse
	err := s.repomanager.InTx(ctx, func(ctx context.Context, r repomanager.Repositories) error {
		current, err := r.Accounts.LockForUpdate(ctx, accountID)
		if err != nil {
			if errors.Is(err, common.ErrorNotFound) {
				return common.ErrorUnauthorized
			}
			return err
		}

		m := &merge{
			accountID: accountID,
			repos:     r,
			staged:    make(map[slotKey]*models.Slot),
			log:       log,
			maxStamp:  s.now().Add(s.maxSkew).UnixMicro(),
		}
		for i := range req.Changes {
			if err := m.add(ctx, req.Changes[i]); err != nil {
				return err
			}
		}

		seq := current
		if len(m.order) > 0 {
			seq, err = r.Accounts.IncrementCurrentSeq(ctx, accountID)
			if err != nil {
				return err
			}
			for _, k := range m.order {
				slot := m.staged[k]
				slot.Seq = seq
				if err := r.Slots.Upsert(ctx, slot); err != nil {
					return err
				}
			}
		}

		changes, err := m.delta(ctx, req.LastWatermark)
		if err != nil {
			return err
		}

		resp = &proto.SyncResponse{
			NewWatermark: seq,
			ServerTime:   s.now().UnixMicro(),
			Changes:      changes,
			Conflicts:    m.conflicts,
		}

		log.Info(ctx, "merged batch",
			"received", len(req.Changes),
			"installed", len(m.order),
			"conflicts", len(m.conflicts),
			"returned", len(changes),
			"watermark", seq,
		)
		return nil
	})
	if err != nil {
		if errors.Is(err, common.ErrorUnauthorized) {
			return nil, err
		}
		return nil, fmt.Errorf("sync account %s: %w", accountID, err)
	}

	return resp, nil
}

// merge accumulates the decisions for one batch.
type merge struct {
	accountID string
	repos     repomanager.Repositories
	log       logging.Logger

	// maxStamp is the latest timestamp accepted from a device: the server
	// clock plus the allowed skew.
	maxStamp int64

	// staged holds the slots this request will install, in first-seen order.
	staged map[slotKey]*models.Slot
	order  []slotKey

	// losers are keys whose stored winner must be returned to the device.
	losers    []slotKey
	conflicts []proto.Conflict
}

func (m *merge) current(ctx context.Context, k slotKey) (*models.Slot, error) {
	if s, ok := m.staged[k]; ok {
		return s, nil
	}
	s, err := m.repos.Slots.Get(ctx, m.accountID, k.entity, k.id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	return s, err
}

func (m *merge) add(ctx context.Context, c proto.Change) error {
	c.Seq = 0

	err := c.Normalize()
	if err == nil {
		err = c.Validate()
	}
	if err == nil && c.Timestamp > m.maxStamp {
		err = fmt.Errorf("%w: timestamp %d is ahead of the server clock", common.ErrInvalidChange, c.Timestamp)
	}
	if err != nil {
		m.log.Debug(ctx, "rejected change", "entity_type", c.EntityType, "id", c.ID, "error", err)
		m.conflicts = append(m.conflicts, proto.Conflict{
			ID:         c.ID,
			EntityType: c.EntityType,
			Reason:     proto.ReasonInvalid,
			Detail:     err.Error(),
		})
		return nil
	}

	k := keyOf(c.EntityType, c.ID)
	existing, err := m.current(ctx, k)
	if err != nil {
		return err
	}

	if existing == nil {
		m.stage(k, c)
		return nil
	}

	switch cmp := lww.Compare(c.Version(), existing.Change().Version()); {
	case cmp > 0:
		m.stage(k, c)
	case cmp == 0:
		// already holds exactly this change
	default:
		m.log.Debug(ctx, "superseded change", "entity_type", c.EntityType, "id", c.ID,
			"incoming_ts", c.Timestamp, "stored_ts", existing.Timestamp)
		m.conflicts = append(m.conflicts, proto.Conflict{
			ID:         c.ID,
			EntityType: c.EntityType,
			Reason:     proto.ReasonSuperseded,
		})
		m.losers = append(m.losers, k)
	}
	return nil
}

func (m *merge) stage(k slotKey, c proto.Change) {
	if _, ok := m.staged[k]; !ok {
		m.order = append(m.order, k)
	}
	m.staged[k] = models.SlotFromChange(m.accountID, c, 0)
}

// delta returns every slot newer than since that this request did not just
// install, plus the stored winner of each superseded change.
func (m *merge) delta(ctx context.Context, since int64) ([]proto.Change, error) {
	newer, err := m.repos.Slots.SelectSince(ctx, m.accountID, since)
	if err != nil {
		return nil, err
	}

	out := make([]proto.Change, 0, len(newer)+len(m.losers))
	seen := make(map[slotKey]struct{}, len(newer))

	for _, s := range newer {
		k := keyOf(s.EntityType, s.ID)
		if _, mine := m.staged[k]; mine {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, s.Change())
	}

	for _, k := range m.losers {
		if _, ok := seen[k]; ok {
			continue
		}
		winner, err := m.current(ctx, k)
		if err != nil {
			return nil, err
		}
		if winner == nil {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, winner.Change())
	}

	sort.SliceStable(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}
