// Package services contains the client's application services: the record
// service that edits the local store and encodes every edit as an outbox
// change, and the sync service that ships those changes to the server.
package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/client/client"
	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/logging"
	"github.com/dmitrijs2005/tasksync/internal/lww"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/timex"
	"github.com/google/uuid"
)

const (
	keyDeviceID  = "device_id"
	keyLastStamp = "last_stamp"
	keyLastSync  = "last_sync"

	// inboxOrigin and inboxStamp seed the default list identically on every
	// device, so any real edit of the inbox replaces the seed.
	inboxOrigin = "inbox"
	inboxStamp  = 1
)

var (
	ErrInboxProtected = errors.New("the inbox cannot be deleted")
	ErrAmbiguous      = errors.New("reference matches more than one record")
	ErrEmptyName      = errors.New("name must not be empty")
)

// RecordService edits the local store. Every mutation writes the record or
// tombstone and appends its change to the outbox in one transaction.
type RecordService interface {
	// Open prepares the store for use: device id and inbox.
	Open(ctx context.Context) error
	DeviceID() string

	CreateList(ctx context.Context, name string) (*models.List, error)
	CreateTag(ctx context.Context, name, color string) (*models.Tag, error)
	// CreateTask adds a task to listID, or to the inbox when listID is empty.
	CreateTask(ctx context.Context, title, listID string) (*models.Task, error)
	Rename(ctx context.Context, kind proto.EntityType, id, name string) error
	ToggleTask(ctx context.Context, id string) (*models.Task, error)
	SetPriority(ctx context.Context, id string, p models.Priority) error
	SetDescription(ctx context.Context, id, text string) error
	SetDueDate(ctx context.Context, id string, due time.Time) error
	TagTask(ctx context.Context, taskID, tagID string) error
	UntagTask(ctx context.Context, taskID, tagID string) error
	Delete(ctx context.Context, kind proto.EntityType, id string) error

	Lists(ctx context.Context) ([]*models.List, error)
	Tags(ctx context.Context) ([]*models.Tag, error)
	Tasks(ctx context.Context, listID string) ([]*models.Task, error)
	TagsOfTask(ctx context.Context, taskID string) ([]*models.Tag, error)
	// Resolve finds the id of a record by full id, id prefix or exact name.
	Resolve(ctx context.Context, kind proto.EntityType, ref string) (string, error)

	RecordStore
}

// RecordStore is what the sync service needs from the local store.
type RecordStore interface {
	DeviceID() string
	ReadChangesSince(ctx context.Context, seq int64) ([]models.OutboxEntry, error)
	// ApplyChange installs a remote change when it wins against the local
	// slot. It reports whether anything changed.
	ApplyChange(ctx context.Context, c proto.Change) (bool, error)
	// RequeueAll appends every live record and tombstone to the outbox.
	RequeueAll(ctx context.Context) (int, error)
}

type recordService struct {
	store    *client.Store
	logger   logging.Logger
	now      func() time.Time
	deviceID string
}

func NewRecordService(store *client.Store, l logging.Logger) RecordService {
	return &recordService{store: store, logger: l, now: time.Now}
}

func (s *recordService) DeviceID() string {
	return s.deviceID
}

func (s *recordService) Open(ctx context.Context) error {
	return s.store.InTx(ctx, func(ctx context.Context, r client.Repositories) error {
		raw, err := r.Metadata.Get(ctx, keyDeviceID)
		if err != nil {
			return fmt.Errorf("read device id: %w", err)
		}
		if raw == nil {
			raw = []byte(uuid.NewString())
			if err := r.Metadata.Set(ctx, keyDeviceID, raw); err != nil {
				return fmt.Errorf("store device id: %w", err)
			}
			s.logger.Info(ctx, "device registered", "device_id", string(raw))
		}
		s.deviceID = string(raw)

		_, err = r.Records.Get(ctx, proto.EntityList, models.InboxID)
		if err == nil {
			return nil
		}
		if !errors.Is(err, common.ErrorNotFound) {
			return err
		}
		if _, err := r.Records.Tombstone(ctx, proto.EntityList, models.InboxID); err == nil {
			return nil
		}

		inbox := &models.List{
			Meta:    models.Meta{ID: models.InboxID, UpdatedAt: inboxStamp, Origin: inboxOrigin},
			Name:    "Inbox",
			IsInbox: true,
		}
		return r.Records.Put(ctx, inbox)
	})
}

// mutation is one local edit in progress. All changes it emits share a
// single stamp.
type mutation struct {
	ctx    context.Context
	r      client.Repositories
	stamp  int64
	origin string
	now    int64
}

func (m *mutation) put(rec models.Record) error {
	h := rec.Header()
	h.UpdatedAt = m.stamp
	h.Origin = m.origin

	c, err := models.ToChange(rec)
	if err != nil {
		return err
	}
	if err := m.r.Records.Put(m.ctx, rec); err != nil {
		return err
	}
	if err := m.r.Records.RemoveTombstone(m.ctx, rec.Kind(), h.ID); err != nil {
		return err
	}
	_, err = m.r.Outbox.Append(m.ctx, c, m.now)
	return err
}

func (m *mutation) remove(kind proto.EntityType, id string) error {
	if err := m.r.Records.Remove(m.ctx, kind, id); err != nil {
		return err
	}
	t := &models.Tombstone{EntityType: kind, ID: id, DeletedAt: m.stamp, Origin: m.origin}
	if err := m.r.Records.PutTombstone(m.ctx, t); err != nil {
		return err
	}
	_, err := m.r.Outbox.Append(m.ctx, t.Change(), m.now)
	return err
}

func (s *recordService) mutate(ctx context.Context, fn func(m *mutation) error) error {
	if s.deviceID == "" {
		return fmt.Errorf("record service is not open")
	}
	return s.store.InTx(ctx, func(ctx context.Context, r client.Repositories) error {
		now := timex.Micros(s.now())
		last, err := r.Metadata.GetInt64(ctx, keyLastStamp)
		if err != nil {
			return fmt.Errorf("read stamp clock: %w", err)
		}
		stamp := lww.Next(now, last)
		if err := r.Metadata.SetInt64(ctx, keyLastStamp, stamp); err != nil {
			return fmt.Errorf("advance stamp clock: %w", err)
		}
		return fn(&mutation{ctx: ctx, r: r, stamp: stamp, origin: s.deviceID, now: now})
	})
}

// load fetches a live record of type T.
func load[T models.Record](ctx context.Context, r client.Repositories, kind proto.EntityType, id string) (T, error) {
	var zero T
	rec, err := r.Records.Get(ctx, kind, id)
	if err != nil {
		return zero, fmt.Errorf("%s %s: %w", kind, id, err)
	}
	v, ok := rec.(T)
	if !ok {
		return zero, fmt.Errorf("%s %s: unexpected record %T", kind, id, rec)
	}
	return v, nil
}

func (s *recordService) CreateList(ctx context.Context, name string) (*models.List, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	var l *models.List
	err := s.mutate(ctx, func(m *mutation) error {
		lists, err := m.r.Records.Lists(ctx)
		if err != nil {
			return err
		}
		l = &models.List{
			Meta:      models.Meta{ID: uuid.NewString()},
			Name:      name,
			SortOrder: len(lists),
			CreatedAt: m.stamp,
		}
		return m.put(l)
	})
	if err != nil {
		return nil, err
	}
	return l, nil
}

func (s *recordService) CreateTag(ctx context.Context, name, color string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, ErrEmptyName
	}
	var t *models.Tag
	err := s.mutate(ctx, func(m *mutation) error {
		t = &models.Tag{Meta: models.Meta{ID: uuid.NewString()}, Name: name, Color: color, CreatedAt: m.stamp}
		return m.put(t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *recordService) CreateTask(ctx context.Context, title, listID string) (*models.Task, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return nil, ErrEmptyName
	}
	if listID == "" {
		listID = models.InboxID
	}
	var t *models.Task
	err := s.mutate(ctx, func(m *mutation) error {
		if _, err := load[*models.List](ctx, m.r, proto.EntityList, listID); err != nil {
			return err
		}
		t = &models.Task{
			Meta:      models.Meta{ID: uuid.NewString()},
			Title:     title,
			Priority:  models.PriorityMedium,
			ListID:    listID,
			CreatedAt: m.stamp,
		}
		return m.put(t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *recordService) Rename(ctx context.Context, kind proto.EntityType, id, name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return ErrEmptyName
	}
	return s.mutate(ctx, func(m *mutation) error {
		rec, err := m.r.Records.Get(ctx, kind, id)
		if err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
		switch v := rec.(type) {
		case *models.List:
			v.Name = name
		case *models.Tag:
			v.Name = name
		case *models.Task:
			v.Title = name
		default:
			return fmt.Errorf("%s records have no name", kind)
		}
		return m.put(rec)
	})
}

// updateTask applies fn to a task and records the new version.
func (s *recordService) updateTask(ctx context.Context, id string, fn func(m *mutation, t *models.Task)) (*models.Task, error) {
	var t *models.Task
	err := s.mutate(ctx, func(m *mutation) error {
		var err error
		if t, err = load[*models.Task](ctx, m.r, proto.EntityTask, id); err != nil {
			return err
		}
		fn(m, t)
		return m.put(t)
	})
	if err != nil {
		return nil, err
	}
	return t, nil
}

func (s *recordService) ToggleTask(ctx context.Context, id string) (*models.Task, error) {
	return s.updateTask(ctx, id, func(m *mutation, t *models.Task) {
		t.Completed = !t.Completed
		t.CompletedAt = 0
		if t.Completed {
			t.CompletedAt = m.stamp
		}
	})
}

func (s *recordService) SetPriority(ctx context.Context, id string, p models.Priority) error {
	_, err := s.updateTask(ctx, id, func(_ *mutation, t *models.Task) { t.Priority = p })
	return err
}

func (s *recordService) SetDescription(ctx context.Context, id, text string) error {
	_, err := s.updateTask(ctx, id, func(_ *mutation, t *models.Task) { t.Description = text })
	return err
}

// SetDueDate sets the due date; the zero time clears it.
func (s *recordService) SetDueDate(ctx context.Context, id string, due time.Time) error {
	_, err := s.updateTask(ctx, id, func(_ *mutation, t *models.Task) {
		t.DueDate = 0
		if !due.IsZero() {
			t.DueDate = timex.Micros(due)
		}
	})
	return err
}

func (s *recordService) TagTask(ctx context.Context, taskID, tagID string) error {
	return s.mutate(ctx, func(m *mutation) error {
		if _, err := load[*models.Task](ctx, m.r, proto.EntityTask, taskID); err != nil {
			return err
		}
		if _, err := load[*models.Tag](ctx, m.r, proto.EntityTag, tagID); err != nil {
			return err
		}
		link := &models.TaskTag{
			Meta:   models.Meta{ID: models.TaskTagID(taskID, tagID)},
			TaskID: taskID,
			TagID:  tagID,
		}
		return m.put(link)
	})
}

func (s *recordService) UntagTask(ctx context.Context, taskID, tagID string) error {
	id := models.TaskTagID(taskID, tagID)
	return s.mutate(ctx, func(m *mutation) error {
		if _, err := m.r.Records.Get(ctx, proto.EntityTaskTag, id); err != nil {
			return fmt.Errorf("task %s is not tagged with %s: %w", taskID, tagID, err)
		}
		return m.remove(proto.EntityTaskTag, id)
	})
}

// Delete tombstones a record. Deleting a list also deletes its tasks, and
// deleting a task or tag also deletes its links.
func (s *recordService) Delete(ctx context.Context, kind proto.EntityType, id string) error {
	if kind == proto.EntityList && id == models.InboxID {
		return ErrInboxProtected
	}
	return s.mutate(ctx, func(m *mutation) error {
		if _, err := m.r.Records.Get(ctx, kind, id); err != nil {
			return fmt.Errorf("%s %s: %w", kind, id, err)
		}
		return s.cascade(m, kind, id)
	})
}

func (s *recordService) cascade(m *mutation, kind proto.EntityType, id string) error {
	var links []*models.TaskTag
	var err error

	switch kind {
	case proto.EntityList:
		tasks, err := m.r.Records.Tasks(m.ctx, id)
		if err != nil {
			return err
		}
		for _, t := range tasks {
			if err := s.cascade(m, proto.EntityTask, t.ID); err != nil {
				return err
			}
		}
	case proto.EntityTask:
		links, err = m.r.Records.LinksOfTask(m.ctx, id)
	case proto.EntityTag:
		links, err = m.r.Records.LinksOfTag(m.ctx, id)
	}
	if err != nil {
		return err
	}
	for _, l := range links {
		if err := m.remove(proto.EntityTaskTag, l.ID); err != nil {
			return err
		}
	}
	return m.remove(kind, id)
}

func (s *recordService) Lists(ctx context.Context) ([]*models.List, error) {
	return s.store.Repos().Records.Lists(ctx)
}

func (s *recordService) Tags(ctx context.Context) ([]*models.Tag, error) {
	return s.store.Repos().Records.Tags(ctx)
}

func (s *recordService) Tasks(ctx context.Context, listID string) ([]*models.Task, error) {
	return s.store.Repos().Records.Tasks(ctx, listID)
}

func (s *recordService) TagsOfTask(ctx context.Context, taskID string) ([]*models.Tag, error) {
	repo := s.store.Repos().Records
	links, err := repo.LinksOfTask(ctx, taskID)
	if err != nil {
		return nil, err
	}
	tags := make([]*models.Tag, 0, len(links))
	for _, l := range links {
		rec, err := repo.Get(ctx, proto.EntityTag, l.TagID)
		if errors.Is(err, common.ErrorNotFound) {
			// The tag was deleted remotely and the link has not arrived yet.
			continue
		}
		if err != nil {
			return nil, err
		}
		tags = append(tags, rec.(*models.Tag))
	}
	return tags, nil
}

func (s *recordService) Resolve(ctx context.Context, kind proto.EntityType, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return "", fmt.Errorf("%s: %w", kind, common.ErrorNotFound)
	}

	type candidate struct{ id, name string }
	var all []candidate

	repo := s.store.Repos().Records
	switch kind {
	case proto.EntityList:
		lists, err := repo.Lists(ctx)
		if err != nil {
			return "", err
		}
		for _, l := range lists {
			all = append(all, candidate{l.ID, l.Name})
		}
	case proto.EntityTag:
		tags, err := repo.Tags(ctx)
		if err != nil {
			return "", err
		}
		for _, t := range tags {
			all = append(all, candidate{t.ID, t.Name})
		}
	case proto.EntityTask:
		tasks, err := repo.Tasks(ctx, "")
		if err != nil {
			return "", err
		}
		for _, t := range tasks {
			all = append(all, candidate{t.ID, t.Title})
		}
	default:
		return "", fmt.Errorf("%s records cannot be looked up by name", kind)
	}

	var matches []string
	for _, c := range all {
		if c.id == ref {
			return c.id, nil
		}
		if strings.HasPrefix(c.id, ref) || strings.EqualFold(c.name, ref) {
			matches = append(matches, c.id)
		}
	}
	switch len(matches) {
	case 0:
		return "", fmt.Errorf("%s %q: %w", kind, ref, common.ErrorNotFound)
	case 1:
		return matches[0], nil
	default:
		return "", fmt.Errorf("%s %q: %w", kind, ref, ErrAmbiguous)
	}
}

func (s *recordService) ReadChangesSince(ctx context.Context, seq int64) ([]models.OutboxEntry, error) {
	return s.store.Repos().Outbox.ReadSince(ctx, seq)
}

// currentVersion returns the version held in the local slot, or nil when
// the slot is empty.
func currentVersion(ctx context.Context, r client.Repositories, kind proto.EntityType, id string) (*lww.Version, error) {
	rec, err := r.Records.Get(ctx, kind, id)
	if err == nil {
		v, err := models.VersionOf(rec)
		if err != nil {
			return nil, err
		}
		return &v, nil
	}
	if !errors.Is(err, common.ErrorNotFound) {
		return nil, err
	}

	t, err := r.Records.Tombstone(ctx, kind, id)
	if errors.Is(err, common.ErrorNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	v := t.Version()
	return &v, nil
}

func (s *recordService) ApplyChange(ctx context.Context, c proto.Change) (bool, error) {
	if err := c.Normalize(); err != nil {
		return false, err
	}
	if err := c.Validate(); err != nil {
		return false, err
	}

	var rec models.Record
	if c.Op == proto.OpUpsert {
		var err error
		if rec, err = models.FromChange(c); err != nil {
			return false, err
		}
	}

	applied := false
	err := s.store.InTx(ctx, func(ctx context.Context, r client.Repositories) error {
		last, err := r.Metadata.GetInt64(ctx, keyLastStamp)
		if err != nil {
			return err
		}
		if next := lww.Observe(last, c.Timestamp); next != last {
			if err := r.Metadata.SetInt64(ctx, keyLastStamp, next); err != nil {
				return err
			}
		}

		cur, err := currentVersion(ctx, r, c.EntityType, c.ID)
		if err != nil {
			return err
		}
		if cur != nil && !lww.Newer(c.Version(), *cur) {
			return nil
		}

		if c.Op == proto.OpUpsert {
			if err := r.Records.Put(ctx, rec); err != nil {
				return err
			}
			if err := r.Records.RemoveTombstone(ctx, c.EntityType, c.ID); err != nil {
				return err
			}
		} else {
			if err := r.Records.Remove(ctx, c.EntityType, c.ID); err != nil {
				return err
			}
			if err := r.Records.PutTombstone(ctx, models.TombstoneFromChange(c)); err != nil {
				return err
			}
		}
		applied = true
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("apply %s: %w", c.Key(), err)
	}
	return applied, nil
}

func (s *recordService) RequeueAll(ctx context.Context) (int, error) {
	n := 0
	err := s.store.InTx(ctx, func(ctx context.Context, r client.Repositories) error {
		now := timex.Micros(s.now())
		var recs []models.Record

		lists, err := r.Records.Lists(ctx)
		if err != nil {
			return err
		}
		for _, l := range lists {
			recs = append(recs, l)
		}
		tags, err := r.Records.Tags(ctx)
		if err != nil {
			return err
		}
		for _, t := range tags {
			recs = append(recs, t)
		}
		tasks, err := r.Records.Tasks(ctx, "")
		if err != nil {
			return err
		}
		for _, t := range tasks {
			recs = append(recs, t)
		}
		links, err := r.Records.TaskTags(ctx)
		if err != nil {
			return err
		}
		for _, l := range links {
			recs = append(recs, l)
		}

		for _, rec := range recs {
			c, err := models.StoredChange(rec)
			if err != nil {
				return err
			}
			if _, err := r.Outbox.Append(ctx, c, now); err != nil {
				return err
			}
			n++
		}

		tombs, err := r.Records.Tombstones(ctx)
		if err != nil {
			return err
		}
		for _, t := range tombs {
			if _, err := r.Outbox.Append(ctx, t.Change(), now); err != nil {
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("requeue records: %w", err)
	}
	return n, nil
}
