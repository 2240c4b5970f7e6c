package records

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/dbx"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

const (
	listColumns    = `id, name, description, icon, color, is_inbox, sort_order, created_at, updated_at, origin, payload`
	tagColumns     = `id, name, color, created_at, updated_at, origin, payload`
	taskColumns    = `id, title, description, url, priority, completed, list_id, created_at, updated_at, completed_at, due_date, origin, payload`
	taskTagColumns = `id, task_id, tag_id, updated_at, origin, payload`
)

// table maps an entity type to its table. The switch is exhaustive over
// proto.EntityTypes.
func table(kind proto.EntityType) (string, error) {
	switch kind {
	case proto.EntityList:
		return "lists", nil
	case proto.EntityTag:
		return "tags", nil
	case proto.EntityTask:
		return "tasks", nil
	case proto.EntityTaskTag:
		return "task_tags", nil
	default:
		return "", fmt.Errorf("%w: unknown entity type %q", common.ErrInvalidChange, kind)
	}
}

// payloadArg stores a missing payload as NULL so that it reads back as nil.
func payloadArg(p json.RawMessage) any {
	if len(p) == 0 {
		return nil
	}
	return []byte(p)
}

type scanner interface {
	Scan(dest ...any) error
}

func scanList(s scanner) (*models.List, error) {
	var l models.List
	err := s.Scan(&l.ID, &l.Name, &l.Description, &l.Icon, &l.Color, &l.IsInbox, &l.SortOrder, &l.CreatedAt, &l.UpdatedAt, &l.Origin, (*[]byte)(&l.Payload))
	return &l, err
}

func scanTag(s scanner) (*models.Tag, error) {
	var g models.Tag
	err := s.Scan(&g.ID, &g.Name, &g.Color, &g.CreatedAt, &g.UpdatedAt, &g.Origin, (*[]byte)(&g.Payload))
	return &g, err
}

func scanTask(s scanner) (*models.Task, error) {
	var t models.Task
	err := s.Scan(&t.ID, &t.Title, &t.Description, &t.URL, &t.Priority, &t.Completed, &t.ListID,
		&t.CreatedAt, &t.UpdatedAt, &t.CompletedAt, &t.DueDate, &t.Origin, (*[]byte)(&t.Payload))
	return &t, err
}

func scanTaskTag(s scanner) (*models.TaskTag, error) {
	var tt models.TaskTag
	err := s.Scan(&tt.ID, &tt.TaskID, &tt.TagID, &tt.UpdatedAt, &tt.Origin, (*[]byte)(&tt.Payload))
	return &tt, err
}

func (r *SQLiteRepository) Get(ctx context.Context, kind proto.EntityType, id string) (models.Record, error) {
	var (
		rec models.Record
		err error
	)

	switch kind {
	case proto.EntityList:
		rec, err = scanList(r.db.QueryRowContext(ctx, `SELECT `+listColumns+` FROM lists WHERE id = ?`, id))
	case proto.EntityTag:
		rec, err = scanTag(r.db.QueryRowContext(ctx, `SELECT `+tagColumns+` FROM tags WHERE id = ?`, id))
	case proto.EntityTask:
		rec, err = scanTask(r.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id))
	case proto.EntityTaskTag:
		rec, err = scanTaskTag(r.db.QueryRowContext(ctx, `SELECT `+taskTagColumns+` FROM task_tags WHERE id = ?`, id))
	default:
		return nil, fmt.Errorf("%w: unknown entity type %q", common.ErrInvalidChange, kind)
	}

	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get %s %s: %w", kind, id, err)
	}
	return rec, nil
}

func (r *SQLiteRepository) Put(ctx context.Context, rec models.Record) error {
	var err error

	switch v := rec.(type) {
	case *models.List:
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO lists (`+listColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, description = excluded.description, icon = excluded.icon,
				color = excluded.color, is_inbox = excluded.is_inbox, sort_order = excluded.sort_order,
				created_at = excluded.created_at, updated_at = excluded.updated_at, origin = excluded.origin,
				payload = excluded.payload
		`, v.ID, v.Name, v.Description, v.Icon, v.Color, v.IsInbox, v.SortOrder, v.CreatedAt, v.UpdatedAt, v.Origin, payloadArg(v.Payload))
	case *models.Tag:
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO tags (`+tagColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				name = excluded.name, color = excluded.color, created_at = excluded.created_at,
				updated_at = excluded.updated_at, origin = excluded.origin, payload = excluded.payload
		`, v.ID, v.Name, v.Color, v.CreatedAt, v.UpdatedAt, v.Origin, payloadArg(v.Payload))
	case *models.Task:
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				title = excluded.title, description = excluded.description, url = excluded.url,
				priority = excluded.priority, completed = excluded.completed, list_id = excluded.list_id,
				created_at = excluded.created_at, updated_at = excluded.updated_at,
				completed_at = excluded.completed_at, due_date = excluded.due_date, origin = excluded.origin,
				payload = excluded.payload
		`, v.ID, v.Title, v.Description, v.URL, string(v.Priority), v.Completed, v.ListID,
			v.CreatedAt, v.UpdatedAt, v.CompletedAt, v.DueDate, v.Origin, payloadArg(v.Payload))
	case *models.TaskTag:
		_, err = r.db.ExecContext(ctx, `
			INSERT INTO task_tags (`+taskTagColumns+`) VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				task_id = excluded.task_id, tag_id = excluded.tag_id,
				updated_at = excluded.updated_at, origin = excluded.origin, payload = excluded.payload
		`, v.ID, v.TaskID, v.TagID, v.UpdatedAt, v.Origin, payloadArg(v.Payload))
	default:
		return fmt.Errorf("unsupported record %T", rec)
	}

	if err != nil {
		return fmt.Errorf("failed to store %s %s: %w", rec.Kind(), rec.Header().ID, err)
	}
	return nil
}

func (r *SQLiteRepository) Remove(ctx context.Context, kind proto.EntityType, id string) error {
	t, err := table(kind)
	if err != nil {
		return err
	}
	if _, err := r.db.ExecContext(ctx, `DELETE FROM `+t+` WHERE id = ?`, id); err != nil {
		return fmt.Errorf("failed to remove %s %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Tombstone(ctx context.Context, kind proto.EntityType, id string) (*models.Tombstone, error) {
	ts := models.Tombstone{EntityType: kind, ID: id}
	err := r.db.QueryRowContext(ctx,
		`SELECT deleted_at, origin FROM tombstones WHERE entity_type = ? AND id = ?`, string(kind), id,
	).Scan(&ts.DeletedAt, &ts.Origin)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get tombstone %s %s: %w", kind, id, err)
	}
	return &ts, nil
}

func (r *SQLiteRepository) PutTombstone(ctx context.Context, t *models.Tombstone) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO tombstones (entity_type, id, deleted_at, origin) VALUES (?, ?, ?, ?)
		ON CONFLICT(entity_type, id) DO UPDATE SET deleted_at = excluded.deleted_at, origin = excluded.origin
	`, string(t.EntityType), t.ID, t.DeletedAt, t.Origin)
	if err != nil {
		return fmt.Errorf("failed to store tombstone %s %s: %w", t.EntityType, t.ID, err)
	}
	return nil
}

func (r *SQLiteRepository) RemoveTombstone(ctx context.Context, kind proto.EntityType, id string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM tombstones WHERE entity_type = ? AND id = ?`, string(kind), id)
	if err != nil {
		return fmt.Errorf("failed to remove tombstone %s %s: %w", kind, id, err)
	}
	return nil
}

func (r *SQLiteRepository) Tombstones(ctx context.Context) ([]*models.Tombstone, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT entity_type, id, deleted_at, origin FROM tombstones ORDER BY entity_type, id`)
	if err != nil {
		return nil, fmt.Errorf("failed to select tombstones: %w", err)
	}
	defer rows.Close()

	var result []*models.Tombstone
	for rows.Next() {
		var t models.Tombstone
		if err := rows.Scan(&t.EntityType, &t.ID, &t.DeletedAt, &t.Origin); err != nil {
			return nil, err
		}
		result = append(result, &t)
	}
	return result, rows.Err()
}

// collect runs query and scans every row with scan.
func collect[T any](ctx context.Context, db dbx.DBTX, scan func(scanner) (T, error), query string, args ...any) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to select: %w", err)
	}
	defer rows.Close()

	var result []T
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, item)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (r *SQLiteRepository) Lists(ctx context.Context) ([]*models.List, error) {
	return collect(ctx, r.db, scanList, `SELECT `+listColumns+` FROM lists ORDER BY is_inbox DESC, sort_order, name, id`)
}

func (r *SQLiteRepository) Tags(ctx context.Context) ([]*models.Tag, error) {
	return collect(ctx, r.db, scanTag, `SELECT `+tagColumns+` FROM tags ORDER BY name, id`)
}

func (r *SQLiteRepository) Tasks(ctx context.Context, listID string) ([]*models.Task, error) {
	if listID == "" {
		return collect(ctx, r.db, scanTask, `SELECT `+taskColumns+` FROM tasks ORDER BY completed, created_at, id`)
	}
	return collect(ctx, r.db, scanTask, `SELECT `+taskColumns+` FROM tasks WHERE list_id = ? ORDER BY completed, created_at, id`, listID)
}

func (r *SQLiteRepository) TaskTags(ctx context.Context) ([]*models.TaskTag, error) {
	return collect(ctx, r.db, scanTaskTag, `SELECT `+taskTagColumns+` FROM task_tags ORDER BY id`)
}

func (r *SQLiteRepository) LinksOfTask(ctx context.Context, taskID string) ([]*models.TaskTag, error) {
	return collect(ctx, r.db, scanTaskTag, `SELECT `+taskTagColumns+` FROM task_tags WHERE task_id = ? ORDER BY id`, taskID)
}

func (r *SQLiteRepository) LinksOfTag(ctx context.Context, tagID string) ([]*models.TaskTag, error) {
	return collect(ctx, r.db, scanTaskTag, `SELECT `+taskTagColumns+` FROM task_tags WHERE tag_id = ? ORDER BY id`, tagID)
}
