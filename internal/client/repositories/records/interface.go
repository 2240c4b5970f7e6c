// Package records stores lists, tags, tasks, task links and tombstones in
// the local SQLite database.
package records

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

type Repository interface {
	// Get returns the live record or common.ErrorNotFound.
	Get(ctx context.Context, kind proto.EntityType, id string) (models.Record, error)
	Put(ctx context.Context, r models.Record) error
	Remove(ctx context.Context, kind proto.EntityType, id string) error

	// Tombstone returns the tombstone or common.ErrorNotFound.
	Tombstone(ctx context.Context, kind proto.EntityType, id string) (*models.Tombstone, error)
	PutTombstone(ctx context.Context, t *models.Tombstone) error
	RemoveTombstone(ctx context.Context, kind proto.EntityType, id string) error
	Tombstones(ctx context.Context) ([]*models.Tombstone, error)

	Lists(ctx context.Context) ([]*models.List, error)
	Tags(ctx context.Context) ([]*models.Tag, error)
	// Tasks returns the tasks of one list, or all tasks when listID is empty.
	Tasks(ctx context.Context, listID string) ([]*models.Task, error)
	TaskTags(ctx context.Context) ([]*models.TaskTag, error)
	// LinksOfTask and LinksOfTag return the live links touching a task or tag.
	LinksOfTask(ctx context.Context, taskID string) ([]*models.TaskTag, error)
	LinksOfTag(ctx context.Context, tagID string) ([]*models.TaskTag, error)
}
