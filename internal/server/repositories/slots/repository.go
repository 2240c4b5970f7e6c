// Package slots persists, per account, the winning change for each record
// id together with the sequence at which it was installed.
package slots

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

type Repository interface {
	// Get returns common.ErrorNotFound when the account has no slot for id.
	Get(ctx context.Context, accountID string, entity proto.EntityType, id string) (*models.Slot, error)
	Upsert(ctx context.Context, slot *models.Slot) error
	// SelectSince returns slots with seq > since ordered by seq.
	SelectSince(ctx context.Context, accountID string, since int64) ([]*models.Slot, error)
}
