// Package tokens persists issued bearer tokens so they can be looked up and
// revoked.
package tokens

import (
	"context"
	"time"

	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

type Repository interface {
	Create(ctx context.Context, token *models.Token) error
	GetByID(ctx context.Context, id string) (*models.Token, error)
	// Revoke marks an active token revoked. Unknown or already revoked
	// tokens yield common.ErrorNotFound.
	Revoke(ctx context.Context, id string, at time.Time) error
}
