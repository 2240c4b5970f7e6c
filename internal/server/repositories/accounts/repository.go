// Package accounts persists accounts and their watermark counter.
package accounts

import (
	"context"

	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

type Repository interface {
	// GetOrCreate returns the account called name, creating it with id if
	// it does not exist yet.
	GetOrCreate(ctx context.Context, id, name string) (*models.Account, error)
	GetByID(ctx context.Context, id string) (*models.Account, error)
	// LockForUpdate locks the account row for the rest of the transaction
	// and returns its current sequence.
	LockForUpdate(ctx context.Context, id string) (int64, error)
	// IncrementCurrentSeq bumps the watermark counter and returns the new value.
	IncrementCurrentSeq(ctx context.Context, id string) (int64, error)
	List(ctx context.Context) ([]*models.Account, error)
}
