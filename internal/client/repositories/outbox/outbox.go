// Package outbox keeps local changes until the server confirms them.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/client/models"
	"github.com/dmitrijs2005/tasksync/internal/dbx"
	"github.com/dmitrijs2005/tasksync/internal/proto"
)

type Repository interface {
	// Append stores c and returns its outbox sequence.
	Append(ctx context.Context, c proto.Change, createdAt int64) (int64, error)
	// ReadSince returns entries with seq > since in sequence order.
	ReadSince(ctx context.Context, since int64) ([]models.OutboxEntry, error)
	// PruneThrough deletes entries with seq <= seq.
	PruneThrough(ctx context.Context, seq int64) error
	Count(ctx context.Context) (int, error)
}

type SQLiteRepository struct {
	db dbx.DBTX
}

func NewSQLiteRepository(db dbx.DBTX) *SQLiteRepository {
	return &SQLiteRepository{db: db}
}

func (r *SQLiteRepository) Append(ctx context.Context, c proto.Change, createdAt int64) (int64, error) {
	data, err := json.Marshal(c)
	if err != nil {
		return 0, fmt.Errorf("failed to encode change %s: %w", c.Key(), err)
	}

	var seq int64
	err = r.db.QueryRowContext(ctx,
		`INSERT INTO outbox (change, created_at) VALUES (?, ?) RETURNING seq`, data, createdAt,
	).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("failed to append change %s: %w", c.Key(), err)
	}
	return seq, nil
}

func (r *SQLiteRepository) ReadSince(ctx context.Context, since int64) ([]models.OutboxEntry, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT seq, change, created_at FROM outbox WHERE seq > ? ORDER BY seq`, since)
	if err != nil {
		return nil, fmt.Errorf("failed to read outbox: %w", err)
	}
	defer rows.Close()

	var result []models.OutboxEntry
	for rows.Next() {
		var (
			e    models.OutboxEntry
			data []byte
		)
		if err := rows.Scan(&e.Seq, &data, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan outbox row: %w", err)
		}
		if err := json.Unmarshal(data, &e.Change); err != nil {
			return nil, fmt.Errorf("failed to decode outbox entry %d: %w", e.Seq, err)
		}
		result = append(result, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate outbox rows: %w", err)
	}
	return result, nil
}

func (r *SQLiteRepository) PruneThrough(ctx context.Context, seq int64) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM outbox WHERE seq <= ?`, seq); err != nil {
		return fmt.Errorf("failed to prune outbox: %w", err)
	}
	return nil
}

func (r *SQLiteRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM outbox`).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count outbox: %w", err)
	}
	return n, nil
}
