package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/dbx"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) GetOrCreate(ctx context.Context, id, name string) (*models.Account, error) {
	query :=
		`INSERT INTO accounts (id, name)
		 VALUES ($1, $2)
		 ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
		 RETURNING id, name, current_seq, created_at
		 `

	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, id, name).Scan(&a.ID, &a.Name, &a.CurrentSeq, &a.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Account, error) {
	query :=
		`SELECT id, name, current_seq, created_at FROM accounts
		 WHERE id = $1
		 `

	a := &models.Account{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&a.ID, &a.Name, &a.CurrentSeq, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}

	return a, nil
}

func (r *PostgresRepository) LockForUpdate(ctx context.Context, id string) (int64, error) {
	query :=
		`SELECT current_seq FROM accounts
		 WHERE id = $1
		 FOR UPDATE
		 `

	var seq int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return seq, nil
}

func (r *PostgresRepository) IncrementCurrentSeq(ctx context.Context, id string) (int64, error) {
	query :=
		`UPDATE accounts SET current_seq = current_seq + 1
		 WHERE id = $1
		 RETURNING current_seq
		 `

	var seq int64
	err := r.db.QueryRowContext(ctx, query, id).Scan(&seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrorNotFound
		}
		return 0, fmt.Errorf("db error: %w", err)
	}

	return seq, nil
}

func (r *PostgresRepository) List(ctx context.Context) ([]*models.Account, error) {
	query := `SELECT id, name, current_seq, created_at FROM accounts ORDER BY name`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("db error: %w", err)
	}
	defer rows.Close()

	var result []*models.Account
	for rows.Next() {
		a := &models.Account{}
		if err := rows.Scan(&a.ID, &a.Name, &a.CurrentSeq, &a.CreatedAt); err != nil {
			return nil, err
		}
		result = append(result, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
