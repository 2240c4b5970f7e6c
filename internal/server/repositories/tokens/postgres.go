package tokens

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

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

func (r *PostgresRepository) Create(ctx context.Context, t *models.Token) error {
	query := `
		INSERT INTO tokens (id, account_id, digest, expires_at)
		VALUES ($1, $2, $3, $4)
	`
	var expires sql.NullTime
	if t.ExpiresAt != nil {
		expires = sql.NullTime{Time: *t.ExpiresAt, Valid: true}
	}
	if _, err := r.db.ExecContext(ctx, query, t.ID, t.AccountID, t.Digest, expires); err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id string) (*models.Token, error) {
	query := `
		SELECT id, account_id, digest, created_at, expires_at, revoked_at
		FROM tokens
		WHERE id = $1
	`
	var (
		t                models.Token
		expires, revoked sql.NullTime
	)
	err := r.db.QueryRowContext(ctx, query, id).
		Scan(&t.ID, &t.AccountID, &t.Digest, &t.CreatedAt, &expires, &revoked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	if expires.Valid {
		t.ExpiresAt = &expires.Time
	}
	if revoked.Valid {
		t.RevokedAt = &revoked.Time
	}
	return &t, nil
}

func (r *PostgresRepository) Revoke(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE tokens SET revoked_at = $2
		WHERE id = $1 AND revoked_at IS NULL
	`
	res, err := r.db.ExecContext(ctx, query, id, at)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	return dbx.ExpectOneRow(res, common.ErrorNotFound)
}
