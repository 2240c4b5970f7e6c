package slots

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/tasksync/internal/common"
	"github.com/dmitrijs2005/tasksync/internal/dbx"
	"github.com/dmitrijs2005/tasksync/internal/proto"
	"github.com/dmitrijs2005/tasksync/internal/server/models"
)

// PostgresRepository implements slot storage over a dbx.DBTX (*sql.DB or *sql.Tx).
type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, accountID string, entity proto.EntityType, id string) (*models.Slot, error) {
	query := `
		SELECT op, ts, origin, record, seq FROM slots
		WHERE account_id = $1 AND entity_type = $2 AND id = $3
	`
	s := &models.Slot{AccountID: accountID, EntityType: entity, ID: id}
	err := r.db.QueryRowContext(ctx, query, accountID, string(entity), id).
		Scan(&s.Op, &s.Timestamp, &s.Origin, &s.Record, &s.Seq)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrorNotFound
		}
		return nil, fmt.Errorf("db error: %w", err)
	}
	return s, nil
}

// Upsert installs slot. The caller has already decided, under the account
// lock, that slot wins over whatever is stored.
func (r *PostgresRepository) Upsert(ctx context.Context, s *models.Slot) error {
	query := `
		INSERT INTO slots (account_id, entity_type, id, op, ts, origin, record, seq)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (account_id, entity_type, id)
		DO UPDATE SET
			op = EXCLUDED.op,
			ts = EXCLUDED.ts,
			origin = EXCLUDED.origin,
			record = EXCLUDED.record,
			seq = EXCLUDED.seq
	`
	res, err := r.db.ExecContext(ctx, query,
		s.AccountID, string(s.EntityType), s.ID, string(s.Op), s.Timestamp, s.Origin, s.Record, s.Seq)
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected error: %w", err)
	}
	if n != 1 {
		return fmt.Errorf("unexpected rows affected: %d", n)
	}
	return nil
}

func (r *PostgresRepository) SelectSince(ctx context.Context, accountID string, since int64) ([]*models.Slot, error) {
	query := `
		SELECT entity_type, id, op, ts, origin, record, seq FROM slots
		WHERE account_id = $1 AND seq > $2
		ORDER BY seq, entity_type, id
	`
	rows, err := r.db.QueryContext(ctx, query, accountID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to select slots: %w", err)
	}
	defer rows.Close()

	var result []*models.Slot
	for rows.Next() {
		s := &models.Slot{AccountID: accountID}
		if err := rows.Scan(&s.EntityType, &s.ID, &s.Op, &s.Timestamp, &s.Origin, &s.Record, &s.Seq); err != nil {
			return nil, err
		}
		result = append(result, s)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
