package entries

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/common"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

type SQLRepository struct {
	db dbx.DBTX

	upsertQuery  string
	getAllQuery  string
	getByIDQuery string
	deleteQuery  string
}

func NewSQLRepository(db dbx.DBTX, d dbx.Dialect) *SQLRepository {
	return &SQLRepository{
		db: db,
		upsertQuery: dbx.Rebind(d, `
			INSERT INTO entries (id, overview, nonce_overview, details, nonce_details, updated_at, deleted)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (id) DO UPDATE SET
				overview = excluded.overview,
				nonce_overview = excluded.nonce_overview,
				details = excluded.details,
				nonce_details = excluded.nonce_details,
				updated_at = excluded.updated_at,
				deleted = excluded.deleted
		`),
		getAllQuery: `
			SELECT id, overview, nonce_overview, details, nonce_details, updated_at
			FROM entries WHERE deleted = 0 ORDER BY id
		`,
		getByIDQuery: dbx.Rebind(d, `
			SELECT id, overview, nonce_overview, details, nonce_details, updated_at
			FROM entries WHERE deleted = 0 AND id = ?
		`),
		deleteQuery: dbx.Rebind(d, `UPDATE entries SET deleted = 1 WHERE id = ? AND deleted = 0`),
	}
}

func (r *SQLRepository) Upsert(ctx context.Context, rec *models.Record) error {
	deleted := 0
	if rec.Deleted {
		deleted = 1
	}

	_, err := r.db.ExecContext(ctx, r.upsertQuery,
		rec.ID, rec.Overview, rec.NonceOverview, rec.Details, rec.NonceDetails,
		rec.UpdatedAt.UnixNano(), deleted)
	if err != nil {
		return fmt.Errorf("failed to upsert entry: %w", err)
	}
	return nil
}

func (r *SQLRepository) GetAll(ctx context.Context) ([]models.Record, error) {
	rows, err := r.db.QueryContext(ctx, r.getAllQuery)
	if err != nil {
		return nil, fmt.Errorf("failed to select entries: %w", err)
	}
	defer rows.Close()

	var result []models.Record
	for rows.Next() {
		var (
			item    models.Record
			updated int64
		)
		err := rows.Scan(&item.ID, &item.Overview, &item.NonceOverview, &item.Details, &item.NonceDetails, &updated)
		if err != nil {
			return nil, fmt.Errorf("failed to scan entry row: %w", err)
		}
		item.UpdatedAt = time.Unix(0, updated).UTC()
		result = append(result, item)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate entry rows: %w", err)
	}

	return result, nil
}

func (r *SQLRepository) GetByID(ctx context.Context, id string) (*models.Record, error) {
	var (
		rec     models.Record
		updated int64
	)
	err := r.db.QueryRowContext(ctx, r.getByIDQuery, id).
		Scan(&rec.ID, &rec.Overview, &rec.NonceOverview, &rec.Details, &rec.NonceDetails, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrorNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get entry %s: %w", id, err)
	}
	rec.UpdatedAt = time.Unix(0, updated).UTC()
	return &rec, nil
}

func (r *SQLRepository) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.deleteQuery, id)
	if err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}

	if rowsAffected != 1 {
		return common.ErrorNotFound
	}

	return nil
}
