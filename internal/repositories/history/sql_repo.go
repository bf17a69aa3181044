package history

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/models"
)

type SQLRepository struct {
	db dbx.DBTX

	deleteQuery string
	insertQuery string
	listQuery   string
}

func NewSQLRepository(db dbx.DBTX, d dbx.Dialect) *SQLRepository {
	return &SQLRepository{
		db:          db,
		deleteQuery: dbx.Rebind(d, `DELETE FROM history WHERE entry_id = ?`),
		insertQuery: dbx.Rebind(d, `INSERT INTO history (entry_id, seq, payload, nonce, taken_at) VALUES (?, ?, ?, ?, ?)`),
		listQuery:   dbx.Rebind(d, `SELECT entry_id, seq, payload, nonce, taken_at FROM history WHERE entry_id = ? ORDER BY seq`),
	}
}

// Replace is not atomic on its own; run it inside dbx.WithTx.
func (r *SQLRepository) Replace(ctx context.Context, entryID string, items []models.HistoryRecord) error {
	if _, err := r.db.ExecContext(ctx, r.deleteQuery, entryID); err != nil {
		return fmt.Errorf("failed to clear history of %s: %w", entryID, err)
	}
	for _, h := range items {
		_, err := r.db.ExecContext(ctx, r.insertQuery, entryID, h.Seq, h.Payload, h.Nonce, h.TakenAt.UnixNano())
		if err != nil {
			return fmt.Errorf("failed to insert history %s/%d: %w", entryID, h.Seq, err)
		}
	}
	return nil
}

func (r *SQLRepository) ListByEntry(ctx context.Context, entryID string) ([]models.HistoryRecord, error) {
	rows, err := r.db.QueryContext(ctx, r.listQuery, entryID)
	if err != nil {
		return nil, fmt.Errorf("failed to select history: %w", err)
	}
	defer rows.Close()

	var result []models.HistoryRecord
	for rows.Next() {
		var (
			h     models.HistoryRecord
			taken int64
		)
		if err := rows.Scan(&h.EntryID, &h.Seq, &h.Payload, &h.Nonce, &taken); err != nil {
			return nil, fmt.Errorf("failed to scan history row: %w", err)
		}
		h.TakenAt = time.Unix(0, taken).UTC()
		result = append(result, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate history rows: %w", err)
	}
	return result, nil
}
