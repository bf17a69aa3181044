// Package history stores encrypted entry snapshots.
package history

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/models"
)

type Repository interface {
	// Replace swaps the stored snapshots of entryID for items.
	Replace(ctx context.Context, entryID string, items []models.HistoryRecord) error
	// ListByEntry returns the snapshots of entryID ordered by Seq.
	ListByEntry(ctx context.Context, entryID string) ([]models.HistoryRecord, error)
}
