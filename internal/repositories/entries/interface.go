package entries

import (
	"context"

	"github.com/dmitrijs2005/gophvault/internal/models"
)

// Repository describes storage operations for encrypted entry rows.
type Repository interface {
	// Upsert inserts rec or replaces the stored row with the same ID.
	Upsert(ctx context.Context, rec *models.Record) error

	// GetAll returns every entry that is not deleted, ordered by ID.
	GetAll(ctx context.Context) ([]models.Record, error)

	// GetByID returns one entry or common.ErrorNotFound.
	GetByID(ctx context.Context, id string) (*models.Record, error)

	// DeleteByID marks the entry as deleted.
	DeleteByID(ctx context.Context, id string) error
}
