package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/gophvault/internal/dbx"
	"github.com/dmitrijs2005/gophvault/internal/models"
	"github.com/dmitrijs2005/gophvault/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupRepo(t *testing.T) *SQLRepository {
	t.Helper()
	ctx := context.Background()
	db, err := storage.Open(ctx, storage.DriverSQLite, ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = db.Conn.ExecContext(ctx, `
		INSERT INTO entries (id, overview, nonce_overview, details, nonce_details)
		VALUES ('e1', x'00', x'00', x'00', x'00'), ('e2', x'00', x'00', x'00', x'00')`)
	require.NoError(t, err)

	return NewSQLRepository(db.Conn, db.Dialect)
}

func snap(seq int, payload string) models.HistoryRecord {
	return models.HistoryRecord{
		EntryID: "e1",
		Seq:     seq,
		Payload: []byte(payload),
		Nonce:   []byte("n"),
		TakenAt: time.Date(2024, 3, 1, 0, 0, seq, 0, time.UTC),
	}
}

func TestReplaceAndList(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Replace(ctx, "e1", []models.HistoryRecord{snap(1, "b"), snap(0, "a")}))
	require.NoError(t, r.Replace(ctx, "e2", []models.HistoryRecord{{EntryID: "e2", Payload: []byte("x"), Nonce: []byte("n")}}))

	got, err := r.ListByEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []models.HistoryRecord{snap(0, "a"), snap(1, "b")}, got)

	require.NoError(t, r.Replace(ctx, "e1", []models.HistoryRecord{snap(0, "c")}))
	got, err = r.ListByEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Equal(t, []models.HistoryRecord{snap(0, "c")}, got)

	other, err := r.ListByEntry(ctx, "e2")
	require.NoError(t, err)
	assert.Len(t, other, 1, "other entries are untouched")
}

func TestReplace_EmptyClears(t *testing.T) {
	r := setupRepo(t)
	ctx := context.Background()

	require.NoError(t, r.Replace(ctx, "e1", []models.HistoryRecord{snap(0, "a")}))
	require.NoError(t, r.Replace(ctx, "e1", nil))

	got, err := r.ListByEntry(ctx, "e1")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestReplace_DuplicateSeqFails(t *testing.T) {
	r := setupRepo(t)
	err := r.Replace(context.Background(), "e1", []models.HistoryRecord{snap(0, "a"), snap(0, "b")})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to insert history e1/0")
}

func TestDBErrors(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()
	r := NewSQLRepository(db, dbx.DialectPostgres)
	boom := errors.New("db down")

	mock.ExpectExec(`DELETE FROM history WHERE entry_id = \$1`).WithArgs("e1").WillReturnError(boom)
	assert.ErrorIs(t, r.Replace(context.Background(), "e1", nil), boom)

	mock.ExpectQuery(`SELECT entry_id, seq`).WithArgs("e1").WillReturnError(boom)
	_, err = r.ListByEntry(context.Background(), "e1")
	assert.ErrorIs(t, err, boom)

	require.NoError(t, mock.ExpectationsWereMet())
}
