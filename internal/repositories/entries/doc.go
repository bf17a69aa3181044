// Package entries provides the persistence layer for vault entries.
//
// # Overview
//
// The package defines a Repository interface for upserting, listing and
// soft-deleting encrypted entry rows (see internal/models.Record). The SQL
// implementation (SQLRepository) runs over a dbx.DBTX, so the same value
// works against *sql.DB or inside a transaction, and speaks both the SQLite
// and PostgreSQL placeholder dialects.
//
// # Data Model
//
// Each row stores an encrypted overview (title and attachment count) and
// encrypted details (the full entry payload), each with its AEAD nonce, the
// modification time in Unix nanoseconds and a soft-delete flag.
//
// Typical Usage
//
//	repo := entries.NewSQLRepository(tx, dbx.DialectSQLite)
//	_ = repo.Upsert(ctx, rec)
//	all, _ := repo.GetAll(ctx)
//	one, _ := repo.GetByID(ctx, id)
//	_ = repo.DeleteByID(ctx, id)
package entries
