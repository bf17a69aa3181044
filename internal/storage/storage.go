// Package storage opens vault databases and keeps their schema current.
// SQLite (modernc.org/sqlite) is the default engine; PostgreSQL through the
// pgx stdlib driver is supported for shared vaults.
package storage

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/dmitrijs2005/gophvault/internal/dbx"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
	_ "modernc.org/sqlite"
)

//go:embed migrations/sqlite/*.sql migrations/postgres/*.sql
var migrations embed.FS

// Supported driver names.
const (
	DriverSQLite = "sqlite"
	DriverPgx    = "pgx"
)

var (
	ErrUnknownDriver     = errors.New("unknown database driver")
	ErrBackupUnsupported = errors.New("backup is not supported by this driver")
)

// gooseMu guards goose's package-level configuration.
var gooseMu sync.Mutex

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// DB is an open vault database.
type DB struct {
	Conn    *sql.DB
	Dialect dbx.Dialect
	// Location is the file path for SQLite and the DSN for PostgreSQL.
	Location string
}

// Open connects to the database and applies pending migrations.
func Open(ctx context.Context, driver, dsn string) (*DB, error) {
	var dialect dbx.Dialect
	switch driver {
	case DriverSQLite, "":
		driver, dialect = DriverSQLite, dbx.DialectSQLite
		if dir := filepath.Dir(dsn); dsn != ":memory:" && !strings.HasPrefix(dsn, "file:") {
			if err := os.MkdirAll(dir, 0o700); err != nil {
				return nil, fmt.Errorf("mkdir %s: %w", dir, err)
			}
		}
	case DriverPgx:
		dialect = dbx.DialectPostgres
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownDriver, driver)
	}

	conn, err := sql.Open(driver, sqliteDSN(driver, dsn))
	if err != nil {
		return nil, fmt.Errorf("db open error: %w", err)
	}
	if driver == DriverSQLite {
		// One writer at a time; also keeps :memory: databases on one connection.
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("db ping error: %w", err)
	}

	db := &DB{Conn: conn, Dialect: dialect, Location: dsn}
	if err := db.Migrate(ctx); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("migration error: %w", err)
	}
	return db, nil
}

func sqliteDSN(driver, dsn string) string {
	if driver != DriverSQLite || dsn == ":memory:" || strings.HasPrefix(dsn, "file:") {
		return dsn
	}
	return "file:" + dsn + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)"
}

// Migrate runs the embedded migrations for the database dialect.
func (d *DB) Migrate(ctx context.Context) error {
	dir := "migrations/sqlite"
	if d.Dialect == dbx.DialectPostgres {
		dir = "migrations/postgres"
	}

	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect(string(d.Dialect)); err != nil {
		return fmt.Errorf("failed to set goose dialect: %w", err)
	}
	return gooseUpContext(ctx, d.Conn, dir)
}

// Backup writes a consistent copy of a SQLite database to dst using
// VACUUM INTO. dst must not exist.
func (d *DB) Backup(ctx context.Context, dst string) error {
	if d.Dialect != dbx.DialectSQLite {
		return ErrBackupUnsupported
	}
	if _, err := d.Conn.ExecContext(ctx, `VACUUM INTO ?`, dst); err != nil {
		return fmt.Errorf("vacuum into %s: %w", dst, err)
	}
	return nil
}

// Close closes the connection pool.
func (d *DB) Close() error {
	return d.Conn.Close()
}
