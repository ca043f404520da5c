// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go driver, so the binaries need no C
// toolchain. Each service owns one database file with its own schema:
// the user-service keeps identities, the auth-service keeps trust records.
// Schemas are versioned with goose; the SQL lives in migrations/ and is
// embedded into the binary.
//
// sql.DB is a connection pool, not a connection. With ":memory:" every new
// connection would see an empty database, so in-memory stores are pinned
// to a single connection.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/pressly/goose/v3"
	sqlitedrv "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

//go:embed migrations/identity/*.sql migrations/trust/*.sql
var migrations embed.FS

const memoryDSN = ":memory:"

// open creates the pool, applies pragmas and runs the migrations found in
// the dir subdirectory of migrations.
func open(ctx context.Context, dbPath, dir string) (*sql.DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == memoryDSN {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL lets readers proceed while a write is in progress.
	if _, err := conn.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}
	if _, err := conn.ExecContext(ctx, "PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	if err := migrate(ctx, conn, dir); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}
	return conn, nil
}

func migrate(ctx context.Context, conn *sql.DB, dir string) error {
	fsys, err := fs.Sub(migrations, "migrations/"+dir)
	if err != nil {
		return fmt.Errorf("locating %s migrations: %w", dir, err)
	}

	provider, err := goose.NewProvider(goose.DialectSQLite3, conn, fsys)
	if err != nil {
		return fmt.Errorf("creating migration provider: %w", err)
	}
	if _, err := provider.Up(ctx); err != nil {
		return fmt.Errorf("applying %s migrations: %w", dir, err)
	}
	return nil
}

// uniqueViolation reports whether err is a UNIQUE constraint failure and,
// if so, which column. The driver message reads
// "UNIQUE constraint failed: users.email (2067)".
func uniqueViolation(err error) (column string, ok bool) {
	var sqlErr *sqlitedrv.Error
	if !errors.As(err, &sqlErr) || sqlErr.Code() != sqlite3.SQLITE_CONSTRAINT_UNIQUE {
		return "", false
	}
	_, rest, found := strings.Cut(sqlErr.Error(), "UNIQUE constraint failed: ")
	if !found {
		return "", true
	}
	if fields := strings.Fields(rest); len(fields) > 0 {
		qualified := strings.TrimRight(fields[0], ",")
		if _, col, ok := strings.Cut(qualified, "."); ok {
			return col, true
		}
		return qualified, true
	}
	return "", true
}
