// Package sqlite provides SQLite-based storage implementations for egress services.
package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/fwojciec/egress"
	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// migrations are applied in order; PRAGMA user_version records how many
// have run.
var migrations = []string{
	`CREATE TABLE revisits (
		url TEXT PRIMARY KEY,
		etag TEXT NOT NULL DEFAULT '',
		last_modified TEXT NOT NULL DEFAULT '',
		last_seen TEXT NOT NULL,
		ttl_ms INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT NOT NULL DEFAULT ''
	)`,
	`CREATE INDEX idx_revisits_expires_at ON revisits(expires_at)`,
}

// DB represents a SQLite database connection.
type DB struct {
	db   *sql.DB
	path string
}

// NewDB creates a new DB instance with the given path.
// Use ":memory:" for an in-memory database.
func NewDB(path string) *DB {
	return &DB{path: path}
}

// Open opens the database connection and migrates the schema.
// Failures are EUNAVAILABLE.
func (db *DB) Open() error {
	conn, err := sql.Open("sqlite3", db.path)
	if err != nil {
		return egress.Wrapf(err, egress.EUNAVAILABLE, "sqlite: open %s", db.path)
	}

	// One writer at a time; a single connection also keeps :memory: alive.
	conn.SetMaxOpenConns(1)

	pragmas := []string{"PRAGMA busy_timeout = 5000"}
	// WAL is not supported for in-memory databases.
	if db.path != ":memory:" {
		pragmas = append(pragmas, "PRAGMA journal_mode = WAL")
	}
	for _, p := range pragmas {
		if _, err := conn.Exec(p); err != nil {
			conn.Close()
			return egress.Wrapf(err, egress.EUNAVAILABLE, "sqlite: %s", p)
		}
	}

	db.db = conn
	if err := db.migrate(); err != nil {
		conn.Close()
		db.db = nil
		return err
	}
	return nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	if db.db != nil {
		return db.db.Close()
	}
	return nil
}

// QueryRowContext executes a query that returns a single row.
func (db *DB) QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row {
	return db.db.QueryRowContext(ctx, query, args...)
}

// ExecContext executes a statement that doesn't return rows.
func (db *DB) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	return db.db.ExecContext(ctx, query, args...)
}

// SchemaVersion returns the number of applied migrations.
func (db *DB) SchemaVersion() (int, error) {
	var v int
	if err := db.db.QueryRow("PRAGMA user_version").Scan(&v); err != nil {
		return 0, egress.Wrapf(err, egress.EUNAVAILABLE, "sqlite: read schema version")
	}
	return v, nil
}

func (db *DB) migrate() error {
	version, err := db.SchemaVersion()
	if err != nil {
		return err
	}
	if version > len(migrations) {
		return egress.Errorf(egress.EINVALID, "sqlite: schema version %d is newer than this build (%d)", version, len(migrations))
	}

	for i := version; i < len(migrations); i++ {
		tx, err := db.db.Begin()
		if err != nil {
			return egress.Wrapf(err, egress.EUNAVAILABLE, "sqlite: begin migration %d", i+1)
		}
		if _, err := tx.Exec(migrations[i]); err != nil {
			_ = tx.Rollback()
			return egress.Wrapf(err, egress.EINTERNAL, "sqlite: migration %d", i+1)
		}
		// PRAGMA does not accept bound parameters.
		if _, err := tx.Exec(fmt.Sprintf("PRAGMA user_version = %d", i+1)); err != nil {
			_ = tx.Rollback()
			return egress.Wrapf(err, egress.EINTERNAL, "sqlite: record migration %d", i+1)
		}
		if err := tx.Commit(); err != nil {
			return egress.Wrapf(err, egress.EUNAVAILABLE, "sqlite: commit migration %d", i+1)
		}
	}
	return nil
}
