// Package sqlite implements the repository interfaces on SQLite.
//
// modernc.org/sqlite is a pure Go translation of SQLite, so the binary
// needs no C toolchain. The schema lives in migrations/*.sql, embedded in
// the binary and applied with goose when the database is opened.
//
// Uniqueness of (owner, slug) for recipes and groups is enforced by unique
// indexes; a violation surfaces as an apperror Conflict no matter which
// request won the race.
package sqlite

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"strings"
	"sync"

	"github.com/pressly/goose/v3"

	// Registers the "sqlite" database/sql driver.
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// goose keeps its FS and dialect in package globals.
var gooseMu sync.Mutex

const memoryPath = ":memory:"

// DB wraps a sql.DB connection pool and implements the User, Recipe and
// Group repositories.
type DB struct {
	conn *sql.DB
}

// New opens (creating if needed) the database at dbPath and migrates it to
// the latest schema.
//
// dbPath examples:
//   - "data/recipes.db" → file-based database (persistent)
//   - ":memory:"        → in-memory database (tests)
//
// SQLite applies PRAGMAs per connection. File databases get them through
// the DSN so every pooled connection is configured. An in-memory database
// exists only inside one connection, so the pool is pinned to a single
// connection and configured once.
func New(dbPath string) (*DB, error) {
	dsn := dbPath
	if dbPath != memoryPath {
		dsn = "file:" + dbPath + "?_pragma=foreign_keys(1)&_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	}

	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	if dbPath == memoryPath {
		conn.SetMaxOpenConns(1)
	}

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA foreign_keys=ON"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: enabling foreign keys: %w", err)
	}

	db := &DB{conn: conn}
	if err := db.migrate(context.Background()); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// Ping reports whether the database is reachable. Used by /health.
func (db *DB) Ping(ctx context.Context) error {
	return db.conn.PingContext(ctx)
}

func (db *DB) migrate(ctx context.Context) error {
	gooseMu.Lock()
	defer gooseMu.Unlock()

	goose.SetBaseFS(migrations)
	goose.SetLogger(goose.NopLogger())
	if err := goose.SetDialect("sqlite3"); err != nil {
		return fmt.Errorf("setting goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db.conn, "migrations"); err != nil {
		return fmt.Errorf("applying migrations: %w", err)
	}
	return nil
}

// placeholders returns "?, ?, ?" for n arguments.
func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?, ", n), ", ")
}
