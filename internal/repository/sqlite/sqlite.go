// Package sqlite implements repository.UserRepository using SQLite as the storage backend.
//
// WHY SQLITE?
// SQLite is an embedded database — it lives inside your Go binary as a single file.
// No separate database server to install, configure, or manage. It is the default
// backend (STORE_DRIVER=sqlite) because a faucet's user table is small and
// single-node.
//
// WHY modernc.org/sqlite INSTEAD OF github.com/mattn/go-sqlite3?
// mattn/go-sqlite3 uses CGo (calls C code from Go), which means you need a C compiler
// installed and cross-compilation becomes painful. modernc.org/sqlite is a pure Go
// translation of the SQLite C code — no C compiler needed, works everywhere Go works.
package sqlite

import (
	"database/sql"
	"fmt"
	"log/slog"

	// BLANK IMPORT:
	// The sqlite package's init() registers itself with database/sql as a
	// driver named "sqlite". After this import, sql.Open("sqlite", ...) works.
	_ "modernc.org/sqlite"
)

// DB wraps a sql.DB connection pool and provides repository methods.
type DB struct {
	conn   *sql.DB
	logger *slog.Logger
}

// New creates a new SQLite database connection and runs migrations.
//
// dbPath examples:
//   - "data/faucet.db"  → file-based database (persistent)
//   - ":memory:"        → in-memory database (great for tests, lost on close)
//
// SINGLE CONNECTION:
// The pool is capped at one open connection. SQLite allows only one writer at a
// time anyway, so this serializes upserts inside the process instead of
// surfacing SQLITE_BUSY to callers. It also keeps ":memory:" databases
// coherent, because every new connection to ":memory:" would otherwise get its
// own empty database.
func New(dbPath string, logger *slog.Logger) (*DB, error) {
	conn, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("sqlite: opening database: %w", err)
	}
	conn.SetMaxOpenConns(1)

	if err := conn.Ping(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: pinging database: %w", err)
	}

	// WAL (Write-Ahead Logging) lets readers proceed while a write is in progress.
	// In-memory databases report "memory" here, which is fine.
	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting WAL mode: %w", err)
	}

	if _, err := conn.Exec("PRAGMA busy_timeout=5000"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: setting busy timeout: %w", err)
	}

	db := &DB{conn: conn, logger: logger}

	if err := db.migrate(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("sqlite: running migrations: %w", err)
	}

	logger.Debug("sqlite user store ready", slog.String("path", dbPath))
	return db, nil
}

// Close closes the database connection pool.
func (db *DB) Close() error {
	return db.conn.Close()
}

// migrate runs all database migrations.
//
// CREATE TABLE IF NOT EXISTS is idempotent, and addColumnIfNotExists makes
// ALTER TABLE idempotent too, so this is safe to run on every start.
func (db *DB) migrate() error {
	// github_id is the primary key: one row per GitHub account. The
	// ON CONFLICT clause in Upsert depends on it.
	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS users (
			github_id  INTEGER NOT NULL PRIMARY KEY,
			login      TEXT NOT NULL,
			email      TEXT NOT NULL DEFAULT '',
			avatar_url TEXT NOT NULL DEFAULT '',
			created_at DATETIME NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_users_created_at ON users(created_at);
	`)
	if err != nil {
		return fmt.Errorf("creating users table: %w", err)
	}

	// Claim columns were added after the first release of the users table.
	if err := db.addColumnIfNotExists("users", "eth_address", "TEXT NOT NULL DEFAULT ''"); err != nil {
		return fmt.Errorf("adding eth_address to users: %w", err)
	}
	if err := db.addColumnIfNotExists("users", "last_claimed_at", "DATETIME"); err != nil {
		return fmt.Errorf("adding last_claimed_at to users: %w", err)
	}

	return nil
}

// addColumnIfNotExists adds a column to a table only if it doesn't already exist.
func (db *DB) addColumnIfNotExists(table, column, definition string) error {
	var count int
	err := db.conn.QueryRow(
		`SELECT COUNT(*) FROM pragma_table_info(?) WHERE name = ?`,
		table, column,
	).Scan(&count)
	if err != nil {
		return fmt.Errorf("checking column %s.%s: %w", table, column, err)
	}
	if count > 0 {
		return nil // column already exists
	}
	_, err = db.conn.Exec(fmt.Sprintf(
		`ALTER TABLE %s ADD COLUMN %s %s`, table, column, definition,
	))
	return err
}
