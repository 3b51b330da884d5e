// Package registry persists a write-mostly audit trail of Launcher lifecycle
// transitions, per SPEC_FULL §4.4 ("LaunchRegistry"). It wraps *sql.DB and is
// passed via dependency injection to anything that needs it; only the
// methods defined here are exposed to callers.
package registry

import (
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	_ "github.com/mattn/go-sqlite3"
)

// Registry wraps the sqlite connection backing LaunchRecord storage.
type Registry struct {
	connection *sql.DB
	logger     *slog.Logger
}

func (r *Registry) migrate() error {
	_, err := r.connection.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to execute launch registry schema migration: %w", err)
	}
	return nil
}

// schema is the DDL for the launch_records table. IF NOT EXISTS makes it
// safe to run on every startup; a single-table, append-mostly audit trail
// does not need a real migration framework.
const schema = `
CREATE TABLE IF NOT EXISTS launch_records (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    launcher_id TEXT NOT NULL,
    kind        TEXT NOT NULL,
    state       TEXT NOT NULL,
    start_data  TEXT,
    stop_data   TEXT,
    occurred_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);
CREATE INDEX IF NOT EXISTS idx_launch_records_kind ON launch_records(kind);
`

// Open opens the sqlite database at path, running schema migration, and
// returns a ready-to-use *Registry. The parent directory is created if
// absent.
func Open(path string, logger *slog.Logger) (*Registry, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create launch registry directory %q: %w", dir, err)
	}

	conn, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open launch registry database at %q: %w", path, err)
	}

	// SQLite does not support concurrent writers; one connection avoids
	// "database is locked" errors under the append-heavy write pattern here.
	conn.SetMaxOpenConns(1)

	reg := &Registry{connection: conn, logger: logger}
	if err := reg.migrate(); err != nil {
		return nil, fmt.Errorf("launch registry migration failed: %w", err)
	}

	logger.Info("launch registry opened and schema migrated", "path", path)
	return reg, nil
}

// Close releases the underlying connection pool.
func (r *Registry) Close() error {
	return r.connection.Close()
}
