package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

const schema = `
CREATE TABLE IF NOT EXISTS session (
    session_id   TEXT PRIMARY KEY,
    owner        TEXT NOT NULL DEFAULT '',
    created_at   TEXT NOT NULL,
    last_seen_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS dataset (
    dataset_id        TEXT NOT NULL,
    session_id        TEXT NOT NULL REFERENCES session(session_id) ON DELETE CASCADE,
    name              TEXT NOT NULL,
    original_filename TEXT NOT NULL DEFAULT '',
    format            TEXT NOT NULL,
    row_count         INTEGER NOT NULL DEFAULT 0,
    column_count      INTEGER NOT NULL DEFAULT 0,
    content_hash      TEXT NOT NULL DEFAULT '',
    schema_json       TEXT NOT NULL DEFAULT '[]',
    archive_path      TEXT NOT NULL DEFAULT '',
    created_at        TEXT NOT NULL,
    updated_at        TEXT NOT NULL,
    PRIMARY KEY (session_id, name)
);

CREATE TABLE IF NOT EXISTS query_history (
    query_id      INTEGER PRIMARY KEY AUTOINCREMENT,
    session_id    TEXT NOT NULL REFERENCES session(session_id) ON DELETE CASCADE,
    dataset_name  TEXT NOT NULL DEFAULT '',
    question      TEXT NOT NULL,
    sql_text      TEXT NOT NULL DEFAULT '',
    status        TEXT NOT NULL,
    row_count     INTEGER NOT NULL DEFAULT 0,
    duration_ms   INTEGER NOT NULL DEFAULT 0,
    error_message TEXT NOT NULL DEFAULT '',
    created_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_query_history_session ON query_history(session_id, created_at);
`

// Open opens (or creates) the catalog database at path and bootstraps the
// schema. An empty path yields an in-memory catalog that lives for the
// process only.
func Open(ctx context.Context, path string) (*sql.DB, error) {
	dsn := "file:" + path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)&_pragma=foreign_keys(ON)"
	memory := path == ""
	if memory {
		dsn = "file::memory:?_pragma=foreign_keys(ON)"
	} else if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create catalog dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("open catalog db: %w", err)
	}
	if memory {
		// A pooled second connection would see a different empty database.
		db.SetMaxOpenConns(1)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping catalog db: %w", err)
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate catalog db: %w", err)
	}
	return db, nil
}
