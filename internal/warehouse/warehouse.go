// Package warehouse manages the per-session DuckDB databases that hold
// uploaded datasets. Every session gets its own database handle, so a query
// can never observe another session's tables.
package warehouse

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "github.com/marcboeker/go-duckdb/v2"
)

type Column struct {
	Name string
	Type string
}

type Store struct {
	dataDir string

	mu       sync.Mutex
	sessions map[string]*sql.DB
}

// NewStore creates a warehouse rooted at dataDir. An empty dataDir keeps
// every session database in memory.
func NewStore(dataDir string) *Store {
	return &Store{
		dataDir:  dataDir,
		sessions: make(map[string]*sql.DB),
	}
}

// SessionDB returns the DuckDB handle for a session, opening it on first use.
func (s *Store) SessionDB(sessionID string) (*sql.DB, error) {
	if sessionID == "" {
		return nil, fmt.Errorf("session id is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if db, ok := s.sessions[sessionID]; ok {
		return db, nil
	}

	dsn := ""
	if s.dataDir != "" {
		if err := os.MkdirAll(s.dataDir, 0o755); err != nil {
			return nil, fmt.Errorf("create warehouse dir: %w", err)
		}
		dsn = filepath.Join(s.dataDir, sanitizeFileComponent(sessionID)+".duckdb")
	}

	db, err := sql.Open("duckdb", dsn)
	if err != nil {
		return nil, fmt.Errorf("open session warehouse: %w", err)
	}
	s.sessions[sessionID] = db
	return db, nil
}

// CreateDataset replaces the named table in the session database with the
// given columns and rows.
func (s *Store) CreateDataset(ctx context.Context, sessionID, name string, columns []Column, rows [][]any) error {
	if len(columns) == 0 {
		return fmt.Errorf("dataset %q has no columns", name)
	}

	db, err := s.SessionDB(sessionID)
	if err != nil {
		return err
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin dataset tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop existing table %q: %w", name, err)
	}

	columnDefs := make([]string, 0, len(columns))
	for _, column := range columns {
		columnDefs = append(columnDefs, quoteIdent(column.Name)+" "+column.Type)
	}
	createSQL := fmt.Sprintf(`CREATE TABLE %s (%s)`, quoteIdent(name), strings.Join(columnDefs, ", "))
	if _, err := tx.ExecContext(ctx, createSQL); err != nil {
		return fmt.Errorf("create table %q: %w", name, err)
	}

	if len(rows) > 0 {
		placeholders := make([]string, len(columns))
		for i := range placeholders {
			placeholders[i] = "?"
		}
		insertSQL := fmt.Sprintf(`INSERT INTO %s VALUES (%s)`, quoteIdent(name), strings.Join(placeholders, ", "))
		stmt, err := tx.PrepareContext(ctx, insertSQL)
		if err != nil {
			return fmt.Errorf("prepare insert for table %q: %w", name, err)
		}
		defer func() { _ = stmt.Close() }()

		for i, row := range rows {
			if len(row) != len(columns) {
				return fmt.Errorf("row %d of table %q has %d values, want %d", i, name, len(row), len(columns))
			}
			if _, err := stmt.ExecContext(ctx, row...); err != nil {
				return fmt.Errorf("insert row %d into table %q: %w", i, name, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit dataset tx: %w", err)
	}
	return nil
}

// Sample returns up to limit rows from a session table, preserving column
// order, for schema previews and prompt examples.
func (s *Store) Sample(ctx context.Context, sessionID, name string, limit int) ([]string, [][]any, error) {
	if limit <= 0 {
		limit = 3
	}
	db, err := s.SessionDB(sessionID)
	if err != nil {
		return nil, nil, err
	}

	query := fmt.Sprintf(`SELECT * FROM %s LIMIT %d`, quoteIdent(name), limit)
	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, nil, fmt.Errorf("sample table %q: %w", name, err)
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return nil, nil, fmt.Errorf("sample columns: %w", err)
	}

	sampled := make([][]any, 0, limit)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return nil, nil, fmt.Errorf("scan sample row: %w", err)
		}
		sampled = append(sampled, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate sample rows: %w", err)
	}
	return columns, sampled, nil
}

// DropDataset removes the named table from the session database.
func (s *Store) DropDataset(ctx context.Context, sessionID, name string) error {
	db, err := s.SessionDB(sessionID)
	if err != nil {
		return err
	}
	if _, err := db.ExecContext(ctx, `DROP TABLE IF EXISTS `+quoteIdent(name)); err != nil {
		return fmt.Errorf("drop table %q: %w", name, err)
	}
	return nil
}

// DropSession closes the session database and deletes its file.
func (s *Store) DropSession(sessionID string) error {
	s.mu.Lock()
	db, ok := s.sessions[sessionID]
	if ok {
		delete(s.sessions, sessionID)
	}
	s.mu.Unlock()

	if ok {
		if err := db.Close(); err != nil {
			return fmt.Errorf("close session warehouse: %w", err)
		}
	}
	if s.dataDir != "" {
		path := filepath.Join(s.dataDir, sanitizeFileComponent(sessionID)+".duckdb")
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("remove session warehouse file: %w", err)
		}
	}
	return nil
}

// HealthCheck verifies that a DuckDB database can be opened and queried.
func (s *Store) HealthCheck(ctx context.Context) error {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return fmt.Errorf("open warehouse probe: %w", err)
	}
	defer func() { _ = db.Close() }()
	if err := db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping warehouse probe: %w", err)
	}
	return nil
}

// Close shuts down every open session database.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var firstErr error
	for sessionID, db := range s.sessions {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("close session %q warehouse: %w", sessionID, err)
		}
		delete(s.sessions, sessionID)
	}
	return firstErr
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}

func quoteIdent(value string) string {
	return `"` + strings.ReplaceAll(value, `"`, `""`) + `"`
}

func sanitizeFileComponent(value string) string {
	value = strings.ReplaceAll(value, "/", "_")
	value = strings.ReplaceAll(value, "..", "_")
	if value == "" {
		return "session"
	}
	return value
}
