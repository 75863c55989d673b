package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/healthlens/healthlens/internal/catalog"
)

type Repository struct {
	db *sql.DB
}

func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) HealthCheck(ctx context.Context) error {
	if err := r.db.PingContext(ctx); err != nil {
		return fmt.Errorf("ping catalog db: %w", err)
	}
	return nil
}

func (r *Repository) CreateSession(ctx context.Context, in catalog.CreateSessionInput) (catalog.Session, error) {
	query := `
INSERT INTO session (session_id, owner)
VALUES ($1, $2)
RETURNING created_at, last_seen_at`

	session := catalog.Session{SessionID: in.SessionID, Owner: in.Owner}
	if err := r.db.QueryRowContext(ctx, query, in.SessionID, in.Owner).Scan(&session.CreatedAt, &session.LastSeenAt); err != nil {
		return catalog.Session{}, fmt.Errorf("create session: %w", err)
	}
	return session, nil
}

func (r *Repository) GetSession(ctx context.Context, sessionID string) (catalog.Session, error) {
	query := `
SELECT session_id, owner, created_at, last_seen_at
FROM session
WHERE session_id = $1`

	var session catalog.Session
	if err := r.db.QueryRowContext(ctx, query, sessionID).Scan(
		&session.SessionID,
		&session.Owner,
		&session.CreatedAt,
		&session.LastSeenAt,
	); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Session{}, catalog.ErrNotFound
		}
		return catalog.Session{}, fmt.Errorf("get session: %w", err)
	}
	return session, nil
}

func (r *Repository) TouchSession(ctx context.Context, sessionID string) error {
	result, err := r.db.ExecContext(ctx, `
UPDATE session
SET last_seen_at = NOW()
WHERE session_id = $1`, sessionID)
	if err != nil {
		return fmt.Errorf("touch session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("touch session rows affected: %w", err)
	}
	if affected == 0 {
		return catalog.ErrNotFound
	}
	return nil
}

func (r *Repository) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM session
WHERE session_id = $1`, sessionID)
	if err != nil {
		return false, fmt.Errorf("delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete session rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) UpsertDataset(ctx context.Context, in catalog.UpsertDatasetInput) (catalog.Dataset, error) {
	schemaJSON := in.SchemaJSON
	if len(schemaJSON) == 0 {
		schemaJSON = []byte("[]")
	}

	query := `
INSERT INTO dataset (dataset_id, session_id, name, original_filename, format, row_count, column_count, content_hash, schema_json, archive_path)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9::jsonb, $10)
ON CONFLICT (session_id, name)
DO UPDATE SET
    dataset_id = EXCLUDED.dataset_id,
    original_filename = EXCLUDED.original_filename,
    format = EXCLUDED.format,
    row_count = EXCLUDED.row_count,
    column_count = EXCLUDED.column_count,
    content_hash = EXCLUDED.content_hash,
    schema_json = EXCLUDED.schema_json,
    archive_path = EXCLUDED.archive_path,
    updated_at = NOW()
RETURNING created_at, updated_at`

	dataset := catalog.Dataset{
		DatasetID:        in.DatasetID,
		SessionID:        in.SessionID,
		Name:             in.Name,
		OriginalFilename: in.OriginalFilename,
		Format:           in.Format,
		RowCount:         in.RowCount,
		ColumnCount:      in.ColumnCount,
		ContentHash:      in.ContentHash,
		SchemaJSON:       schemaJSON,
		ArchivePath:      in.ArchivePath,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.DatasetID, in.SessionID, in.Name, in.OriginalFilename, in.Format,
		in.RowCount, in.ColumnCount, in.ContentHash, string(schemaJSON), in.ArchivePath,
	).Scan(&dataset.CreatedAt, &dataset.UpdatedAt); err != nil {
		return catalog.Dataset{}, fmt.Errorf("upsert dataset: %w", err)
	}
	return dataset, nil
}

const datasetColumns = `dataset_id, session_id, name, original_filename, format, row_count, column_count, content_hash, schema_json, archive_path, created_at, updated_at`

func (r *Repository) GetDataset(ctx context.Context, sessionID, name string) (catalog.Dataset, error) {
	query := `
SELECT ` + datasetColumns + `
FROM dataset
WHERE session_id = $1 AND name = $2`

	dataset, err := scanDataset(r.db.QueryRowContext(ctx, query, sessionID, name))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return catalog.Dataset{}, catalog.ErrNotFound
		}
		return catalog.Dataset{}, fmt.Errorf("get dataset: %w", err)
	}
	return dataset, nil
}

func (r *Repository) ListDatasets(ctx context.Context, sessionID string) ([]catalog.Dataset, error) {
	query := `
SELECT ` + datasetColumns + `
FROM dataset
WHERE session_id = $1
ORDER BY name ASC`

	rows, err := r.db.QueryContext(ctx, query, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}
	defer func() { _ = rows.Close() }()

	datasets := make([]catalog.Dataset, 0)
	for rows.Next() {
		dataset, err := scanDataset(rows)
		if err != nil {
			return nil, fmt.Errorf("scan dataset row: %w", err)
		}
		datasets = append(datasets, dataset)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate dataset rows: %w", err)
	}
	return datasets, nil
}

func (r *Repository) DeleteDataset(ctx context.Context, sessionID, name string) (bool, error) {
	result, err := r.db.ExecContext(ctx, `
DELETE FROM dataset
WHERE session_id = $1 AND name = $2`, sessionID, name)
	if err != nil {
		return false, fmt.Errorf("delete dataset: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete dataset rows affected: %w", err)
	}
	return affected > 0, nil
}

func (r *Repository) CountDatasets(ctx context.Context, sessionID string) (int, error) {
	var count int
	if err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM dataset
WHERE session_id = $1`, sessionID).Scan(&count); err != nil {
		return 0, fmt.Errorf("count datasets: %w", err)
	}
	return count, nil
}

func (r *Repository) InsertQueryRecord(ctx context.Context, in catalog.InsertQueryRecordInput) (catalog.QueryRecord, error) {
	query := `
INSERT INTO query_history (session_id, dataset_name, question, sql_text, status, row_count, duration_ms, error_message)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
RETURNING query_id, created_at`

	record := catalog.QueryRecord{
		SessionID:    in.SessionID,
		DatasetName:  in.DatasetName,
		Question:     in.Question,
		SQL:          in.SQL,
		Status:       in.Status,
		RowCount:     in.RowCount,
		DurationMs:   in.DurationMs,
		ErrorMessage: in.ErrorMessage,
	}
	if err := r.db.QueryRowContext(ctx, query,
		in.SessionID, in.DatasetName, in.Question, in.SQL, in.Status,
		in.RowCount, in.DurationMs, in.ErrorMessage,
	).Scan(&record.QueryID, &record.CreatedAt); err != nil {
		return catalog.QueryRecord{}, fmt.Errorf("insert query record: %w", err)
	}
	return record, nil
}

func (r *Repository) ListQueryHistory(ctx context.Context, sessionID string, limit int) ([]catalog.QueryRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	query := `
SELECT query_id, session_id, dataset_name, question, sql_text, status, row_count, duration_ms, error_message, created_at
FROM query_history
WHERE session_id = $1
ORDER BY query_id DESC
LIMIT $2`

	rows, err := r.db.QueryContext(ctx, query, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("list query history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	records := make([]catalog.QueryRecord, 0)
	for rows.Next() {
		var record catalog.QueryRecord
		if err := rows.Scan(
			&record.QueryID,
			&record.SessionID,
			&record.DatasetName,
			&record.Question,
			&record.SQL,
			&record.Status,
			&record.RowCount,
			&record.DurationMs,
			&record.ErrorMessage,
			&record.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan query record: %w", err)
		}
		records = append(records, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate query records: %w", err)
	}
	return records, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDataset(row rowScanner) (catalog.Dataset, error) {
	var dataset catalog.Dataset
	if err := row.Scan(
		&dataset.DatasetID,
		&dataset.SessionID,
		&dataset.Name,
		&dataset.OriginalFilename,
		&dataset.Format,
		&dataset.RowCount,
		&dataset.ColumnCount,
		&dataset.ContentHash,
		&dataset.SchemaJSON,
		&dataset.ArchivePath,
		&dataset.CreatedAt,
		&dataset.UpdatedAt,
	); err != nil {
		return catalog.Dataset{}, err
	}
	return dataset, nil
}
