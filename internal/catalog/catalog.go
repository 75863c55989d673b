package catalog

import (
	"context"
	"errors"
	"time"
)

var ErrNotFound = errors.New("catalog: not found")

// Query history statuses. One row is written per chat or raw-SQL turn,
// successful or not.
const (
	QueryStatusOK                = "ok"
	QueryStatusNoData            = "no_data"
	QueryStatusUnsafe            = "unsafe"
	QueryStatusTranslationFailed = "translation_failed"
	QueryStatusExecutionFailed   = "execution_failed"
)

type Repository interface {
	HealthCheck(ctx context.Context) error
	CreateSession(ctx context.Context, in CreateSessionInput) (Session, error)
	GetSession(ctx context.Context, sessionID string) (Session, error)
	TouchSession(ctx context.Context, sessionID string) error
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	UpsertDataset(ctx context.Context, in UpsertDatasetInput) (Dataset, error)
	GetDataset(ctx context.Context, sessionID, name string) (Dataset, error)
	ListDatasets(ctx context.Context, sessionID string) ([]Dataset, error)
	DeleteDataset(ctx context.Context, sessionID, name string) (bool, error)
	CountDatasets(ctx context.Context, sessionID string) (int, error)
	InsertQueryRecord(ctx context.Context, in InsertQueryRecordInput) (QueryRecord, error)
	ListQueryHistory(ctx context.Context, sessionID string, limit int) ([]QueryRecord, error)
}

type Session struct {
	SessionID  string
	Owner      string
	CreatedAt  time.Time
	LastSeenAt time.Time
}

type Dataset struct {
	DatasetID        string
	SessionID        string
	Name             string
	OriginalFilename string
	Format           string
	RowCount         int64
	ColumnCount      int
	ContentHash      string
	SchemaJSON       []byte
	ArchivePath      string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

type QueryRecord struct {
	QueryID      int64
	SessionID    string
	DatasetName  string
	Question     string
	SQL          string
	Status       string
	RowCount     int64
	DurationMs   int64
	ErrorMessage string
	CreatedAt    time.Time
}

type CreateSessionInput struct {
	SessionID string
	Owner     string
}

// UpsertDatasetInput replaces any dataset with the same name in the same
// session, matching the session-scoped replacement semantics of uploads.
type UpsertDatasetInput struct {
	DatasetID        string
	SessionID        string
	Name             string
	OriginalFilename string
	Format           string
	RowCount         int64
	ColumnCount      int
	ContentHash      string
	SchemaJSON       []byte
	ArchivePath      string
}

type InsertQueryRecordInput struct {
	SessionID    string
	DatasetName  string
	Question     string
	SQL          string
	Status       string
	RowCount     int64
	DurationMs   int64
	ErrorMessage string
}
