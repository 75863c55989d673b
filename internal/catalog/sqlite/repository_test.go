package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/healthlens/healthlens/internal/catalog"
)

func newTestRepository(t *testing.T) *Repository {
	t.Helper()
	db, err := Open(context.Background(), filepath.Join(t.TempDir(), "catalog.db"))
	if err != nil {
		t.Fatalf("Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewRepository(db)
}

func TestSessionLifecycle(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()

	created, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1", Owner: "alice"})
	if err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if created.SessionID != "s1" || created.Owner != "alice" {
		t.Fatalf("created = %+v", created)
	}

	got, err := repo.GetSession(ctx, "s1")
	if err != nil {
		t.Fatalf("GetSession() error = %v", err)
	}
	if got.SessionID != "s1" {
		t.Fatalf("SessionID = %q", got.SessionID)
	}

	if err := repo.TouchSession(ctx, "s1"); err != nil {
		t.Fatalf("TouchSession() error = %v", err)
	}

	deleted, err := repo.DeleteSession(ctx, "s1")
	if err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}
	if !deleted {
		t.Fatal("expected session to be deleted")
	}
	if _, err := repo.GetSession(ctx, "s1"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("GetSession() after delete error = %v, want ErrNotFound", err)
	}
}

func TestTouchSessionMissing(t *testing.T) {
	repo := newTestRepository(t)
	if err := repo.TouchSession(context.Background(), "missing"); !errors.Is(err, catalog.ErrNotFound) {
		t.Fatalf("TouchSession() error = %v, want ErrNotFound", err)
	}
}

func TestUpsertDatasetReplacesExisting(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	first, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{
		DatasetID:        "d1",
		SessionID:        "s1",
		Name:             "patients",
		OriginalFilename: "patients.csv",
		Format:           "csv",
		RowCount:         10,
		ColumnCount:      3,
		ContentHash:      "abc",
		SchemaJSON:       []byte(`{"age":"BIGINT"}`),
	})
	if err != nil {
		t.Fatalf("UpsertDataset() error = %v", err)
	}
	if first.RowCount != 10 {
		t.Fatalf("RowCount = %d", first.RowCount)
	}

	second, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{
		DatasetID:   "d2",
		SessionID:   "s1",
		Name:        "patients",
		Format:      "parquet",
		RowCount:    25,
		ColumnCount: 4,
		ContentHash: "def",
		SchemaJSON:  []byte(`{"age":"BIGINT","bp":"BIGINT"}`),
	})
	if err != nil {
		t.Fatalf("UpsertDataset() replace error = %v", err)
	}
	if second.DatasetID != "d2" || second.RowCount != 25 || second.Format != "parquet" {
		t.Fatalf("replaced = %+v", second)
	}

	count, err := repo.CountDatasets(ctx, "s1")
	if err != nil {
		t.Fatalf("CountDatasets() error = %v", err)
	}
	if count != 1 {
		t.Fatalf("count = %d, want 1", count)
	}
}

func TestListDatasetsScopedToSession(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	for _, sessionID := range []string{"s1", "s2"} {
		if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: sessionID}); err != nil {
			t.Fatalf("CreateSession(%s) error = %v", sessionID, err)
		}
	}
	if _, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{DatasetID: "d1", SessionID: "s1", Name: "vitals", Format: "csv"}); err != nil {
		t.Fatalf("UpsertDataset() error = %v", err)
	}
	if _, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{DatasetID: "d2", SessionID: "s2", Name: "labs", Format: "csv"}); err != nil {
		t.Fatalf("UpsertDataset() error = %v", err)
	}

	datasets, err := repo.ListDatasets(ctx, "s1")
	if err != nil {
		t.Fatalf("ListDatasets() error = %v", err)
	}
	if len(datasets) != 1 || datasets[0].Name != "vitals" {
		t.Fatalf("datasets = %+v", datasets)
	}
}

func TestDeleteSessionCascadesDatasetsAndHistory(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	if _, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{DatasetID: "d1", SessionID: "s1", Name: "vitals", Format: "csv"}); err != nil {
		t.Fatalf("UpsertDataset() error = %v", err)
	}
	if _, err := repo.InsertQueryRecord(ctx, catalog.InsertQueryRecordInput{
		SessionID: "s1",
		Question:  "how many rows",
		SQL:       "SELECT COUNT(*) FROM vitals",
		Status:    catalog.QueryStatusOK,
	}); err != nil {
		t.Fatalf("InsertQueryRecord() error = %v", err)
	}

	if _, err := repo.DeleteSession(ctx, "s1"); err != nil {
		t.Fatalf("DeleteSession() error = %v", err)
	}

	count, err := repo.CountDatasets(ctx, "s1")
	if err != nil {
		t.Fatalf("CountDatasets() error = %v", err)
	}
	if count != 0 {
		t.Fatalf("datasets remaining = %d", count)
	}
	history, err := repo.ListQueryHistory(ctx, "s1", 10)
	if err != nil {
		t.Fatalf("ListQueryHistory() error = %v", err)
	}
	if len(history) != 0 {
		t.Fatalf("history remaining = %d", len(history))
	}
}

func TestQueryHistoryOrderAndLimit(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}
	questions := []string{"first", "second", "third"}
	for _, q := range questions {
		if _, err := repo.InsertQueryRecord(ctx, catalog.InsertQueryRecordInput{
			SessionID: "s1",
			Question:  q,
			Status:    catalog.QueryStatusOK,
		}); err != nil {
			t.Fatalf("InsertQueryRecord(%q) error = %v", q, err)
		}
	}

	records, err := repo.ListQueryHistory(ctx, "s1", 2)
	if err != nil {
		t.Fatalf("ListQueryHistory() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("len(records) = %d", len(records))
	}
	if records[0].Question != "third" || records[1].Question != "second" {
		t.Fatalf("records = %+v", records)
	}
}

func TestInsertQueryRecordKeepsFailureDetails(t *testing.T) {
	repo := newTestRepository(t)
	ctx := context.Background()
	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	record, err := repo.InsertQueryRecord(ctx, catalog.InsertQueryRecordInput{
		SessionID:    "s1",
		DatasetName:  "vitals",
		Question:     "drop everything",
		SQL:          "DROP TABLE vitals",
		Status:       catalog.QueryStatusUnsafe,
		ErrorMessage: "statement is not read-only",
	})
	if err != nil {
		t.Fatalf("InsertQueryRecord() error = %v", err)
	}
	if record.Status != catalog.QueryStatusUnsafe {
		t.Fatalf("Status = %q", record.Status)
	}
	if record.ErrorMessage == "" {
		t.Fatal("expected error message to be stored")
	}
}
