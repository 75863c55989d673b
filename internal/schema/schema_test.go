package schema

import (
	"context"
	"testing"

	"github.com/healthlens/healthlens/internal/catalog"
	csqlite "github.com/healthlens/healthlens/internal/catalog/sqlite"
	"github.com/healthlens/healthlens/internal/warehouse"
)

func newFixture(t *testing.T) (catalog.Repository, *warehouse.Store) {
	t.Helper()
	db, err := csqlite.Open(context.Background(), "")
	if err != nil {
		t.Fatalf("sqlite.Open() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	store := warehouse.NewStore("")
	t.Cleanup(func() { _ = store.Close() })
	return csqlite.NewRepository(db), store
}

func TestDescribeReturnsColumnsAndSamples(t *testing.T) {
	repo, store := newFixture(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	columns := []Column{
		{Name: "patient_id", Type: "BIGINT"},
		{Name: "condition", Type: "VARCHAR"},
	}
	schemaJSON, err := EncodeColumns(columns)
	if err != nil {
		t.Fatalf("EncodeColumns() error = %v", err)
	}
	if _, err := repo.UpsertDataset(ctx, catalog.UpsertDatasetInput{
		DatasetID:   "d1",
		SessionID:   "s1",
		Name:        "patients",
		Format:      "csv",
		RowCount:    2,
		ColumnCount: 2,
		SchemaJSON:  schemaJSON,
	}); err != nil {
		t.Fatalf("UpsertDataset() error = %v", err)
	}

	warehouseColumns := []warehouse.Column{
		{Name: "patient_id", Type: "BIGINT"},
		{Name: "condition", Type: "VARCHAR"},
	}
	rows := [][]any{{int64(1), "asthma"}, {int64(2), "diabetes"}}
	if err := store.CreateDataset(ctx, "s1", "patients", warehouseColumns, rows); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}

	introspector := NewIntrospector(repo, store, 3)
	tables, err := introspector.Describe(ctx, "s1")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(tables) != 1 {
		t.Fatalf("tables = %d", len(tables))
	}
	table := tables[0]
	if table.Name != "patients" || table.RowCount != 2 {
		t.Fatalf("table = %+v", table)
	}
	if len(table.Columns) != 2 {
		t.Fatalf("columns = %+v", table.Columns)
	}
	if len(table.Columns[0].Samples) != 2 || table.Columns[0].Samples[0] != "1" {
		t.Fatalf("samples = %v", table.Columns[0].Samples)
	}
	if table.Columns[1].Samples[0] != "asthma" {
		t.Fatalf("samples = %v", table.Columns[1].Samples)
	}
}

func TestDescribeEmptySessionReturnsEmptySlice(t *testing.T) {
	repo, store := newFixture(t)
	ctx := context.Background()

	if _, err := repo.CreateSession(ctx, catalog.CreateSessionInput{SessionID: "s1"}); err != nil {
		t.Fatalf("CreateSession() error = %v", err)
	}

	introspector := NewIntrospector(repo, store, 3)
	tables, err := introspector.Describe(ctx, "s1")
	if err != nil {
		t.Fatalf("Describe() error = %v", err)
	}
	if len(tables) != 0 {
		t.Fatalf("tables = %d, want 0", len(tables))
	}
}

func TestDecodeColumnsEmptyInput(t *testing.T) {
	columns, err := DecodeColumns(nil)
	if err != nil {
		t.Fatalf("DecodeColumns() error = %v", err)
	}
	if columns != nil {
		t.Fatalf("columns = %v, want nil", columns)
	}
}
