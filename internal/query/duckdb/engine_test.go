package duckdb

import (
	"context"
	"errors"
	"testing"

	"github.com/healthlens/healthlens/internal/query"
	"github.com/healthlens/healthlens/internal/warehouse"
)

func newStoreWithVitals(t *testing.T) *warehouse.Store {
	t.Helper()
	store := warehouse.NewStore("")
	t.Cleanup(func() { _ = store.Close() })

	columns := []warehouse.Column{
		{Name: "patient_id", Type: "BIGINT"},
		{Name: "heart_rate", Type: "BIGINT"},
	}
	rows := [][]any{
		{int64(1), int64(72)},
		{int64(2), int64(96)},
		{int64(3), int64(64)},
	}
	if err := store.CreateDataset(context.Background(), "s1", "vitals", columns, rows); err != nil {
		t.Fatalf("CreateDataset() error = %v", err)
	}
	return store
}

func TestExecuteAggregatesSessionTable(t *testing.T) {
	engine := NewEngine(newStoreWithVitals(t))

	result, err := engine.Execute(context.Background(), query.Request{
		SessionID: "s1",
		SQL:       "SELECT COUNT(*) AS c FROM vitals",
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 1 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
	if result.Rows[0][0] != int64(3) {
		t.Fatalf("count = %#v", result.Rows[0][0])
	}
	if result.Columns[0] != "c" {
		t.Fatalf("columns = %v", result.Columns)
	}
}

func TestExecuteAppliesRowLimitWithTrailingSemicolon(t *testing.T) {
	engine := NewEngine(newStoreWithVitals(t))

	result, err := engine.Execute(context.Background(), query.Request{
		SessionID: "s1",
		SQL:       "SELECT patient_id FROM vitals ORDER BY patient_id;",
		RowLimit:  2,
	})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if len(result.Rows) != 2 {
		t.Fatalf("rows = %d", len(result.Rows))
	}
}

func TestExecuteMissingTableReturnsExecutionError(t *testing.T) {
	engine := NewEngine(newStoreWithVitals(t))

	_, err := engine.Execute(context.Background(), query.Request{
		SessionID: "s1",
		SQL:       "SELECT * FROM no_such_table",
	})
	if err == nil {
		t.Fatal("expected error for missing table")
	}
	var execErr *query.ExecutionError
	if !errors.As(err, &execErr) {
		t.Fatalf("error = %v, want ExecutionError", err)
	}
}

func TestExecuteDoesNotSeeOtherSessions(t *testing.T) {
	engine := NewEngine(newStoreWithVitals(t))

	_, err := engine.Execute(context.Background(), query.Request{
		SessionID: "s2",
		SQL:       "SELECT * FROM vitals",
	})
	if err == nil {
		t.Fatal("expected error querying another session's table")
	}
}

func TestExecuteRequiresSQL(t *testing.T) {
	engine := NewEngine(newStoreWithVitals(t))

	if _, err := engine.Execute(context.Background(), query.Request{SessionID: "s1", SQL: " ;; "}); err == nil {
		t.Fatal("expected error for empty sql")
	}
}
