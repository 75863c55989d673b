package demo

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"testing"
	"time"
)

func TestWriteCohortCSVShape(t *testing.T) {
	var buf bytes.Buffer
	if err := NewGenerator(7).WriteCohortCSV(&buf, 25); err != nil {
		t.Fatalf("WriteCohortCSV() error = %v", err)
	}

	records, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("read cohort: %v", err)
	}
	if len(records) != 26 {
		t.Fatalf("records = %d, want 26", len(records))
	}
	if records[0][0] != "patient_id" || len(records[0]) != 9 {
		t.Fatalf("header = %v", records[0])
	}
	for i, record := range records[1:] {
		age, err := strconv.Atoi(record[1])
		if err != nil || age < 18 || age > 89 {
			t.Fatalf("row %d age = %q", i+1, record[1])
		}
		if record[6] != "true" && record[6] != "false" {
			t.Fatalf("row %d smoker = %q", i+1, record[6])
		}
	}
}

func TestWriteCohortCSVIsDeterministicPerSeed(t *testing.T) {
	fixed := time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC)
	render := func(seed int64) string {
		t.Helper()
		g := NewGenerator(seed)
		g.now = func() time.Time { return fixed }
		var buf bytes.Buffer
		if err := g.WriteCohortCSV(&buf, 10); err != nil {
			t.Fatalf("WriteCohortCSV() error = %v", err)
		}
		return buf.String()
	}

	if render(1) != render(1) {
		t.Fatal("same seed should produce the same cohort")
	}
	if render(1) == render(2) {
		t.Fatal("different seeds should produce different cohorts")
	}
}
