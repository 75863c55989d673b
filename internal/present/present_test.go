package present

import (
	"strings"
	"testing"
	"time"

	"github.com/healthlens/healthlens/internal/query"
)

func TestRenderEmptyResult(t *testing.T) {
	rendering := Render("how many", query.Result{Columns: []string{"c"}})
	if rendering.Kind != KindText {
		t.Fatalf("Kind = %s", rendering.Kind)
	}
	if !strings.Contains(rendering.Message, "No matching rows") {
		t.Fatalf("Message = %q", rendering.Message)
	}
}

func TestRenderScalarResult(t *testing.T) {
	rendering := Render("average age", query.Result{
		Columns: []string{"avg_age"},
		Rows:    [][]any{{float64(47.5)}},
	})
	if rendering.Kind != KindText {
		t.Fatalf("Kind = %s", rendering.Kind)
	}
	if !strings.Contains(rendering.Message, "47.5") {
		t.Fatalf("Message = %q", rendering.Message)
	}
}

func TestRenderCategoricalNumericSuggestsBar(t *testing.T) {
	rendering := Render("patients per condition", query.Result{
		Columns: []string{"condition", "n"},
		Rows: [][]any{
			{"asthma", int64(4)},
			{"diabetes", int64(2)},
		},
	})
	if rendering.Kind != KindTable {
		t.Fatalf("Kind = %s", rendering.Kind)
	}
	if rendering.Chart == nil || rendering.Chart.Type != ChartBar {
		t.Fatalf("Chart = %+v", rendering.Chart)
	}
	if rendering.Chart.XColumn != "condition" || rendering.Chart.YColumns[0] != "n" {
		t.Fatalf("Chart = %+v", rendering.Chart)
	}
}

func TestRenderTimeSeriesSuggestsLine(t *testing.T) {
	rendering := Render("admissions over time", query.Result{
		Columns: []string{"day", "admissions"},
		Rows: [][]any{
			{time.Date(2026, time.January, 1, 0, 0, 0, 0, time.UTC), int64(3)},
			{time.Date(2026, time.January, 2, 0, 0, 0, 0, time.UTC), int64(5)},
		},
	})
	if rendering.Chart == nil || rendering.Chart.Type != ChartLine {
		t.Fatalf("Chart = %+v", rendering.Chart)
	}
}

func TestRenderTwoNumericColumnsSuggestsScatter(t *testing.T) {
	rendering := Render("age vs glucose", query.Result{
		Columns: []string{"age", "glucose"},
		Rows: [][]any{
			{int64(30), float64(90.1)},
			{int64(60), float64(120.7)},
		},
	})
	if rendering.Chart == nil || rendering.Chart.Type != ChartScatter {
		t.Fatalf("Chart = %+v", rendering.Chart)
	}
}

func TestRenderSingleNumericColumnSuggestsHistogram(t *testing.T) {
	rows := make([][]any, 0, 12)
	for i := 0; i < 12; i++ {
		rows = append(rows, []any{float64(i) * 1.5})
	}
	rendering := Render("distribution of bmi", query.Result{
		Columns: []string{"bmi"},
		Rows:    rows,
	})
	if rendering.Chart == nil || rendering.Chart.Type != ChartHistogram {
		t.Fatalf("Chart = %+v", rendering.Chart)
	}
}

func TestRenderTextColumnsGetNoChart(t *testing.T) {
	rendering := Render("list names", query.Result{
		Columns: []string{"first", "last"},
		Rows: [][]any{
			{"ada", "lovelace"},
			{"grace", "hopper"},
		},
	})
	if rendering.Chart != nil {
		t.Fatalf("Chart = %+v, want nil", rendering.Chart)
	}
	if rendering.Kind != KindTable {
		t.Fatalf("Kind = %s", rendering.Kind)
	}
}

func TestChartTitleTruncatesLongQuestions(t *testing.T) {
	long := strings.Repeat("q", 120)
	title := chartTitle(long)
	if len(title) != 80 {
		t.Fatalf("len(title) = %d", len(title))
	}
}
