// Package present turns query results into chat-friendly renderings: a text
// answer for scalars, a table otherwise, plus a chart suggestion when the
// result shape supports one.
package present

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/healthlens/healthlens/internal/query"
)

const (
	KindText  = "text"
	KindTable = "table"
)

const (
	ChartBar       = "bar"
	ChartLine      = "line"
	ChartScatter   = "scatter"
	ChartHistogram = "histogram"
)

type ChartSpec struct {
	Type     string   `json:"type"`
	Title    string   `json:"title"`
	XColumn  string   `json:"x_column"`
	YColumns []string `json:"y_columns"`
}

type Rendering struct {
	Kind    string     `json:"kind"`
	Message string     `json:"message,omitempty"`
	Columns []string   `json:"columns,omitempty"`
	Rows    [][]any    `json:"rows,omitempty"`
	Chart   *ChartSpec `json:"chart,omitempty"`
}

// Render decides how a result should be shown. Empty results are a normal
// outcome, not an error.
func Render(question string, result query.Result) Rendering {
	if len(result.Rows) == 0 {
		return Rendering{
			Kind:    KindText,
			Message: "No matching rows were found for this question.",
			Columns: result.Columns,
		}
	}

	if len(result.Rows) == 1 && len(result.Columns) == 1 {
		return Rendering{
			Kind:    KindText,
			Message: fmt.Sprintf("The answer is %s.", formatScalar(result.Rows[0][0])),
			Columns: result.Columns,
			Rows:    result.Rows,
		}
	}

	return Rendering{
		Kind:    KindTable,
		Columns: result.Columns,
		Rows:    result.Rows,
		Chart:   suggestChart(question, result),
	}
}

// suggestChart inspects column shapes and returns nil when no chart is a
// clear fit.
func suggestChart(question string, result query.Result) *ChartSpec {
	if len(result.Columns) == 0 {
		return nil
	}

	numeric := make([]bool, len(result.Columns))
	timeLike := make([]bool, len(result.Columns))
	for i := range result.Columns {
		numeric[i] = columnIsNumeric(result.Rows, i)
		timeLike[i] = columnIsTimeLike(result.Rows, i)
	}

	title := chartTitle(question)

	// Single numeric column with enough rows reads as a distribution.
	if len(result.Columns) == 1 {
		if numeric[0] && len(result.Rows) >= 10 {
			return &ChartSpec{
				Type:     ChartHistogram,
				Title:    title,
				XColumn:  result.Columns[0],
				YColumns: []string{result.Columns[0]},
			}
		}
		return nil
	}

	yColumns := make([]string, 0, len(result.Columns)-1)
	for i := 1; i < len(result.Columns); i++ {
		if numeric[i] {
			yColumns = append(yColumns, result.Columns[i])
		}
	}
	if len(yColumns) == 0 {
		return nil
	}

	switch {
	case timeLike[0]:
		return &ChartSpec{Type: ChartLine, Title: title, XColumn: result.Columns[0], YColumns: yColumns}
	case numeric[0] && len(result.Columns) == 2:
		return &ChartSpec{Type: ChartScatter, Title: title, XColumn: result.Columns[0], YColumns: yColumns}
	case !numeric[0]:
		return &ChartSpec{Type: ChartBar, Title: title, XColumn: result.Columns[0], YColumns: yColumns}
	default:
		return nil
	}
}

func columnIsNumeric(rows [][]any, col int) bool {
	seen := 0
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch row[col].(type) {
		case int, int32, int64, float32, float64:
			seen++
		default:
			return false
		}
	}
	return seen > 0
}

func columnIsTimeLike(rows [][]any, col int) bool {
	seen := 0
	for _, row := range rows {
		if col >= len(row) || row[col] == nil {
			continue
		}
		switch typed := row[col].(type) {
		case time.Time:
			seen++
		case string:
			if _, err := time.Parse("2006-01-02", typed); err != nil {
				if _, err := time.Parse(time.RFC3339, typed); err != nil {
					return false
				}
			}
			seen++
		default:
			return false
		}
	}
	return seen > 0
}

func formatScalar(value any) string {
	switch typed := value.(type) {
	case nil:
		return "NULL"
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", typed)
	}
}

func chartTitle(question string) string {
	title := strings.TrimSpace(question)
	if title == "" {
		return "Query result"
	}
	if len(title) > 80 {
		title = title[:77] + "..."
	}
	return title
}
