package analytics

import (
	"fmt"
	"math"
	"strings"
)

type ColumnSummary struct {
	Name         string  `json:"name"`
	Count        int     `json:"count"`
	Missing      int     `json:"missing"`
	Completeness float64 `json:"completeness"`
	Mean         float64 `json:"mean"`
	Std          float64 `json:"std"`
	Min          float64 `json:"min"`
	P25          float64 `json:"p25"`
	Median       float64 `json:"median"`
	P75          float64 `json:"p75"`
	Max          float64 `json:"max"`
	Skewness     float64 `json:"skewness"`
}

type SummaryReport struct {
	Rows          int             `json:"rows"`
	DuplicateRows int             `json:"duplicate_rows"`
	Columns       []ColumnSummary `json:"columns"`
}

type ColumnOutliers struct {
	Name        string  `json:"name"`
	IQRLow      float64 `json:"iqr_low"`
	IQRHigh     float64 `json:"iqr_high"`
	IQRRows     []int   `json:"iqr_rows"`
	ZScoreRows  []int   `json:"zscore_rows"`
	IQRCount    int     `json:"iqr_count"`
	ZScoreCount int     `json:"zscore_count"`
}

type numericColumn struct {
	name    string
	index   int
	values  []float64
	present []bool
	missing int
}

// extractNumeric pulls the numeric columns out of a result grid. Integer and
// float cells count; NULLs count as missing; a column with any non-numeric,
// non-null cell is skipped entirely.
func extractNumeric(columns []string, rows [][]any) []numericColumn {
	numeric := make([]numericColumn, 0, len(columns))
	for col, name := range columns {
		values := make([]float64, 0, len(rows))
		present := make([]bool, len(rows))
		missing := 0
		ok := true
		for i, row := range rows {
			if col >= len(row) || row[col] == nil {
				missing++
				continue
			}
			value, isNumeric := toFloat(row[col])
			if !isNumeric {
				ok = false
				break
			}
			values = append(values, value)
			present[i] = true
		}
		if !ok || len(values) == 0 {
			continue
		}
		numeric = append(numeric, numericColumn{
			name:    name,
			index:   col,
			values:  values,
			present: present,
			missing: missing,
		})
	}
	return numeric
}

func toFloat(value any) (float64, bool) {
	switch typed := value.(type) {
	case int:
		return float64(typed), true
	case int32:
		return float64(typed), true
	case int64:
		return float64(typed), true
	case float32:
		return float64(typed), true
	case float64:
		return typed, true
	default:
		return 0, false
	}
}

// Summarize computes per-column summary statistics plus dataset-level
// completeness signals.
func Summarize(columns []string, rows [][]any) SummaryReport {
	report := SummaryReport{
		Rows:          len(rows),
		DuplicateRows: countDuplicateRows(rows),
	}
	for _, column := range extractNumeric(columns, rows) {
		total := len(column.values) + column.missing
		completeness := 0.0
		if total > 0 {
			completeness = float64(len(column.values)) / float64(total) * 100
		}
		low, high := minMax(column.values)
		report.Columns = append(report.Columns, ColumnSummary{
			Name:         column.name,
			Count:        len(column.values),
			Missing:      column.missing,
			Completeness: completeness,
			Mean:         mean(column.values),
			Std:          std(column.values),
			Min:          low,
			P25:          percentile(column.values, 25),
			Median:       percentile(column.values, 50),
			P75:          percentile(column.values, 75),
			Max:          high,
			Skewness:     skewness(column.values),
		})
	}
	return report
}

func countDuplicateRows(rows [][]any) int {
	seen := make(map[string]int, len(rows))
	duplicates := 0
	for _, row := range rows {
		key := rowKey(row)
		if seen[key] > 0 {
			duplicates++
		}
		seen[key]++
	}
	return duplicates
}

func rowKey(row []any) string {
	parts := make([]string, len(row))
	for i, value := range row {
		parts[i] = fmt.Sprintf("%v", value)
	}
	return strings.Join(parts, "\x1f")
}

// DetectOutliers flags rows outside the 1.5 IQR fences and rows with
// |z| >= 3, per numeric column. Row indexes refer to the input grid.
func DetectOutliers(columns []string, rows [][]any) []ColumnOutliers {
	reports := make([]ColumnOutliers, 0)
	for _, column := range extractNumeric(columns, rows) {
		p25 := percentile(column.values, 25)
		p75 := percentile(column.values, 75)
		iqr := p75 - p25
		low := p25 - 1.5*iqr
		high := p75 + 1.5*iqr

		m := mean(column.values)
		s := std(column.values)

		report := ColumnOutliers{
			Name:       column.name,
			IQRLow:     low,
			IQRHigh:    high,
			IQRRows:    make([]int, 0),
			ZScoreRows: make([]int, 0),
		}

		valueIndex := 0
		for rowIndex, hasValue := range column.present {
			if !hasValue {
				continue
			}
			value := column.values[valueIndex]
			valueIndex++

			if value < low || value > high {
				report.IQRRows = append(report.IQRRows, rowIndex)
			}
			if s > 0 && math.Abs((value-m)/s) >= 3 {
				report.ZScoreRows = append(report.ZScoreRows, rowIndex)
			}
		}
		report.IQRCount = len(report.IQRRows)
		report.ZScoreCount = len(report.ZScoreRows)
		reports = append(reports, report)
	}
	return reports
}
