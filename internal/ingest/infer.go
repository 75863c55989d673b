package ingest

import (
	"strconv"
	"strings"
	"time"
)

var timestampLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// inferAndConvert takes string-valued cells, picks a type per column, and
// converts the cells to typed values. A column where a value past the
// inference window fails to parse is demoted to VARCHAR and re-converted.
func inferAndConvert(names []string, cells [][]string, opts Options) Table {
	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: inferColumnType(cells, i, opts.TypeInferLimit)}
	}

	rows := make([][]any, len(cells))
	for i := range rows {
		rows[i] = make([]any, len(columns))
	}

	for col := range columns {
		if !convertColumn(rows, cells, col, columns[col].Type) {
			columns[col].Type = TypeVarchar
			convertColumn(rows, cells, col, TypeVarchar)
		}
	}

	return Table{Columns: columns, Rows: rows}
}

func inferColumnType(cells [][]string, col, limit int) string {
	couldBeBigint := true
	couldBeDouble := true
	couldBeBoolean := true
	couldBeTimestamp := true
	seen := 0

	for _, row := range cells {
		if limit > 0 && seen >= limit {
			break
		}
		value := strings.TrimSpace(row[col])
		if value == "" {
			continue
		}
		seen++

		if couldBeBigint {
			if _, err := strconv.ParseInt(value, 10, 64); err != nil {
				couldBeBigint = false
			}
		}
		if couldBeDouble {
			if _, err := strconv.ParseFloat(value, 64); err != nil {
				couldBeDouble = false
			}
		}
		if couldBeBoolean && !isBooleanLiteral(value) {
			couldBeBoolean = false
		}
		if couldBeTimestamp {
			if _, ok := parseTimestamp(value); !ok {
				couldBeTimestamp = false
			}
		}
		if !couldBeBigint && !couldBeDouble && !couldBeBoolean && !couldBeTimestamp {
			return TypeVarchar
		}
	}

	switch {
	case seen == 0:
		return TypeVarchar
	case couldBeBoolean:
		return TypeBoolean
	case couldBeBigint:
		return TypeBigint
	case couldBeDouble:
		return TypeDouble
	case couldBeTimestamp:
		return TypeTimestamp
	default:
		return TypeVarchar
	}
}

// convertColumn fills the typed column in rows. It reports false when any
// non-empty cell refuses to parse as the chosen type.
func convertColumn(rows [][]any, cells [][]string, col int, columnType string) bool {
	for i, row := range cells {
		value := strings.TrimSpace(row[col])
		if value == "" {
			rows[i][col] = nil
			continue
		}
		converted, ok := convertValue(value, columnType)
		if !ok {
			return false
		}
		rows[i][col] = converted
	}
	return true
}

func convertValue(value, columnType string) (any, bool) {
	switch columnType {
	case TypeBigint:
		parsed, err := strconv.ParseInt(value, 10, 64)
		return parsed, err == nil
	case TypeDouble:
		parsed, err := strconv.ParseFloat(value, 64)
		return parsed, err == nil
	case TypeBoolean:
		switch strings.ToLower(value) {
		case "true", "t", "yes", "1":
			return true, true
		case "false", "f", "no", "0":
			return false, true
		}
		return nil, false
	case TypeTimestamp:
		parsed, ok := parseTimestamp(value)
		return parsed, ok
	default:
		return value, true
	}
}

func isBooleanLiteral(value string) bool {
	switch strings.ToLower(value) {
	case "true", "false", "t", "f", "yes", "no":
		return true
	}
	return false
}

func parseTimestamp(value string) (time.Time, bool) {
	for _, layout := range timestampLayouts {
		if parsed, err := time.Parse(layout, value); err == nil {
			return parsed.UTC(), true
		}
	}
	return time.Time{}, false
}
