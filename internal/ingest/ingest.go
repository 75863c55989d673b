// Package ingest parses uploaded CSV, JSON, and Parquet files into typed
// tables ready for loading into a session warehouse.
package ingest

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/healthlens/healthlens/internal/sqlguard"
)

// Column types assigned during inference. These are DuckDB type names so the
// parsed table can be loaded without further mapping.
const (
	TypeBigint    = "BIGINT"
	TypeDouble    = "DOUBLE"
	TypeBoolean   = "BOOLEAN"
	TypeTimestamp = "TIMESTAMP"
	TypeVarchar   = "VARCHAR"
)

type Column struct {
	Name string
	Type string
}

type Table struct {
	Columns []Column
	Rows    [][]any
}

type Options struct {
	// TypeInferLimit bounds how many rows are scanned when choosing a
	// column type. Zero means scan every row.
	TypeInferLimit int
}

// Parse reads an uploaded file and returns a typed table. The format is
// chosen from the filename extension.
func Parse(filename string, reader io.Reader, opts Options) (Table, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return parseCSV(reader, opts)
	case ".json":
		return parseJSON(reader, opts)
	case ".parquet":
		return parseParquet(reader)
	default:
		return Table{}, fmt.Errorf("unsupported file format %q", filepath.Ext(filename))
	}
}

// Format returns the canonical format name for a filename, or an error for
// unsupported extensions.
func Format(filename string) (string, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv":
		return "csv", nil
	case ".json":
		return "json", nil
	case ".parquet":
		return "parquet", nil
	default:
		return "", fmt.Errorf("unsupported file format %q", filepath.Ext(filename))
	}
}

// DatasetNameFromFilename derives a SQL-friendly table name from an uploaded
// filename: the extension is dropped and the rest is cleaned like a column
// name.
func DatasetNameFromFilename(filename string) string {
	base := filepath.Base(filename)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	return CleanIdentifier(base)
}

// CleanIdentifier lowercases a raw header or filename and replaces anything
// that is not a letter, digit, or underscore. Identifiers starting with a
// digit get an underscore prefix so they stay valid without quoting, and
// names the query validator reserves get a suffix so the column stays
// reachable.
func CleanIdentifier(raw string) string {
	var b strings.Builder
	lastUnderscore := false
	for _, r := range strings.TrimSpace(raw) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(unicode.ToLower(r))
			lastUnderscore = false
		default:
			if !lastUnderscore && b.Len() > 0 {
				b.WriteByte('_')
				lastUnderscore = true
			}
		}
	}
	cleaned := strings.Trim(b.String(), "_")
	if cleaned == "" {
		return "col"
	}
	if unicode.IsDigit(rune(cleaned[0])) {
		cleaned = "_" + cleaned
	}
	if sqlguard.IsReservedWord(cleaned) {
		cleaned += "_col"
	}
	return cleaned
}

// uniqueColumnNames resolves duplicate cleaned headers by suffixing an index.
func uniqueColumnNames(names []string) []string {
	seen := make(map[string]int, len(names))
	out := make([]string, len(names))
	for i, name := range names {
		if count, ok := seen[name]; ok {
			seen[name] = count + 1
			out[i] = fmt.Sprintf("%s_%d", name, count+1)
		} else {
			seen[name] = 1
			out[i] = name
		}
	}
	return out
}
