// Package schema describes the datasets loaded in a session: column names,
// column types, and a few sample values per column. The description feeds
// both the schema API and the translation prompt.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/healthlens/healthlens/internal/catalog"
	"github.com/healthlens/healthlens/internal/warehouse"
)

type Column struct {
	Name    string   `json:"name"`
	Type    string   `json:"type"`
	Samples []string `json:"samples,omitempty"`
}

type Table struct {
	Name     string   `json:"name"`
	RowCount int64    `json:"row_count"`
	Columns  []Column `json:"columns"`
}

// EncodeColumns renders a column list as the JSON stored in the catalog.
// An array keeps the upload's column order, which a JSON object would lose.
func EncodeColumns(columns []Column) ([]byte, error) {
	encoded, err := json.Marshal(columns)
	if err != nil {
		return nil, fmt.Errorf("encode schema columns: %w", err)
	}
	return encoded, nil
}

func DecodeColumns(raw []byte) ([]Column, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var columns []Column
	if err := json.Unmarshal(raw, &columns); err != nil {
		return nil, fmt.Errorf("decode schema columns: %w", err)
	}
	return columns, nil
}

type Introspector struct {
	repo       catalog.Repository
	store      *warehouse.Store
	sampleRows int
}

func NewIntrospector(repo catalog.Repository, store *warehouse.Store, sampleRows int) *Introspector {
	if sampleRows <= 0 {
		sampleRows = 3
	}
	return &Introspector{repo: repo, store: store, sampleRows: sampleRows}
}

// Describe returns the schema of every dataset in a session. A session with
// no datasets yields an empty slice, not an error.
func (i *Introspector) Describe(ctx context.Context, sessionID string) ([]Table, error) {
	datasets, err := i.repo.ListDatasets(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list datasets: %w", err)
	}

	tables := make([]Table, 0, len(datasets))
	for _, dataset := range datasets {
		columns, err := DecodeColumns(dataset.SchemaJSON)
		if err != nil {
			return nil, fmt.Errorf("dataset %q: %w", dataset.Name, err)
		}

		names, sampleRows, err := i.store.Sample(ctx, sessionID, dataset.Name, i.sampleRows)
		if err != nil {
			return nil, fmt.Errorf("sample dataset %q: %w", dataset.Name, err)
		}
		attachSamples(columns, names, sampleRows)

		tables = append(tables, Table{
			Name:     dataset.Name,
			RowCount: dataset.RowCount,
			Columns:  columns,
		})
	}
	return tables, nil
}

func attachSamples(columns []Column, names []string, rows [][]any) {
	index := make(map[string]int, len(names))
	for i, name := range names {
		index[name] = i
	}
	for i := range columns {
		position, ok := index[columns[i].Name]
		if !ok {
			continue
		}
		samples := make([]string, 0, len(rows))
		for _, row := range rows {
			if position >= len(row) || row[position] == nil {
				continue
			}
			samples = append(samples, formatSample(row[position]))
		}
		columns[i].Samples = samples
	}
}

func formatSample(value any) string {
	switch typed := value.(type) {
	case string:
		return typed
	case int64:
		return strconv.FormatInt(typed, 10)
	case int32:
		return strconv.FormatInt(int64(typed), 10)
	case float64:
		return strconv.FormatFloat(typed, 'g', -1, 64)
	case bool:
		return strconv.FormatBool(typed)
	case time.Time:
		return typed.UTC().Format(time.RFC3339)
	default:
		return fmt.Sprintf("%v", typed)
	}
}
