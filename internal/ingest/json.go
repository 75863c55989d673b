package ingest

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
)

// parseJSON accepts a top-level array of flat objects. Keys are ordered
// alphabetically so the resulting column order is stable across uploads of
// the same shape.
func parseJSON(reader io.Reader, opts Options) (Table, error) {
	decoder := json.NewDecoder(reader)
	decoder.UseNumber()

	var records []map[string]any
	if err := decoder.Decode(&records); err != nil {
		return Table{}, fmt.Errorf("decode json records: %w", err)
	}
	if len(records) == 0 {
		return Table{}, fmt.Errorf("json file has no records")
	}

	rawNames := make([]string, 0)
	seen := make(map[string]struct{})
	for _, record := range records {
		orderedKeys, err := objectKeys(record)
		if err != nil {
			return Table{}, err
		}
		for _, key := range orderedKeys {
			if _, ok := seen[key]; !ok {
				seen[key] = struct{}{}
				rawNames = append(rawNames, key)
			}
		}
	}

	names := make([]string, len(rawNames))
	for i, raw := range rawNames {
		names[i] = CleanIdentifier(raw)
	}
	names = uniqueColumnNames(names)

	cells := make([][]string, len(records))
	for i, record := range records {
		row := make([]string, len(rawNames))
		for j, key := range rawNames {
			value, ok := record[key]
			if !ok || value == nil {
				continue
			}
			cell, err := stringifyJSONValue(value)
			if err != nil {
				return Table{}, fmt.Errorf("record %d field %q: %w", i, key, err)
			}
			row[j] = cell
		}
		cells[i] = row
	}

	return inferAndConvert(names, cells, opts), nil
}

// objectKeys sorts map keys deterministically. JSON objects lose their
// textual order in Go maps, so alphabetical order stands in for it.
func objectKeys(record map[string]any) ([]string, error) {
	keys := make([]string, 0, len(record))
	for key, value := range record {
		switch value.(type) {
		case map[string]any, []any:
			return nil, fmt.Errorf("field %q is nested; only flat records are supported", key)
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys, nil
}

func stringifyJSONValue(value any) (string, error) {
	switch typed := value.(type) {
	case string:
		return typed, nil
	case json.Number:
		return typed.String(), nil
	case bool:
		return strconv.FormatBool(typed), nil
	default:
		return "", fmt.Errorf("unsupported value type %T", value)
	}
}
