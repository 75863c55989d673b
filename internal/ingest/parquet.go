package ingest

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// parseParquet reads a flat parquet file. Column types come from the file
// schema, so no inference pass is needed.
func parseParquet(reader io.Reader) (Table, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return Table{}, fmt.Errorf("read parquet payload: %w", err)
	}

	file, err := parquet.OpenFile(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return Table{}, fmt.Errorf("open parquet file: %w", err)
	}

	fields := file.Schema().Fields()
	if len(fields) == 0 {
		return Table{}, fmt.Errorf("parquet file has no columns")
	}

	columns := make([]Column, len(fields))
	names := make([]string, len(fields))
	for i, field := range fields {
		if !field.Leaf() {
			return Table{}, fmt.Errorf("column %q is nested; only flat files are supported", field.Name())
		}
		names[i] = CleanIdentifier(field.Name())
		columns[i] = Column{Type: parquetColumnType(field)}
	}
	names = uniqueColumnNames(names)
	for i := range columns {
		columns[i].Name = names[i]
	}

	tableRows := make([][]any, 0)
	for _, rowGroup := range file.RowGroups() {
		rowReader := rowGroup.Rows()
		buffer := make([]parquet.Row, 128)
		for {
			count, err := rowReader.ReadRows(buffer)
			for _, row := range buffer[:count] {
				converted := make([]any, len(fields))
				for i, value := range row {
					if i >= len(fields) {
						break
					}
					converted[i] = parquetValue(value, fields[i], columns[i].Type)
				}
				tableRows = append(tableRows, converted)
			}
			if errors.Is(err, io.EOF) {
				break
			}
			if err != nil {
				_ = rowReader.Close()
				return Table{}, fmt.Errorf("read parquet rows: %w", err)
			}
		}
		if err := rowReader.Close(); err != nil {
			return Table{}, fmt.Errorf("close parquet row reader: %w", err)
		}
	}

	return Table{Columns: columns, Rows: tableRows}, nil
}

func parquetColumnType(field parquet.Field) string {
	if logical := field.Type().LogicalType(); logical != nil {
		switch {
		case logical.UTF8 != nil:
			return TypeVarchar
		case logical.Timestamp != nil:
			return TypeTimestamp
		}
	}
	switch field.Type().Kind() {
	case parquet.Boolean:
		return TypeBoolean
	case parquet.Int32, parquet.Int64:
		return TypeBigint
	case parquet.Float, parquet.Double:
		return TypeDouble
	default:
		return TypeVarchar
	}
}

func parquetValue(value parquet.Value, field parquet.Field, columnType string) any {
	if value.IsNull() {
		return nil
	}
	if columnType == TypeTimestamp {
		return parquetTimestamp(value, field)
	}
	switch value.Kind() {
	case parquet.Boolean:
		return value.Boolean()
	case parquet.Int32:
		return int64(value.Int32())
	case parquet.Int64:
		return value.Int64()
	case parquet.Float:
		return float64(value.Float())
	case parquet.Double:
		return value.Double()
	case parquet.ByteArray, parquet.FixedLenByteArray:
		return string(value.ByteArray())
	default:
		return value.String()
	}
}

func parquetTimestamp(value parquet.Value, field parquet.Field) any {
	logical := field.Type().LogicalType()
	if logical == nil || logical.Timestamp == nil {
		return value.Int64()
	}
	ticks := value.Int64()
	unit := logical.Timestamp.Unit
	switch {
	case unit.Millis != nil:
		return time.UnixMilli(ticks).UTC()
	case unit.Micros != nil:
		return time.UnixMicro(ticks).UTC()
	case unit.Nanos != nil:
		return time.Unix(0, ticks).UTC()
	default:
		return time.UnixMilli(ticks).UTC()
	}
}
