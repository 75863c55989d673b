package ingest

import (
	"fmt"
	"io"
	"time"

	"github.com/parquet-go/parquet-go"
)

// WriteParquet renders a table as a parquet file. All columns are optional so
// NULL cells survive the round trip.
func WriteParquet(w io.Writer, table Table) error {
	if len(table.Columns) == 0 {
		return fmt.Errorf("table has no columns")
	}

	group := parquet.Group{}
	for _, column := range table.Columns {
		group[column.Name] = parquet.Optional(parquetNode(column.Type))
	}
	schema := parquet.NewSchema("dataset", group)

	writer := parquet.NewGenericWriter[map[string]any](w, schema)
	records := make([]map[string]any, 0, len(table.Rows))
	for _, row := range table.Rows {
		record := make(map[string]any, len(table.Columns))
		for i, column := range table.Columns {
			if i >= len(row) || row[i] == nil {
				continue
			}
			record[column.Name] = exportValue(row[i])
		}
		records = append(records, record)
	}

	if len(records) > 0 {
		if _, err := writer.Write(records); err != nil {
			return fmt.Errorf("write parquet rows: %w", err)
		}
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func parquetNode(columnType string) parquet.Node {
	switch columnType {
	case TypeBigint:
		return parquet.Int(64)
	case TypeDouble:
		return parquet.Leaf(parquet.DoubleType)
	case TypeBoolean:
		return parquet.Leaf(parquet.BooleanType)
	case TypeTimestamp:
		return parquet.Timestamp(parquet.Millisecond)
	default:
		return parquet.String()
	}
}

func exportValue(value any) any {
	switch typed := value.(type) {
	case time.Time:
		return typed.UnixMilli()
	default:
		return typed
	}
}
