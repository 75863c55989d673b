package ingest

import (
	"encoding/csv"
	"fmt"
	"io"
)

func parseCSV(reader io.Reader, opts Options) (Table, error) {
	r := csv.NewReader(reader)
	r.TrimLeadingSpace = true

	header, err := r.Read()
	if err == io.EOF {
		return Table{}, fmt.Errorf("csv file is empty")
	}
	if err != nil {
		return Table{}, fmt.Errorf("read csv header: %w", err)
	}
	if len(header) == 0 {
		return Table{}, fmt.Errorf("csv header has no columns")
	}

	names := make([]string, len(header))
	for i, raw := range header {
		names[i] = CleanIdentifier(raw)
	}
	names = uniqueColumnNames(names)

	cells := make([][]string, 0)
	for {
		record, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Table{}, fmt.Errorf("read csv row %d: %w", len(cells)+2, err)
		}
		cells = append(cells, record)
	}

	return inferAndConvert(names, cells, opts), nil
}
