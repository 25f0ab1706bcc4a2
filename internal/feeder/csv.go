package feeder

import (
	"encoding/csv"
	"fmt"
	"os"
	"strings"
)

// LoadCSV reads records from a CSV file. The first row is the header naming
// the fields.
func LoadCSV(path string) ([]Record, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read CSV: %w", err)
	}
	if len(rows) < 2 {
		return nil, fmt.Errorf("%s: %w", path, ErrEmpty)
	}

	header := rows[0]
	for i, field := range header {
		header[i] = strings.TrimSpace(field)
	}

	records := make([]Record, 0, len(rows)-1)
	for i, row := range rows[1:] {
		if len(row) != len(header) {
			return nil, fmt.Errorf("row %d has %d fields, expected %d", i+2, len(row), len(header))
		}
		record := make(Record, len(header))
		for j, field := range header {
			record[field] = row[j]
		}
		records = append(records, record)
	}
	return records, nil
}
