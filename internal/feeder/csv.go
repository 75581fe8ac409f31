package feeder

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// NewCSVFeeder loads records from a CSV file. The first row is the header
// naming the fields. Lines starting with '#' are skipped.
func NewCSVFeeder(path string) (*RecordFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open CSV file: %w", err)
	}
	defer file.Close()

	reader := csv.NewReader(file)
	reader.TrimLeadingSpace = true
	reader.Comment = '#'
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("CSV file is empty")
	}
	if err != nil {
		return nil, fmt.Errorf("read CSV header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var records []Record
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read CSV: %w", err)
		}
		if len(row) != len(header) {
			line, _ := reader.FieldPos(0)
			return nil, fmt.Errorf("line %d has %d fields, expected %d", line, len(row), len(header))
		}

		record := make(Record, len(header))
		for j, field := range header {
			record[field] = row[j]
		}
		records = append(records, record)
	}

	if len(records) == 0 {
		return nil, fmt.Errorf("CSV file must have at least one header row and one data row")
	}
	return newRecordFeeder(records), nil
}
