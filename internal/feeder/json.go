package feeder

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/tidwall/gjson"
)

const maxLineSize = 1 << 20

// NewJSONFeeder loads records from a file holding a JSON array of objects.
// String values are taken verbatim; numbers and nested values keep their raw JSON text.
func NewJSONFeeder(path string) (*RecordFeeder, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON file: %w", err)
	}
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("decode JSON: invalid document")
	}

	root := gjson.ParseBytes(data)
	if !root.IsArray() {
		return nil, fmt.Errorf("decode JSON: expected an array of objects")
	}

	var (
		records []Record
		recErr  error
	)
	root.ForEach(func(_, value gjson.Result) bool {
		record, err := recordFromJSON(value)
		if err != nil {
			recErr = fmt.Errorf("record %d: %w", len(records), err)
			return false
		}
		records = append(records, record)
		return true
	})
	if recErr != nil {
		return nil, recErr
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("JSON file contains empty array")
	}
	return newRecordFeeder(records), nil
}

// NewJSONLinesFeeder loads records from a file with one JSON object per line.
// Blank lines are skipped.
func NewJSONLinesFeeder(path string) (*RecordFeeder, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open JSON lines file: %w", err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)

	var records []Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		if !gjson.ValidBytes(raw) {
			return nil, fmt.Errorf("line %d: invalid JSON", line)
		}
		record, err := recordFromJSON(gjson.ParseBytes(raw))
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		records = append(records, record)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read JSON lines: %w", err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("JSON lines file contains no records")
	}
	return newRecordFeeder(records), nil
}

func recordFromJSON(value gjson.Result) (Record, error) {
	if !value.IsObject() {
		return nil, fmt.Errorf("expected an object, got %s", value.Type)
	}
	record := make(Record)
	value.ForEach(func(key, field gjson.Result) bool {
		if field.Type == gjson.String {
			record[key.String()] = field.Str
		} else {
			record[key.String()] = field.Raw
		}
		return true
	})
	if len(record) == 0 {
		return nil, fmt.Errorf("record is empty")
	}
	return record, nil
}
