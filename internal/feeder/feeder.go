// Package feeder loads recorded events from CSV or JSON files so they can be
// replayed through the pipeline.
package feeder

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
)

// Record represents a single recorded event with named fields.
type Record map[string]string

// Feeder provides records from a dataset in file order.
// Implementations must be safe for concurrent use.
type Feeder interface {
	// Next returns the next record or ErrExhausted once every record was served.
	Next(ctx context.Context) (Record, error)

	// Close releases any resources held by the feeder.
	Close() error

	// Len returns the total number of records in the dataset.
	Len() int
}

// ErrExhausted is returned when a feeder has no more records.
var ErrExhausted = errors.New("feeder exhausted: no more records available")

// Format names a dataset encoding.
type Format string

const (
	FormatCSV       Format = "csv"
	FormatJSON      Format = "json"  // a single array of objects
	FormatJSONLines Format = "jsonl" // one object per line
)

// FormatFromPath infers the dataset format from the file extension.
func FormatFromPath(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return FormatCSV, nil
	case ".json":
		return FormatJSON, nil
	case ".jsonl", ".ndjson":
		return FormatJSONLines, nil
	default:
		return "", fmt.Errorf("cannot infer dataset format from %q (use csv, json or jsonl)", path)
	}
}

// Open loads the dataset at path. An empty format is inferred from the extension.
func Open(path string, format Format) (*RecordFeeder, error) {
	if format == "" {
		var err error
		if format, err = FormatFromPath(path); err != nil {
			return nil, err
		}
	}
	switch Format(strings.ToLower(string(format))) {
	case FormatCSV:
		return NewCSVFeeder(path)
	case FormatJSON:
		return NewJSONFeeder(path)
	case FormatJSONLines:
		return NewJSONLinesFeeder(path)
	default:
		return nil, fmt.Errorf("unsupported dataset format %q", format)
	}
}

// RecordFeeder serves preloaded records once, in file order.
type RecordFeeder struct {
	records []Record
	index   int
	mu      sync.Mutex
}

func newRecordFeeder(records []Record) *RecordFeeder {
	return &RecordFeeder{records: records}
}

// Next returns the next record. Returns ErrExhausted when all records have been consumed.
func (f *RecordFeeder) Next(ctx context.Context) (Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.index >= len(f.records) {
		return nil, ErrExhausted
	}

	record := f.records[f.index]
	f.index++
	return record, nil
}

// Close is a no-op; records are fully loaded at construction.
func (f *RecordFeeder) Close() error {
	return nil
}

// Len returns the total number of records in the dataset.
func (f *RecordFeeder) Len() int {
	return len(f.records)
}

// Remaining returns the number of records not yet served.
func (f *RecordFeeder) Remaining() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.records) - f.index
}
