package pipeline

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"time"
)

// ErrSourceExhausted is returned by a Source that has no more events.
var ErrSourceExhausted = errors.New("source exhausted")

// Event is a single message flowing through the pipeline.
type Event struct {
	ID        string
	Time      time.Time // event time; drives the latency monitor
	Topic     string
	Partition int32
	Offset    int64
	Key       []byte
	Payload   []byte
	Headers   map[string]string // record headers; may carry upstream trace context
}

// Timestamp implements monitor.Message.
func (e *Event) Timestamp() time.Time {
	return e.Time
}

// Source yields events to process.
// Next blocks until an event is available, ctx is done, or the source is exhausted.
type Source interface {
	Next(ctx context.Context) (*Event, error)
	Close() error
}

// parseTimestamp reads epoch milliseconds or an RFC 3339 time.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	if ms, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.UnixMilli(ms), true
	}
	if ts, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return ts, true
	}
	return time.Time{}, false
}
