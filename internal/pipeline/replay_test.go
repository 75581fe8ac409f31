package pipeline_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/lagmeter/internal/feeder"
	"github.com/torosent/lagmeter/internal/pipeline"
)

type sliceFeeder struct {
	records []feeder.Record
	closed  bool
}

func (f *sliceFeeder) Next(ctx context.Context) (feeder.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(f.records) == 0 {
		return nil, feeder.ErrExhausted
	}
	rec := f.records[0]
	f.records = f.records[1:]
	return rec, nil
}

func (f *sliceFeeder) Close() error { f.closed = true; return nil }
func (f *sliceFeeder) Len() int     { return len(f.records) }

func TestReplaySourceMapsRecords(t *testing.T) {
	src := pipeline.NewReplaySource(&sliceFeeder{records: []feeder.Record{
		{
			"id":                 "evt-1",
			"timestamp":          "1700000000000",
			"stream":             "refunds",
			"customer":           "c-9",
			"amount":             "12.5",
			"header.traceparent": "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01",
		},
	}}, pipeline.ReplayOptions{
		TopicField:      "stream",
		KeyField:        "customer",
		Topic:           "orders",
		PayloadTemplate: `{"amount":{{amount}}}`,
	})

	ev, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.ID != "evt-1" || ev.Topic != "refunds" || string(ev.Key) != "c-9" {
		t.Errorf("event = %+v", ev)
	}
	if ev.Timestamp().UnixMilli() != 1700000000000 {
		t.Errorf("Timestamp() = %d, want 1700000000000", ev.Timestamp().UnixMilli())
	}
	if string(ev.Payload) != `{"amount":12.5}` {
		t.Errorf("Payload = %s", ev.Payload)
	}
	if !strings.HasPrefix(ev.Headers["traceparent"], "00-4bf92f") || len(ev.Headers) != 1 {
		t.Errorf("Headers = %v", ev.Headers)
	}
}

func TestReplaySourceDefaults(t *testing.T) {
	src := pipeline.NewReplaySource(&sliceFeeder{records: []feeder.Record{
		{"timestamp": "2023-11-14T22:13:20Z"},
	}}, pipeline.ReplayOptions{Topic: "orders"})

	ev, err := src.Next(context.Background())
	if err != nil {
		t.Fatalf("Next() error = %v", err)
	}
	if ev.ID != "replay-0" || ev.Topic != "orders" || ev.Payload != nil || ev.Headers != nil {
		t.Errorf("event = %+v", ev)
	}
	if !ev.Timestamp().Equal(time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC)) {
		t.Errorf("Timestamp() = %s", ev.Timestamp())
	}
}

func TestReplaySourceRebasePreservesSpacing(t *testing.T) {
	now := time.UnixMilli(9_000_000)
	src := pipeline.NewReplaySource(&sliceFeeder{records: []feeder.Record{
		{"id": "a", "timestamp": "1000"},
		{"id": "b", "timestamp": "1250"},
		{"id": "c", "timestamp": "900"},
	}}, pipeline.ReplayOptions{
		Rebase: true,
		Clock:  func() time.Time { return now },
	})

	want := []int64{9_000_000, 9_000_250, 8_999_900}
	for i, w := range want {
		ev, err := src.Next(context.Background())
		if err != nil {
			t.Fatalf("Next() #%d error = %v", i, err)
		}
		if got := ev.Timestamp().UnixMilli(); got != w {
			t.Errorf("event %d timestamp = %d, want %d", i, got, w)
		}
	}
	if src.Replayed() != 3 {
		t.Errorf("Replayed() = %d, want 3", src.Replayed())
	}
}

func TestReplaySourceExhaustionAndErrors(t *testing.T) {
	f := &sliceFeeder{records: []feeder.Record{{"id": "bad", "timestamp": "yesterday"}}}
	src := pipeline.NewReplaySource(f, pipeline.ReplayOptions{})

	_, err := src.Next(context.Background())
	if err == nil || !strings.Contains(err.Error(), `"timestamp"`) {
		t.Fatalf("expected timestamp error, got %v", err)
	}
	if _, err := src.Next(context.Background()); !errors.Is(err, pipeline.ErrSourceExhausted) {
		t.Fatalf("expected ErrSourceExhausted, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := src.Next(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}

	if err := src.Close(); err != nil || !f.closed {
		t.Errorf("Close() = %v, closed = %v", err, f.closed)
	}
}

func TestRunnerReplaysFileToExhaustion(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.csv")
	content := "id,timestamp\n"
	for i := 0; i < 25; i++ {
		content += "evt,1700000000000\n"
	}
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile() error = %v", err)
	}
	f, err := feeder.Open(path, "")
	if err != nil {
		t.Fatalf("feeder.Open() error = %v", err)
	}

	mon := &countingMonitor{}
	r := pipeline.New(pipeline.Options{
		Concurrency: 4,
		Source:      pipeline.NewReplaySource(f, pipeline.ReplayOptions{}),
		Handler:     pipeline.HandlerFunc(func(context.Context, *pipeline.Event) error { return nil }),
		Monitor:     mon,
	})
	res := r.Run(context.Background())
	if res.Total != 25 || res.Succeeded != 25 || res.SourceErr != nil {
		t.Fatalf("result = %+v", res)
	}
	if got := atomic.LoadInt64(&mon.successes); got != 25 {
		t.Errorf("monitor successes = %d, want 25", got)
	}
}
