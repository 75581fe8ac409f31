package pipeline

import (
	"testing"
	"time"

	"github.com/twmb/franz-go/pkg/kgo"
)

func TestEventFromRecordUsesRecordTimestamp(t *testing.T) {
	rec := &kgo.Record{
		Topic:     "orders",
		Partition: 3,
		Offset:    42,
		Key:       []byte("k"),
		Value:     []byte(`{"id":1}`),
		Timestamp: time.UnixMilli(1_700_000_000_000),
		Headers:   []kgo.RecordHeader{{Key: "traceparent", Value: []byte("00-abc")}},
	}

	ev := eventFromRecord(rec, "")
	if ev.ID != "orders/3/42" {
		t.Errorf("ID = %q, want orders/3/42", ev.ID)
	}
	if ev.Timestamp().UnixMilli() != 1_700_000_000_000 {
		t.Errorf("Timestamp() = %d", ev.Timestamp().UnixMilli())
	}
	if ev.Partition != 3 || ev.Offset != 42 {
		t.Errorf("partition/offset = %d/%d", ev.Partition, ev.Offset)
	}
	if ev.Headers["traceparent"] != "00-abc" {
		t.Errorf("headers not copied: %v", ev.Headers)
	}
}

func TestEventFromRecordPrefersPayloadField(t *testing.T) {
	rec := &kgo.Record{
		Topic:     "orders",
		Value:     []byte(`{"meta":{"created_ms":1000}}`),
		Timestamp: time.UnixMilli(9000),
	}
	ev := eventFromRecord(rec, "meta.created_ms")
	if got := ev.Timestamp().UnixMilli(); got != 1000 {
		t.Fatalf("Timestamp() = %d, want 1000", got)
	}
}

func TestEventFromRecordFallsBackWhenFieldMissing(t *testing.T) {
	rec := &kgo.Record{
		Value:     []byte(`not json`),
		Timestamp: time.UnixMilli(9000),
	}
	ev := eventFromRecord(rec, "meta.created_ms")
	if got := ev.Timestamp().UnixMilli(); got != 9000 {
		t.Fatalf("Timestamp() = %d, want 9000", got)
	}
}

func TestPayloadTimestamp(t *testing.T) {
	tests := []struct {
		name    string
		payload string
		path    string
		wantMS  int64
		wantOK  bool
	}{
		{"epoch number", `{"ts":1234}`, "ts", 1234, true},
		{"numeric string", `{"ts":"1234"}`, "ts", 1234, true},
		{"rfc3339", `{"ts":"1970-01-01T00:00:01.500Z"}`, "ts", 1500, true},
		{"nested path", `{"a":{"b":77}}`, "a.b", 77, true},
		{"missing", `{"other":1}`, "ts", 0, false},
		{"wrong type", `{"ts":true}`, "ts", 0, false},
		{"garbage string", `{"ts":"yesterday"}`, "ts", 0, false},
		{"invalid json", `{"ts":`, "ts", 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := payloadTimestamp([]byte(tt.payload), tt.path)
			if ok != tt.wantOK {
				t.Fatalf("ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && got.UnixMilli() != tt.wantMS {
				t.Fatalf("timestamp = %d, want %d", got.UnixMilli(), tt.wantMS)
			}
		})
	}
}

func TestNewKafkaSourceValidatesOptions(t *testing.T) {
	if _, err := NewKafkaSource(KafkaOptions{Topic: "t"}, nil); err == nil {
		t.Error("expected error without brokers")
	}
	if _, err := NewKafkaSource(KafkaOptions{Brokers: []string{"localhost:9092"}}, nil); err == nil {
		t.Error("expected error without topic")
	}
}

func TestKafkaClientOpts(t *testing.T) {
	base := kafkaClientOpts(KafkaOptions{Brokers: []string{"b:9092"}, Topic: "t"})
	full := kafkaClientOpts(KafkaOptions{
		Brokers:      []string{"b:9092"},
		Topic:        "t",
		Group:        "g",
		ClientID:     "lagmeter",
		ResetToStart: true,
	})
	if len(full) != len(base)+3 {
		t.Fatalf("expected 3 extra options, got %d base and %d full", len(base), len(full))
	}
}
