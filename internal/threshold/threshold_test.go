package threshold

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/lagmeter/internal/metrics"
)

func TestParse(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		want      Threshold
		wantError bool
	}{
		{
			name:  "processing p99",
			input: "processing_time:p99 < 50",
			want: Threshold{
				Metric:    "processing_time",
				Aggregate: "p99",
				Operator:  "<",
				Value:     50,
				Raw:       "processing_time:p99 < 50",
			},
		},
		{
			name:  "failure rate",
			input: "events_failed:rate < 0.01",
			want: Threshold{
				Metric:    "events_failed",
				Aggregate: "rate",
				Operator:  "<",
				Value:     0.01,
				Raw:       "events_failed:rate < 0.01",
			},
		},
		{
			name:  "negative latency bound without spaces",
			input: "latency:value>=-100",
			want: Threshold{
				Metric:    "latency",
				Aggregate: "value",
				Operator:  ">=",
				Value:     -100,
				Raw:       "latency:value>=-100",
			},
		},
		{name: "empty", input: "  ", wantError: true},
		{name: "garbage", input: "latency below 5", wantError: true},
		{name: "unknown metric", input: "http_req_duration:p95 < 500", wantError: true},
		{name: "aggregate not valid for metric", input: "latency:p99 < 5", wantError: true},
		{name: "bad operator", input: "events:count != 5", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Parse(tt.input)
			if (err != nil) != tt.wantError {
				t.Fatalf("Parse() error = %v, wantError %v", err, tt.wantError)
			}
			if !tt.wantError && got != tt.want {
				t.Errorf("Parse() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestParseMultipleCollectsErrors(t *testing.T) {
	_, err := ParseMultiple([]string{"events:count > 1", "bogus", "latency:avg < 1"})
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "threshold[1]") || !strings.Contains(err.Error(), "threshold[2]") {
		t.Errorf("error should name every bad entry: %v", err)
	}

	got, err := ParseMultiple(nil)
	if err != nil || got != nil {
		t.Errorf("ParseMultiple(nil) = %v, %v", got, err)
	}
}

func TestEvaluate(t *testing.T) {
	stats := metrics.Stats{
		Total:         200,
		Successes:     180,
		Failures:      10,
		Ignored:       10,
		EventsPerSec:  100,
		P90LatencyMs:  20,
		P99LatencyMs:  40,
		MeanLatencyMs: 12,
		Duration:      2 * time.Second,
	}
	gauges := map[string]int64{"latency": 350}

	tests := []struct {
		raw        string
		wantPass   bool
		wantActual float64
	}{
		{"processing_time:p99 < 50", true, 40},
		{"processing_time:p95 <= 30", true, 30},
		{"processing_time:avg > 20", false, 12},
		{"events_failed:rate < 0.01", false, 0.05},
		{"events_ignored:count == 10", true, 10},
		{"events:rate >= 100", true, 100},
		{"events:count > 500", false, 200},
		{"latency:value <= 500", true, 350},
		{"latency:value < 100", false, 350},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			th, err := Parse(tt.raw)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			results := NewEvaluator([]Threshold{th}).Evaluate(stats, gauges)
			if len(results) != 1 {
				t.Fatalf("expected 1 result, got %d", len(results))
			}
			r := results[0]
			if r.Pass != tt.wantPass {
				t.Errorf("Pass = %v, want %v (%s)", r.Pass, tt.wantPass, r.Message)
			}
			if r.Actual != tt.wantActual {
				t.Errorf("Actual = %g, want %g", r.Actual, tt.wantActual)
			}
		})
	}
}

func TestEvaluateMissingGauge(t *testing.T) {
	th, _ := Parse("latency:value < 10")
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.Stats{}, nil)
	if results[0].Pass || !strings.Contains(results[0].Message, "error") {
		t.Errorf("expected an error result, got %+v", results[0])
	}
}

func TestEvaluateNoThresholds(t *testing.T) {
	if results := NewEvaluator(nil).Evaluate(metrics.Stats{}, nil); results != nil {
		t.Errorf("expected nil results, got %v", results)
	}
}

func TestAllPassed(t *testing.T) {
	if !AllPassed(nil) {
		t.Error("AllPassed(nil) should be true")
	}
	if AllPassed([]Result{{Pass: true}, {Pass: false}}) {
		t.Error("AllPassed should be false when any result fails")
	}
}

func TestFailureRateWithNoEvents(t *testing.T) {
	th, _ := Parse("events_failed:rate < 0.5")
	results := NewEvaluator([]Threshold{th}).Evaluate(metrics.Stats{}, nil)
	if !results[0].Pass || results[0].Actual != 0 {
		t.Errorf("expected pass with zero rate, got %+v", results[0])
	}
}
