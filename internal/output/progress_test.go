package output

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
)

func TestProgressReporterBasic(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()

	var buf bytes.Buffer
	reporter := NewProgressReporter(collector, nil, 100*time.Millisecond, &buf)
	if reporter == nil {
		t.Fatal("Expected non-nil reporter")
	}

	reporter.Stop()
}

func TestProgressReporterFormatting(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()
	for i := 0; i < 3; i++ {
		collector.RecordProcessing(10*time.Millisecond, metrics.OutcomeSuccess, nil)
	}
	collector.RecordProcessing(10*time.Millisecond, metrics.OutcomeIgnored, nil)

	lm := monitor.NewLatencyMonitor()
	lm.RecordAdmission(1000)
	lm.RecordCompletion(750)

	reporter := NewProgressReporter(collector, lm, time.Second, nil)
	defer reporter.Stop()

	line := reporter.line(2 * time.Second)
	for _, want := range []string{"Events: 4", "Successes: 3", "Ignored: 1", "EPS: 2.0", "Latency: 250ms"} {
		if !strings.Contains(line, want) {
			t.Errorf("progress line %q missing %q", line, want)
		}
	}
	if !strings.HasPrefix(line, "\r") {
		t.Errorf("progress line should start with carriage return: %q", line)
	}
}

func TestProgressReporterWritesPeriodically(t *testing.T) {
	collector := metrics.NewCollector()
	collector.Start()

	var buf syncBuffer
	reporter := NewProgressReporter(collector, monitor.NewLatencyMonitor(), 10*time.Millisecond, &buf)
	reporter.Start()
	reporter.Start() // second start is a no-op
	time.Sleep(55 * time.Millisecond)
	reporter.Stop()
	reporter.Stop()

	if got := strings.Count(buf.String(), "\rEvents:"); got < 2 {
		t.Fatalf("expected at least 2 progress lines, got %d", got)
	}
}
