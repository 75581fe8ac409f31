package dashboard

import (
	"strings"
	"testing"
	"time"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
	"github.com/torosent/lagmeter/internal/pipeline"
)

func TestPercentOf(t *testing.T) {
	tests := []struct {
		name     string
		value    float64
		ceiling  float64
		expected int
	}{
		{"half", 50, 100, 50},
		{"over ceiling", 150, 100, 100},
		{"zero ceiling", 10, 0, 0},
		{"negative value", -5, 100, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := percentOf(tt.value, tt.ceiling); got != tt.expected {
				t.Errorf("percentOf(%v, %v) = %d, expected %d", tt.value, tt.ceiling, got, tt.expected)
			}
		})
	}
}

func TestAppendHistoryKeepsWindow(t *testing.T) {
	var history []float64
	for i := 0; i < historySize+20; i++ {
		history = appendHistory(history, float64(i))
	}
	if len(history) != historySize {
		t.Fatalf("len = %d, expected %d", len(history), historySize)
	}
	if history[0] != 20 || history[len(history)-1] != float64(historySize+19) {
		t.Errorf("window = [%v .. %v]", history[0], history[len(history)-1])
	}
	if peak(history) != float64(historySize+19) {
		t.Errorf("peak = %v", peak(history))
	}
}

func TestFormatErrorRows(t *testing.T) {
	rows := formatErrorRows(nil, 10)
	if len(rows) != 1 || !strings.Contains(rows[0], "No failures") {
		t.Fatalf("unexpected rows for no errors: %v", rows)
	}

	rows = formatErrorRows(map[string]int{
		"*pipeline.ProcessingError": 7,
		"*errors.errorString":       2,
		"*net.OpError":              2,
	}, 2)
	if len(rows) != 2 {
		t.Fatalf("expected rows to be limited to 2, got %v", rows)
	}
	if !strings.Contains(rows[0], "Processing error") || !strings.HasSuffix(rows[0], " 7") {
		t.Errorf("first row = %q", rows[0])
	}
	if !strings.Contains(rows[1], "Error") || !strings.HasSuffix(rows[1], " 2") {
		t.Errorf("second row = %q", rows[1])
	}
}

func TestFormatRunInfo(t *testing.T) {
	d := newDashboard(metrics.NewCollector(), nil, RunInfo{
		Source:      "kafka",
		Topic:       "orders",
		Concurrency: 8,
		Rate:        200,
		Arrival:     "poisson",
		Total:       1000,
		Retries:     2,
	}, nil)

	got := d.formatRunInfo()
	for _, want := range []string{"Source: kafka (orders)", "Workers: 8", "Rate: 200/s poisson", "Total: 1000", "Retries: 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("expected %q in %q", want, got)
		}
	}
	if strings.Contains(got, "Duration") || strings.Contains(got, "Config") {
		t.Errorf("unset fields should be omitted: %q", got)
	}

	d = newDashboard(metrics.NewCollector(), nil, RunInfo{}, nil)
	if got := d.formatRunInfo(); got != "Rate: unlimited" {
		t.Errorf("formatRunInfo() = %q", got)
	}
}

func TestUpdateReadsCollectorAndGauges(t *testing.T) {
	collector := metrics.NewCollector()
	collector.RecordProcessing(10*time.Millisecond, metrics.OutcomeSuccess, nil)
	collector.RecordProcessing(30*time.Millisecond, metrics.OutcomeFailure, &pipeline.ProcessingError{EventID: "evt-1"})
	collector.RecordProcessing(5*time.Millisecond, metrics.OutcomeIgnored, nil)

	lag := monitor.NewLatencyMonitor()
	lag.RecordAdmission(10_000)
	lag.RecordCompletion(9_400)

	d := newDashboard(collector, lag, RunInfo{Source: "generator", Rate: 10}, nil)
	d.update(time.Second)

	if got := d.latencyHistory; len(got) != 1 || got[0] != 600 {
		t.Fatalf("latency history = %v, expected [600]", got)
	}
	if !strings.Contains(d.latencySpark.Title, "Current: 600ms") {
		t.Errorf("sparkline title = %q", d.latencySpark.Title)
	}
	if d.epsGauge.Percent != 30 || d.epsGauge.Label != "3.0 EPS" {
		t.Errorf("eps gauge = %d%% %q", d.epsGauge.Percent, d.epsGauge.Label)
	}
	for _, want := range []string{"Successful:  1", "Failed:      1", "Ignored:     1"} {
		if !strings.Contains(d.outcomePara.Text, want) {
			t.Errorf("expected %q in outcomes:\n%s", want, d.outcomePara.Text)
		}
	}
	if !strings.Contains(d.summaryPara.Text, "Events: 3") || !strings.Contains(d.summaryPara.Text, "Success Rate: 33.3%") {
		t.Errorf("summary = %q", d.summaryPara.Text)
	}
	if len(d.errorList.Rows) != 1 || !strings.Contains(d.errorList.Rows[0], "Processing error") {
		t.Errorf("error rows = %v", d.errorList.Rows)
	}
}

func TestUpdateClampsNegativeLatency(t *testing.T) {
	lag := monitor.NewLatencyMonitor()
	lag.RecordAdmission(1_000)
	lag.RecordCompletion(1_500)

	d := newDashboard(metrics.NewCollector(), lag, RunInfo{}, nil)
	d.update(time.Second)

	if d.latencyHistory[0] != 0 {
		t.Errorf("sparkline value = %v, expected 0", d.latencyHistory[0])
	}
	if !strings.Contains(d.latencySpark.Title, "Current: -500ms") {
		t.Errorf("title should keep the signed value: %q", d.latencySpark.Title)
	}
}

func TestCeilingEPSFollowsPeakWithoutRate(t *testing.T) {
	d := newDashboard(metrics.NewCollector(), nil, RunInfo{}, nil)
	if d.ceilingEPS() != 1 {
		t.Errorf("ceiling before any data = %v", d.ceilingEPS())
	}
	d.peakEPS = 250
	if d.ceilingEPS() != 250 {
		t.Errorf("ceiling = %v, expected 250", d.ceilingEPS())
	}
}
