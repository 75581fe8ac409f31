package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/torosent/lagmeter/internal/config"
	"github.com/torosent/lagmeter/internal/pipeline"
)

func TestToPipelineArrivalModel(t *testing.T) {
	tests := []struct {
		input config.ArrivalModel
		want  pipeline.ArrivalModel
	}{
		{config.ArrivalModelUniform, pipeline.ArrivalModelUniform},
		{config.ArrivalModelPoisson, pipeline.ArrivalModelPoisson},
		{"unknown", pipeline.ArrivalModelUniform}, // Default fallback
	}

	for _, tt := range tests {
		got := toPipelineArrivalModel(tt.input)
		if got != tt.want {
			t.Errorf("toPipelineArrivalModel(%q) = %q, want %q", tt.input, got, tt.want)
		}
	}
}

func TestNewRetryPolicy(t *testing.T) {
	policy := newRetryPolicy(3, 10*time.Millisecond)
	if policy.MaxAttempts != 4 {
		t.Fatalf("MaxAttempts = %d, want 4", policy.MaxAttempts)
	}
	if policy.ShouldRetry(context.Canceled) || policy.ShouldRetry(context.DeadlineExceeded) {
		t.Error("context errors must not be retried")
	}
	if !policy.ShouldRetry(errors.New("temporary")) {
		t.Error("plain failures should be retried")
	}

	for attempt, base := range map[int]time.Duration{1: 10 * time.Millisecond, 2: 20 * time.Millisecond, 3: 40 * time.Millisecond} {
		d := policy.DelayFunc(attempt, nil)
		if d < base || d >= base+base/2 {
			t.Errorf("attempt %d delay %s outside [%s, %s)", attempt, d, base, base+base/2)
		}
	}
	if d := policy.DelayFunc(20, nil); d > maxRetryDelay+maxRetryDelay/2 {
		t.Errorf("delay %s exceeds cap", d)
	}
}

func TestRunInfo(t *testing.T) {
	cfg := config.Defaults()
	cfg.Source = config.SourceReplay
	cfg.Replay.Path = "events.csv"
	cfg.Rate = 50
	info := runInfo(cfg)
	if info.Source != "replay" || info.Topic != "events.csv" || info.Rate != 50 || info.Arrival != "uniform" {
		t.Errorf("runInfo() = %+v", info)
	}
}

func TestNewSourceSelectsGenerator(t *testing.T) {
	cfg := config.Defaults()
	src, err := newSource(cfg, nil)
	if err != nil {
		t.Fatalf("newSource() error = %v", err)
	}
	defer src.Close()
	if _, ok := src.(*pipeline.GeneratorSource); !ok {
		t.Fatalf("expected generator source, got %T", src)
	}
}

func TestRunReplayDataset(t *testing.T) {
	path := filepath.Join(t.TempDir(), "events.jsonl")
	var lines []string
	for i := 0; i < 12; i++ {
		lines = append(lines, fmt.Sprintf(`{"id":"evt-%d","created_ms":%d}`, i, 1700000000000+int64(i)*10))
	}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")), 0o600); err != nil {
		t.Fatalf("write dataset: %v", err)
	}

	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--source=replay",
		"--replay-file", path,
		"--replay-time-field=created_ms",
		"--replay-rebase",
		"--concurrency=3",
		"--output=json",
		"--log-level=error",
		"--threshold", "events:count == 12",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v (stderr: %s)", err, stderr.String())
	}

	var report struct {
		Stats struct {
			Total int64 `json:"total"`
		} `json:"stats"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if report.Stats.Total != 12 {
		t.Errorf("stats.total = %d, want 12", report.Stats.Total)
	}
}

func TestRunReplayMissingFile(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--source=replay", "--replay-file", filepath.Join(t.TempDir(), "none.csv")}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "replay:") {
		t.Fatalf("expected replay error, got %v", err)
	}
}

func TestRunGeneratorJSONReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--total=40",
		"--concurrency=4",
		"--generator-skew=300ms",
		"--ignore-rate=0.25",
		"--seed=3",
		"--output=json",
		"--log-level=error",
	}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v (stderr: %s)", err, stderr.String())
	}

	var report struct {
		Stats struct {
			Total     int64 `json:"total"`
			Successes int64 `json:"successes"`
			Ignored   int64 `json:"ignored"`
		} `json:"stats"`
		Gauges map[string]int64 `json:"gauges"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if report.Stats.Total != 40 {
		t.Errorf("stats.total = %d, want 40", report.Stats.Total)
	}
	if report.Stats.Successes+report.Stats.Ignored != 40 {
		t.Errorf("successes + ignored = %d, want 40", report.Stats.Successes+report.Stats.Ignored)
	}
	latency, ok := report.Gauges["latency"]
	if !ok {
		t.Fatalf("latency gauge missing: %v", report.Gauges)
	}
	if latency < 0 {
		t.Errorf("latency after a drained run = %d, want >= 0", latency)
	}
}

func TestRunTextReport(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--total=5", "--progress-interval=0", "--log-level=error"}, &stdout, &stderr)
	if err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if !strings.Contains(stdout.String(), "Total Events:      5") {
		t.Errorf("unexpected text report:\n%s", stdout.String())
	}
}

func TestRunFailOnError(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--total=5", "--failure-rate=1", "--fail-on-error", "--output=yaml", "--log-level=error"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "5 events failed") {
		t.Fatalf("expected failure error, got %v", err)
	}
	if !strings.Contains(stdout.String(), "failures: 5") {
		t.Errorf("report should still be printed:\n%s", stdout.String())
	}
}

func TestRunThresholds(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{
		"--total=10",
		"--failure-rate=1",
		"--output=json",
		"--log-level=error",
		"--threshold", "events:count == 10",
		"--threshold", "events_failed:rate < 0.5",
	}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "1 of 2 thresholds failed") {
		t.Fatalf("expected threshold failure, got %v", err)
	}

	var report struct {
		Thresholds struct {
			Passed int `json:"passed"`
			Failed int `json:"failed"`
		} `json:"thresholds"`
	}
	if err := json.Unmarshal(stdout.Bytes(), &report); err != nil {
		t.Fatalf("invalid JSON report: %v\n%s", err, stdout.String())
	}
	if report.Thresholds.Passed != 1 || report.Thresholds.Failed != 1 {
		t.Errorf("thresholds = %+v", report.Thresholds)
	}
}

func TestRunRejectsBadThreshold(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--total=1", "--threshold", "latency:p99 < 5"}, &stdout, &stderr)
	if err == nil || !strings.Contains(err.Error(), "threshold") {
		t.Fatalf("expected threshold parse error, got %v", err)
	}
	if stdout.Len() != 0 {
		t.Errorf("nothing should run with a bad threshold:\n%s", stdout.String())
	}
}

func TestRunRejectsInvalidConfig(t *testing.T) {
	var stdout, stderr bytes.Buffer
	err := run([]string{"--concurrency=0"}, &stdout, &stderr)
	var verr config.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestRunHelp(t *testing.T) {
	var stdout, stderr bytes.Buffer
	if err := run([]string{"--help"}, &stdout, &stderr); err != nil {
		t.Fatalf("run(--help) error = %v", err)
	}
}
