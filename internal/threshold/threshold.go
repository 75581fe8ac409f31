// Package threshold evaluates pass/fail assertions against the end-of-run report.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
)

const (
	MetricProcessingTime = "processing_time"
	MetricEventsFailed   = "events_failed"
	MetricEventsIgnored  = "events_ignored"
	MetricEvents         = "events"
	MetricLatency        = monitor.MetricLatency
)

var thresholdPattern = regexp.MustCompile(`^([a-z_]+):([a-z0-9]+)\s*([<>=!]+)\s*(-?[0-9.]+)$`)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string  // e.g., "processing_time", "events_failed", "latency"
	Aggregate string  // e.g., "p99", "avg", "rate", "count", "value"
	Operator  string  // e.g., "<", "<=", ">", ">=", "=="
	Value     float64 // The threshold value to compare against
	Raw       string  // Original threshold string for display
}

// Result represents the outcome of evaluating a threshold.
type Result struct {
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against collected metrics.
type Evaluator struct {
	thresholds []Threshold
}

// NewEvaluator creates a new threshold evaluator.
func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against the run statistics and final gauge readings.
func (e *Evaluator) Evaluate(stats metrics.Stats, gauges map[string]int64) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		results = append(results, evaluateOne(t, stats, gauges))
	}
	return results
}

// AllPassed reports whether every result passed.
func AllPassed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func evaluateOne(t Threshold, stats metrics.Stats, gauges map[string]int64) Result {
	actual, err := extractMetricValue(t, stats, gauges)
	if err != nil {
		return Result{
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "PASS"
	if !pass {
		status = "FAIL"
	}

	return Result{
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s: %.2f %s %.2f", status, t.Raw, actual, t.Operator, t.Value),
	}
}

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
// - "processing_time:p99 < 50"   (processing time percentile in ms)
// - "processing_time:avg < 20"   (mean processing time in ms)
// - "events_failed:rate < 0.01"  (failure share of all events)
// - "events_ignored:count < 10"  (ignored event count)
// - "events:rate > 100"          (events per second)
// - "latency:value <= 500"       (final latency gauge reading in ms)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric:aggregate operator value, e.g., 'processing_time:p99 < 50')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]
	valueStr := matches[4]

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", valueStr, err)
	}

	aggregates, ok := supportedAggregates[metric]
	if !ok {
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: %s)", metric, strings.Join(metricNames(), ", "))
	}
	if !contains(aggregates, aggregate) {
		return Threshold{}, fmt.Errorf("unsupported aggregate %q for %s (supported: %s)", aggregate, metric, strings.Join(aggregates, ", "))
	}
	if !contains([]string{"<", "<=", ">", ">=", "=="}, operator) {
		return Threshold{}, fmt.Errorf("unsupported operator: %q (supported: <, <=, >, >=, ==)", operator)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errs []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errs = append(errs, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errs, "; "))
	}

	return result, nil
}

var supportedAggregates = map[string][]string{
	MetricProcessingTime: {"p50", "p90", "p95", "p99", "avg", "mean", "min", "max"},
	MetricEventsFailed:   {"rate", "count"},
	MetricEventsIgnored:  {"rate", "count"},
	MetricEvents:         {"rate", "count"},
	MetricLatency:        {"value"},
}

func metricNames() []string {
	return []string{MetricProcessingTime, MetricEventsFailed, MetricEventsIgnored, MetricEvents, MetricLatency}
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

func extractMetricValue(t Threshold, stats metrics.Stats, gauges map[string]int64) (float64, error) {
	switch t.Metric {
	case MetricProcessingTime:
		return extractProcessingMetric(t.Aggregate, stats)
	case MetricEventsFailed:
		return countOrRate(t.Aggregate, stats.Failures, stats.Total)
	case MetricEventsIgnored:
		return countOrRate(t.Aggregate, stats.Ignored, stats.Total)
	case MetricEvents:
		if t.Aggregate == "rate" {
			return stats.EventsPerSec, nil
		}
		return float64(stats.Total), nil
	case MetricLatency:
		v, ok := gauges[monitor.MetricLatency]
		if !ok {
			return 0, fmt.Errorf("gauge %q was not reported", monitor.MetricLatency)
		}
		return float64(v), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractProcessingMetric(aggregate string, stats metrics.Stats) (float64, error) {
	switch aggregate {
	case "p50":
		return stats.P50LatencyMs, nil
	case "p90":
		return stats.P90LatencyMs, nil
	case "p95":
		// Approximate p95 from p90 and p99
		return (stats.P90LatencyMs + stats.P99LatencyMs) / 2, nil
	case "p99":
		return stats.P99LatencyMs, nil
	case "avg", "mean":
		return stats.MeanLatencyMs, nil
	case "min":
		return stats.MinLatencyMs, nil
	case "max":
		return stats.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for %s", aggregate, MetricProcessingTime)
	}
}

func countOrRate(aggregate string, n, total int64) (float64, error) {
	switch aggregate {
	case "count":
		return float64(n), nil
	case "rate":
		if total == 0 {
			return 0, nil
		}
		return float64(n) / float64(total), nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q (use 'count' or 'rate')", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	// Handle floating point comparison with small epsilon
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
