package metrics

import (
	"fmt"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"

	"github.com/torosent/lagmeter/internal/monitor"
)

// Outcome is the terminal state of a processed message.
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeFailure Outcome = "failure"
	OutcomeIgnored Outcome = "ignored"
)

// Collector records per-message processing time and outcome in a thread-safe manner.
// It is a monitor.MessageMonitor: processing time runs from ingestion to the callback.
type Collector struct {
	mu           sync.Mutex
	hist         *hdrhistogram.Histogram
	successes    int64
	failures     int64
	ignored      int64
	minLatency   time.Duration
	maxLatency   time.Duration
	sumLatency   time.Duration
	errorsByType map[string]int64
	start        time.Time
	now          func() time.Time
}

// Stats represents aggregated processing metrics.
type Stats struct {
	Total        int64         `json:"total" yaml:"total"`
	Successes    int64         `json:"successes" yaml:"successes"`
	Failures     int64         `json:"failures" yaml:"failures"`
	Ignored      int64         `json:"ignored" yaml:"ignored"`
	MinLatency   time.Duration `json:"-" yaml:"-"`
	MaxLatency   time.Duration `json:"-" yaml:"-"`
	MeanLatency  time.Duration `json:"-" yaml:"-"`
	P50Latency   time.Duration `json:"-" yaml:"-"`
	P90Latency   time.Duration `json:"-" yaml:"-"`
	P99Latency   time.Duration `json:"-" yaml:"-"`
	Duration     time.Duration `json:"-" yaml:"-"`
	EventsPerSec float64       `json:"events_per_sec" yaml:"events_per_sec"`

	// Millisecond fields for JSON and YAML reports.
	MinLatencyMs  float64        `json:"min_processing_ms" yaml:"min_processing_ms"`
	MaxLatencyMs  float64        `json:"max_processing_ms" yaml:"max_processing_ms"`
	MeanLatencyMs float64        `json:"mean_processing_ms" yaml:"mean_processing_ms"`
	P50LatencyMs  float64        `json:"p50_processing_ms" yaml:"p50_processing_ms"`
	P90LatencyMs  float64        `json:"p90_processing_ms" yaml:"p90_processing_ms"`
	P99LatencyMs  float64        `json:"p99_processing_ms" yaml:"p99_processing_ms"`
	DurationMs    float64        `json:"duration_ms" yaml:"duration_ms"`
	Errors        map[string]int `json:"errors,omitempty" yaml:"errors,omitempty"`
}

func NewCollector() *Collector {
	// Track processing times from 1µs up to 60s with 3 significant figures.
	h := hdrhistogram.New(1, 60_000_000, 3)
	return &Collector{
		hist:         h,
		errorsByType: make(map[string]int64),
		start:        time.Now(),
		now:          time.Now,
	}
}

// Start marks the beginning of a run for rate calculations.
func (c *Collector) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.start = c.now()
}

// Elapsed returns the time since Start.
func (c *Collector) Elapsed() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now().Sub(c.start)
}

// OnMessageIngested starts timing msg. Absent messages are not timed.
func (c *Collector) OnMessageIngested(msg monitor.Message) monitor.Callback {
	if monitor.IsAbsent(msg) {
		return monitor.NoOpCallback
	}
	return &processingCallback{collector: c, started: c.now()}
}

// RecordProcessing records one processed message.
func (c *Collector) RecordProcessing(latency time.Duration, outcome Outcome, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if latency > 0 {
		us := latency.Microseconds()
		if us < c.hist.LowestTrackableValue() {
			us = c.hist.LowestTrackableValue()
		}
		if us > c.hist.HighestTrackableValue() {
			us = c.hist.HighestTrackableValue()
		}
		_ = c.hist.RecordValue(us)
	}
	c.sumLatency += latency

	if c.minLatency == 0 || latency < c.minLatency {
		c.minLatency = latency
	}
	if latency > c.maxLatency {
		c.maxLatency = latency
	}

	switch outcome {
	case OutcomeFailure:
		c.failures++
		errorType := "unknown"
		if err != nil {
			errorType = fmt.Sprintf("%T", err)
		}
		if len(errorType) > 30 {
			errorType = errorType[len(errorType)-30:]
		}
		c.errorsByType[errorType]++
	case OutcomeIgnored:
		c.ignored++
	default:
		c.successes++
	}
}

// Stats computes and returns current aggregated statistics.
func (c *Collector) Stats(elapsed time.Duration) Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	total := c.successes + c.failures + c.ignored
	stats := Stats{
		Total:      total,
		Successes:  c.successes,
		Failures:   c.failures,
		Ignored:    c.ignored,
		MinLatency: c.minLatency,
		MaxLatency: c.maxLatency,
	}

	if total > 0 {
		stats.MeanLatency = time.Duration(int64(c.sumLatency) / total)
	}

	if c.hist.TotalCount() > 0 {
		stats.P50Latency = time.Duration(c.hist.ValueAtQuantile(50)) * time.Microsecond
		stats.P90Latency = time.Duration(c.hist.ValueAtQuantile(90)) * time.Microsecond
		stats.P99Latency = time.Duration(c.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	stats.MinLatencyMs = toMillis(stats.MinLatency)
	stats.MaxLatencyMs = toMillis(stats.MaxLatency)
	stats.MeanLatencyMs = toMillis(stats.MeanLatency)
	stats.P50LatencyMs = toMillis(stats.P50Latency)
	stats.P90LatencyMs = toMillis(stats.P90Latency)
	stats.P99LatencyMs = toMillis(stats.P99Latency)

	stats.Duration = elapsed
	stats.DurationMs = toMillis(elapsed)
	if elapsed > 0 && total > 0 {
		stats.EventsPerSec = float64(total) / elapsed.Seconds()
	}

	if len(c.errorsByType) > 0 {
		stats.Errors = make(map[string]int, len(c.errorsByType))
		for k, v := range c.errorsByType {
			stats.Errors[k] = int(v)
		}
	}

	return stats
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

type processingCallback struct {
	collector *Collector
	started   time.Time
}

func (p *processingCallback) ReportSuccess() {
	p.collector.RecordProcessing(p.collector.now().Sub(p.started), OutcomeSuccess, nil)
}

func (p *processingCallback) ReportFailure(cause error) {
	p.collector.RecordProcessing(p.collector.now().Sub(p.started), OutcomeFailure, cause)
}

func (p *processingCallback) ReportIgnored() {
	p.collector.RecordProcessing(p.collector.now().Sub(p.started), OutcomeIgnored, nil)
}
