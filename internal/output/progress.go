package output

import (
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
)

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	collector *metrics.Collector
	gauges    monitor.MetricSet
	ticker    *time.Ticker
	done      chan struct{}
	finished  chan struct{}
	writer    io.Writer
	active    int32
	start     time.Time
}

// NewProgressReporter creates a progress reporter that updates at the given interval.
// gauges may be nil.
func NewProgressReporter(collector *metrics.Collector, gauges monitor.MetricSet, interval time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		collector: collector,
		gauges:    gauges,
		ticker:    time.NewTicker(interval),
		done:      make(chan struct{}),
		finished:  make(chan struct{}),
		writer:    writer,
		start:     time.Now(),
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return // already running
	}
	go p.run()
}

// Stop halts progress updates.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		<-p.finished
	}
	p.ticker.Stop()
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, p.line(time.Since(p.start)))
		case <-p.done:
			return
		}
	}
}

func (p *ProgressReporter) line(elapsed time.Duration) string {
	stats := p.collector.Stats(elapsed)
	line := fmt.Sprintf("\rEvents: %d | Successes: %d | Failures: %d | Ignored: %d | EPS: %.1f",
		stats.Total, stats.Successes, stats.Failures, stats.Ignored, stats.EventsPerSec)
	if p.gauges != nil {
		snapshot := metrics.Snapshot(p.gauges)
		if v, ok := snapshot[monitor.MetricLatency]; ok {
			line += fmt.Sprintf(" | Latency: %dms", v)
		}
	}
	return line
}
