package monitor

import "sync/atomic"

// Unset marks a high-water mark that has not observed any timestamp yet.
const Unset int64 = -1

// MetricLatency is the name under which the latency gauge is exported.
const MetricLatency = "latency"

// LatencyMonitor measures the difference in message timestamps between the last
// ingested and the last processed message.
type LatencyMonitor struct {
	lastAdmitted  atomic.Int64
	lastCompleted atomic.Int64
	latency       atomic.Int64
}

// NewLatencyMonitor returns a monitor with both marks unset and a latency of zero.
func NewLatencyMonitor() *LatencyMonitor {
	m := &LatencyMonitor{}
	m.lastAdmitted.Store(Unset)
	m.lastCompleted.Store(Unset)
	return m
}

// OnMessageIngested records admission of msg and returns the callback that records
// its completion. Absent messages are not tracked and yield NoOpCallback.
func (m *LatencyMonitor) OnMessageIngested(msg Message) Callback {
	if IsAbsent(msg) {
		return NoOpCallback
	}
	ts := msg.Timestamp().UnixMilli()
	m.RecordAdmission(ts)
	return &latencyCallback{monitor: m, timestamp: ts}
}

// RecordAdmission raises the admitted mark to timestampMillis if it is a new maximum.
func (m *LatencyMonitor) RecordAdmission(timestampMillis int64) {
	m.updateIfMax(&m.lastAdmitted, timestampMillis)
}

// RecordCompletion raises the completed mark to timestampMillis if it is a new maximum.
// The timestamp is the one the message was admitted with.
func (m *LatencyMonitor) RecordCompletion(timestampMillis int64) {
	m.updateIfMax(&m.lastCompleted, timestampMillis)
}

// Latency returns the published gap in milliseconds.
func (m *LatencyMonitor) Latency() int64 {
	return m.latency.Load()
}

// LastAdmitted returns the admitted high-water mark, or Unset.
func (m *LatencyMonitor) LastAdmitted() int64 {
	return m.lastAdmitted.Load()
}

// LastCompleted returns the completed high-water mark, or Unset.
func (m *LatencyMonitor) LastCompleted() int64 {
	return m.lastCompleted.Load()
}

// Metrics exposes the live latency gauge.
func (m *LatencyMonitor) Metrics() map[string]Gauge {
	return map[string]Gauge{
		MetricLatency: GaugeFunc(m.Latency),
	}
}

func (m *LatencyMonitor) updateIfMax(cell *atomic.Int64, timestamp int64) {
	for {
		current := cell.Load()
		if timestamp <= current || cell.CompareAndSwap(current, timestamp) {
			break
		}
	}
	m.recompute()
}

func (m *LatencyMonitor) recompute() {
	completed := m.lastCompleted.Load()
	admitted := m.lastAdmitted.Load()
	if admitted == Unset || completed == Unset {
		m.latency.Store(0)
		return
	}
	m.latency.Store(admitted - completed)
}

type latencyCallback struct {
	monitor   *LatencyMonitor
	timestamp int64
}

func (c *latencyCallback) ReportSuccess()      { c.monitor.RecordCompletion(c.timestamp) }
func (c *latencyCallback) ReportFailure(error) { c.monitor.RecordCompletion(c.timestamp) }
func (c *latencyCallback) ReportIgnored()      { c.monitor.RecordCompletion(c.timestamp) }
