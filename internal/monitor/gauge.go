package monitor

// Gauge is a readable instantaneous value.
type Gauge interface {
	Value() int64
}

// GaugeFunc adapts a function to Gauge. The function runs on every read.
type GaugeFunc func() int64

// Value calls f.
func (f GaugeFunc) Value() int64 { return f() }

// MetricSet exposes a fixed set of named gauges to exporters.
type MetricSet interface {
	Metrics() map[string]Gauge
}
