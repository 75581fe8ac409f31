// Package metrics aggregates processing statistics and exports monitor gauges.
//
// # Collector
//
// The [Collector] type is a monitor.MessageMonitor that times each message from
// ingestion to its terminal callback and aggregates the results:
//
//	collector := metrics.NewCollector()
//	collector.Start()
//
//	cb := collector.OnMessageIngested(msg)
//	cb.ReportSuccess()
//
//	stats := collector.Stats(collector.Elapsed())
//
// [Stats] carries outcome counts (successes, failures, ignored), processing time
// percentiles (P50, P90, P99) from an HDR histogram, and events per second.
//
// # Export
//
// Any monitor.MetricSet can be published without copying its values:
//
//	reg := prometheus.NewRegistry()
//	reg.MustRegister(metrics.NewGaugeSetCollector(mon, metrics.GaugeSetOptions{Namespace: "lagmeter"}))
//	srv := metrics.NewServer(":9090", "/metrics", reg)
//
//	_, err := metrics.RegisterObservableGauges(otel.Meter("lagmeter"), "lagmeter.", mon)
//
// Both exporters read the gauges at scrape or collection time, so every scrape
// observes the current value.
//
// # Thread Safety
//
// The Collector guards its histogram with a mutex. It's safe to report outcomes
// from multiple goroutines.
package metrics
