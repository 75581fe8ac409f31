// Package monitor tracks how far message processing lags behind message ingestion.
//
// A [LatencyMonitor] keeps two high-water marks: the newest timestamp of any message
// admitted into a pipeline and the newest timestamp of any message whose processing
// finished. The published latency is the spread between the two:
//
//	mon := monitor.NewLatencyMonitor()
//
//	cb := mon.OnMessageIngested(msg)
//	if err := process(msg); err != nil {
//		cb.ReportFailure(err)
//	} else {
//		cb.ReportSuccess()
//	}
//
//	lag := mon.Latency() // milliseconds
//
// Completion is recorded with the message's own timestamp, not with the time processing
// finished, so the gauge measures event-time spread rather than processing duration. Both
// marks only move forward and are updated independently, so the value is a rolling
// approximation and may briefly go negative when messages complete out of order.
//
// # Thread Safety
//
// Every operation is lock-free and safe for concurrent use. Each cell is updated atomically;
// readers may observe a latency computed from marks that a concurrent writer is changing.
//
// # Export
//
// [LatencyMonitor] implements [MetricSet], exposing a single live gauge named
// [MetricLatency]. Exporters in the metrics package publish any MetricSet to
// Prometheus or OpenTelemetry.
package monitor
