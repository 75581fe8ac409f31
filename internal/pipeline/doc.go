// Package pipeline drives a concurrent message-processing pipeline through a monitor.
//
// The pipeline package is the input side of lagmeter. It pulls events from a [Source],
// hands each one to a worker, and brackets every processing attempt with the
// monitor protocol:
//   - OnMessageIngested before the [Handler] runs
//   - exactly one of ReportSuccess, ReportFailure or ReportIgnored after it returns
//
// # Basic Usage
//
//	mon := monitor.NewLatencyMonitor()
//	r := pipeline.New(pipeline.Options{
//		Concurrency:   8,
//		TotalEvents:   10000,
//		RatePerSecond: 500,
//		Source:        pipeline.NewGeneratorSource(pipeline.GeneratorOptions{Skew: 2 * time.Second}),
//		Handler:       pipeline.NewSimulatedHandler(pipeline.SimulatedOptions{Delay: 5 * time.Millisecond}),
//		Monitor:       mon,
//	})
//	result := r.Run(ctx)
//
// # Sources
//
//   - [GeneratorSource]: synthetic events stamped in the past with optional jitter
//   - [KafkaSource]: records consumed with franz-go; event time is the record
//     timestamp or a JSON payload field
//   - [ReplaySource]: recorded events from a CSV, JSON or JSON lines dataset,
//     stamped with their recorded times or rebased onto the replay clock
//
// # Outcomes
//
// A handler returning nil is a success, [ErrIgnored] (or an error wrapping it) is an
// ignored event, and any other error is a failure. All three complete the event.
//
// # Middleware
//
//   - [WithRetry]: retry failed attempts with backoff before completing
//   - [WithLogging]: log failures
//   - [WithTracing]: one span per processing attempt
//
// # Pacing
//
// Events are released uniformly through a rate.Limiter ([ArrivalModelUniform]) or with
// exponential inter-arrival gaps ([ArrivalModelPoisson]).
package pipeline
