package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"

	"github.com/torosent/lagmeter/internal/config"
	"github.com/torosent/lagmeter/internal/dashboard"
	"github.com/torosent/lagmeter/internal/feeder"
	"github.com/torosent/lagmeter/internal/logging"
	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
	"github.com/torosent/lagmeter/internal/output"
	"github.com/torosent/lagmeter/internal/pipeline"
	"github.com/torosent/lagmeter/internal/threshold"
	"github.com/torosent/lagmeter/internal/tracing"
)

const (
	baseRetryDelay  = 100 * time.Millisecond
	maxRetryDelay   = 5 * time.Second
	shutdownTimeout = 5 * time.Second
)

type jitterSource struct {
	mu  sync.Mutex
	rnd *rand.Rand
}

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger, err := logging.New(stderr, cfg.Log.Format, cfg.Log.Level)
	if err != nil {
		return err
	}
	for _, w := range cfg.Warnings() {
		level.Warn(logger).Log("msg", w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	provider, err := tracing.Init(ctx, cfg.Tracing, tracing.ConsumerFromConfig(cfg))
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
		defer done()
		if err := provider.Shutdown(shutdownCtx); err != nil {
			level.Warn(logger).Log("msg", "tracing shutdown failed", "err", err)
		}
	}()

	latency := monitor.NewLatencyMonitor()
	collector := metrics.NewCollector()

	reg := prometheus.NewRegistry()
	if err := reg.Register(metrics.NewGaugeSetCollector(latency, metrics.GaugeSetOptions{
		Namespace:   cfg.Metrics.Namespace,
		Subsystem:   cfg.Metrics.Subsystem,
		ConstLabels: prometheus.Labels(cfg.Metrics.ConstLabels),
	})); err != nil {
		return fmt.Errorf("register gauges: %w", err)
	}
	if cfg.Metrics.ListenAddr != "" {
		srv := metrics.NewServer(cfg.Metrics.ListenAddr, cfg.Metrics.Path, reg)
		go func() {
			level.Info(logger).Log("msg", "serving metrics", "addr", cfg.Metrics.ListenAddr, "path", cfg.Metrics.Path)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				level.Error(logger).Log("msg", "metrics server failed", "err", err)
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), shutdownTimeout)
			defer done()
			_ = srv.Shutdown(shutdownCtx)
		}()
	}

	otelReg, err := metrics.RegisterObservableGauges(otel.GetMeterProvider().Meter("lagmeter"), cfg.Metrics.Namespace, latency)
	if err != nil {
		return fmt.Errorf("register otel gauges: %w", err)
	}
	defer func() { _ = otelReg.Unregister() }()

	source, err := newSource(cfg, logger)
	if err != nil {
		return err
	}
	defer source.Close()

	var tracer trace.Tracer
	if cfg.Tracing.Enabled() {
		tracer = provider.Tracer()
	}
	handler := newHandler(cfg, logger, tracer)

	r := pipeline.New(pipeline.Options{
		Concurrency:   cfg.Concurrency,
		TotalEvents:   cfg.Total,
		Duration:      cfg.Duration,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toPipelineArrivalModel(cfg.Arrival.Model),
		Source:        source,
		Handler:       handler,
		Monitor:       monitor.Multi(latency, collector),
		Logger:        logger,
		RandomSeed:    cfg.Generator.Seed,
	})

	var dash *dashboard.Dashboard
	if cfg.Dashboard {
		dash, err = dashboard.New(collector, latency, runInfo(cfg), cancel)
		if err != nil {
			return err
		}
		dash.Start()
	}

	var progress *output.ProgressReporter
	if cfg.Output == config.OutputText && cfg.ProgressInterval > 0 && !cfg.Dashboard {
		progress = output.NewProgressReporter(collector, latency, cfg.ProgressInterval, stdout)
		progress.Start()
	}

	level.Info(logger).Log("msg", "starting run", "source", cfg.Source, "concurrency", cfg.Concurrency)
	collector.Start()
	result := r.Run(ctx)

	if dash != nil {
		dash.Stop()
	}
	if progress != nil {
		progress.Stop()
		fmt.Fprintln(stdout)
	}

	report := output.Report{
		Stats:  collector.Stats(result.Duration),
		Gauges: metrics.Snapshot(latency),
	}
	thresholdResults := threshold.NewEvaluator(thresholds).Evaluate(report.Stats, report.Gauges)
	report.Thresholds = output.SummarizeThresholds(thresholdResults)
	switch cfg.Output {
	case config.OutputJSON:
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	case config.OutputYAML:
		if err := output.PrintYAMLReport(stdout, report); err != nil {
			return err
		}
	default:
		output.PrintReport(stdout, report)
	}

	if result.SourceErr != nil {
		return fmt.Errorf("source: %w", result.SourceErr)
	}
	if cfg.FailOnError && result.Failed > 0 {
		return fmt.Errorf("%d events failed", result.Failed)
	}
	if !threshold.AllPassed(thresholdResults) {
		return fmt.Errorf("%d of %d thresholds failed", report.Thresholds.Failed, report.Thresholds.Total)
	}
	return nil
}

func newSource(cfg *config.Config, logger log.Logger) (pipeline.Source, error) {
	switch cfg.Source {
	case config.SourceKafka:
		return pipeline.NewKafkaSource(pipeline.KafkaOptions{
			Brokers:        cfg.Kafka.Brokers,
			Topic:          cfg.Kafka.Topic,
			Group:          cfg.Kafka.Group,
			ClientID:       cfg.Kafka.ClientID,
			TimestampField: cfg.Kafka.TimestampField,
			ResetToStart:   cfg.Kafka.ResetToStart,
			Buffer:         cfg.Concurrency * 4,
		}, logger)
	case config.SourceReplay:
		dataset, err := feeder.Open(cfg.Replay.Path, feeder.Format(cfg.Replay.Format))
		if err != nil {
			return nil, fmt.Errorf("replay: %w", err)
		}
		level.Info(logger).Log("msg", "loaded replay dataset", "path", cfg.Replay.Path, "records", dataset.Len())
		return pipeline.NewReplaySource(dataset, pipeline.ReplayOptions{
			IDField:         cfg.Replay.IDField,
			TimeField:       cfg.Replay.TimeField,
			TopicField:      cfg.Replay.TopicField,
			KeyField:        cfg.Replay.KeyField,
			Topic:           cfg.Replay.Topic,
			PayloadTemplate: cfg.Replay.PayloadTemplate,
			Rebase:          cfg.Replay.Rebase,
		}), nil
	default:
		return pipeline.NewGeneratorSource(pipeline.GeneratorOptions{
			Skew:   cfg.Generator.Skew,
			Jitter: cfg.Generator.Jitter,
			Seed:   cfg.Generator.Seed,
			Topic:  cfg.Generator.Topic,
		}), nil
	}
}

// newHandler builds the processing chain. Spans cover single attempts and
// only the final outcome of the retries is logged.
func newHandler(cfg *config.Config, logger log.Logger, tracer trace.Tracer) pipeline.Handler {
	var h pipeline.Handler = pipeline.NewSimulatedHandler(pipeline.SimulatedOptions{
		Delay:       cfg.Handler.Delay,
		Jitter:      cfg.Handler.Jitter,
		FailureRate: cfg.Handler.FailureRate,
		IgnoreRate:  cfg.Handler.IgnoreRate,
		Seed:        cfg.Handler.Seed,
	})
	if tracer != nil {
		h = pipeline.WithTracing(h, tracer)
	}
	if cfg.Retries > 0 {
		h = pipeline.WithRetry(h, newRetryPolicy(cfg.Retries, cfg.RetryDelay))
	}
	return pipeline.WithLogging(h, logger)
}

func runInfo(cfg *config.Config) dashboard.RunInfo {
	info := dashboard.RunInfo{
		Source:      string(cfg.Source),
		Concurrency: cfg.Concurrency,
		Rate:        cfg.Rate,
		Arrival:     string(cfg.Arrival.Model),
		Duration:    cfg.Duration,
		Total:       cfg.Total,
		Retries:     cfg.Retries,
		ConfigFile:  cfg.ConfigFile,
	}
	switch cfg.Source {
	case config.SourceKafka:
		info.Topic = cfg.Kafka.Topic
	case config.SourceReplay:
		info.Topic = cfg.Replay.Path
	default:
		info.Topic = cfg.Generator.Topic
	}
	return info
}

func toPipelineArrivalModel(model config.ArrivalModel) pipeline.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return pipeline.ArrivalModelPoisson
	default:
		return pipeline.ArrivalModelUniform
	}
}

func newRetryPolicy(retries int, base time.Duration) pipeline.RetryPolicy {
	if base <= 0 {
		base = baseRetryDelay
	}
	source := &jitterSource{rnd: rand.New(rand.NewSource(time.Now().UnixNano()))}

	return pipeline.RetryPolicy{
		MaxAttempts: retries + 1,
		ShouldRetry: func(err error) bool {
			if err == nil {
				return false
			}
			return !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded)
		},
		DelayFunc: func(attempt int, err error) time.Duration {
			if attempt < 1 {
				attempt = 1
			}
			backoff := time.Duration(1<<uint(attempt-1)) * base
			if backoff > maxRetryDelay || backoff <= 0 {
				backoff = maxRetryDelay
			}
			return backoff + source.jitter(backoff/2)
		},
	}
}

func (j *jitterSource) jitter(max time.Duration) time.Duration {
	if j == nil || max <= 0 {
		return 0
	}
	j.mu.Lock()
	defer j.mu.Unlock()
	return time.Duration(j.rnd.Int63n(int64(max)))
}
