package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "lagmeter",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Load control flags
	flags.IntP("concurrency", "c", 1, "Number of concurrent workers")
	flags.IntP("rate", "r", 0, "Events per second limit (0 means unlimited)")
	flags.DurationP("duration", "d", 0, "How long to run (e.g. 30s, 1m)")
	flags.IntP("total", "t", 0, "Total number of events to process (0 means unlimited)")
	flags.Int("retries", 0, "Number of retries per failed event")
	flags.Duration("retry-delay", 0, "Base delay between retries (doubles per attempt)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing events (uniform or poisson)")

	// Source flags
	flags.String("source", string(SourceGenerator), "Event source: 'generator', 'kafka' or 'replay'")
	flags.Duration("generator-skew", 0, "How far generated event time trails the clock")
	flags.Duration("generator-jitter", 0, "Spread of generated event time around the skewed clock")
	flags.String("generator-topic", "", "Topic name attached to generated events")
	flags.Int64("seed", 0, "Seed for the generator and simulated handler")
	flags.StringSlice("kafka-brokers", nil, "Kafka seed brokers (repeatable or comma separated)")
	flags.String("kafka-topic", "", "Kafka topic to consume")
	flags.String("kafka-group", "", "Kafka consumer group")
	flags.String("kafka-client-id", "lagmeter", "Kafka client ID")
	flags.String("kafka-timestamp-field", "", "JSON path to the event time in the record payload")
	flags.Bool("kafka-reset-to-start", false, "Consume from the earliest offset when the group has no commit")

	// Replay flags
	flags.String("replay-file", "", "Recorded events to replay (CSV, JSON array or JSON lines)")
	flags.String("replay-format", "", "Dataset format: csv, json or jsonl (default: from the file extension)")
	flags.String("replay-id-field", "", "Record field holding the event ID (default \"id\")")
	flags.String("replay-time-field", "", "Record field holding the event time (default \"timestamp\")")
	flags.String("replay-topic-field", "", "Record field holding the topic")
	flags.String("replay-key-field", "", "Record field holding the record key")
	flags.String("replay-topic", "", "Topic for records without a topic field")
	flags.String("replay-payload-template", "", "Payload template; {{field}} is filled from the record")
	flags.Bool("replay-rebase", false, "Shift recorded times so the first event is stamped now")

	// Handler flags
	flags.Duration("handler-delay", 0, "Simulated processing time per event")
	flags.Duration("handler-jitter", 0, "Extra random processing time per event")
	flags.Float64("failure-rate", 0, "Fraction of events the simulated handler fails (0..1)")
	flags.Float64("ignore-rate", 0, "Fraction of events the simulated handler ignores (0..1)")

	// Metrics flags
	flags.String("metrics-addr", "", "Listen address for the Prometheus endpoint (empty disables)")
	flags.String("metrics-path", "/metrics", "HTTP path for the Prometheus endpoint")
	flags.String("metrics-namespace", "lagmeter", "Prometheus metric namespace")
	flags.String("metrics-subsystem", "", "Prometheus metric subsystem")
	flags.StringToString("metrics-label", nil, "Constant label key=value attached to exported metrics")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP endpoint for traces (empty disables)")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: 'grpc' or 'http'")
	flags.String("tracing-service-name", "", "Service name reported with spans")
	flags.Float64("tracing-sample-rate", 1.0, "Trace sampling ratio (0..1)")
	flags.Bool("tracing-insecure", false, "Disable TLS for the OTLP exporter")
	flags.Bool("tracing-propagate", false, "Continue upstream traces found in record headers")

	// Output flags
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", "logfmt", "Log format: logfmt or json")
	flags.StringP("output", "o", string(OutputText), "Report format: text, json or yaml")
	flags.Duration("progress-interval", time.Second, "Progress line interval (0 disables)")
	flags.Bool("dashboard", false, "Show live terminal dashboard with the latency gauge")
	flags.Bool("fail-on-error", false, "Exit non-zero when any event fails")
	flags.String("config", "", "Path to configuration file (JSON, YAML or TOML)")

	// Threshold flags
	flags.StringSlice("threshold", nil, "Run assertions (repeatable, e.g., 'processing_time:p99 < 50', 'latency:value <= 500')")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if err := overrideInt(fs, "concurrency", &cfg.Concurrency); err != nil {
		return err
	}
	if err := overrideInt(fs, "rate", &cfg.Rate); err != nil {
		return err
	}
	if err := overrideDuration(fs, "duration", &cfg.Duration); err != nil {
		return err
	}
	if err := overrideInt(fs, "total", &cfg.Total); err != nil {
		return err
	}
	if err := overrideInt(fs, "retries", &cfg.Retries); err != nil {
		return err
	}
	if err := overrideDuration(fs, "retry-delay", &cfg.RetryDelay); err != nil {
		return err
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}

	if fs.Changed("source") {
		val, err := fs.GetString("source")
		if err != nil {
			return err
		}
		cfg.Source = SourceType(strings.ToLower(strings.TrimSpace(val)))
	}
	if err := overrideDuration(fs, "generator-skew", &cfg.Generator.Skew); err != nil {
		return err
	}
	if err := overrideDuration(fs, "generator-jitter", &cfg.Generator.Jitter); err != nil {
		return err
	}
	if err := overrideString(fs, "generator-topic", &cfg.Generator.Topic); err != nil {
		return err
	}
	if fs.Changed("seed") {
		val, err := fs.GetInt64("seed")
		if err != nil {
			return err
		}
		cfg.Generator.Seed = val
		cfg.Handler.Seed = val
	}
	if fs.Changed("kafka-brokers") {
		val, err := fs.GetStringSlice("kafka-brokers")
		if err != nil {
			return err
		}
		cfg.Kafka.Brokers = val
	}
	if err := overrideString(fs, "kafka-topic", &cfg.Kafka.Topic); err != nil {
		return err
	}
	if err := overrideString(fs, "kafka-group", &cfg.Kafka.Group); err != nil {
		return err
	}
	if err := overrideString(fs, "kafka-client-id", &cfg.Kafka.ClientID); err != nil {
		return err
	}
	if err := overrideString(fs, "kafka-timestamp-field", &cfg.Kafka.TimestampField); err != nil {
		return err
	}
	if err := overrideBool(fs, "kafka-reset-to-start", &cfg.Kafka.ResetToStart); err != nil {
		return err
	}

	for name, dst := range map[string]*string{
		"replay-file":             &cfg.Replay.Path,
		"replay-format":           &cfg.Replay.Format,
		"replay-id-field":         &cfg.Replay.IDField,
		"replay-time-field":       &cfg.Replay.TimeField,
		"replay-topic-field":      &cfg.Replay.TopicField,
		"replay-key-field":        &cfg.Replay.KeyField,
		"replay-topic":            &cfg.Replay.Topic,
		"replay-payload-template": &cfg.Replay.PayloadTemplate,
	} {
		if err := overrideString(fs, name, dst); err != nil {
			return err
		}
	}
	if err := overrideBool(fs, "replay-rebase", &cfg.Replay.Rebase); err != nil {
		return err
	}

	if err := overrideDuration(fs, "handler-delay", &cfg.Handler.Delay); err != nil {
		return err
	}
	if err := overrideDuration(fs, "handler-jitter", &cfg.Handler.Jitter); err != nil {
		return err
	}
	if err := overrideFloat(fs, "failure-rate", &cfg.Handler.FailureRate); err != nil {
		return err
	}
	if err := overrideFloat(fs, "ignore-rate", &cfg.Handler.IgnoreRate); err != nil {
		return err
	}

	if err := overrideString(fs, "metrics-addr", &cfg.Metrics.ListenAddr); err != nil {
		return err
	}
	if err := overrideString(fs, "metrics-path", &cfg.Metrics.Path); err != nil {
		return err
	}
	if err := overrideString(fs, "metrics-namespace", &cfg.Metrics.Namespace); err != nil {
		return err
	}
	if err := overrideString(fs, "metrics-subsystem", &cfg.Metrics.Subsystem); err != nil {
		return err
	}
	if fs.Changed("metrics-label") {
		val, err := fs.GetStringToString("metrics-label")
		if err != nil {
			return err
		}
		if cfg.Metrics.ConstLabels == nil {
			cfg.Metrics.ConstLabels = map[string]string{}
		}
		for k, v := range val {
			cfg.Metrics.ConstLabels[k] = v
		}
	}

	if err := overrideString(fs, "tracing-endpoint", &cfg.Tracing.Endpoint); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-protocol", &cfg.Tracing.Protocol); err != nil {
		return err
	}
	if err := overrideString(fs, "tracing-service-name", &cfg.Tracing.ServiceName); err != nil {
		return err
	}
	if err := overrideFloat(fs, "tracing-sample-rate", &cfg.Tracing.SampleRate); err != nil {
		return err
	}
	if err := overrideBool(fs, "tracing-insecure", &cfg.Tracing.Insecure); err != nil {
		return err
	}
	if fs.Changed("tracing-propagate") {
		val, err := fs.GetBool("tracing-propagate")
		if err != nil {
			return err
		}
		cfg.Tracing.Propagate = &val
	}

	if err := overrideString(fs, "log-level", &cfg.Log.Level); err != nil {
		return err
	}
	if err := overrideString(fs, "log-format", &cfg.Log.Format); err != nil {
		return err
	}
	if fs.Changed("output") {
		val, err := fs.GetString("output")
		if err != nil {
			return err
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}
	if err := overrideDuration(fs, "progress-interval", &cfg.ProgressInterval); err != nil {
		return err
	}
	if err := overrideBool(fs, "dashboard", &cfg.Dashboard); err != nil {
		return err
	}
	if err := overrideBool(fs, "fail-on-error", &cfg.FailOnError); err != nil {
		return err
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}
	return nil
}

func overrideString(fs *pflag.FlagSet, name string, dst *string) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetString(name)
	if err != nil {
		return err
	}
	*dst = strings.TrimSpace(val)
	return nil
}

func overrideInt(fs *pflag.FlagSet, name string, dst *int) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetInt(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideFloat(fs *pflag.FlagSet, name string, dst *float64) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetFloat64(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideBool(fs *pflag.FlagSet, name string, dst *bool) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetBool(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}

func overrideDuration(fs *pflag.FlagSet, name string, dst *time.Duration) error {
	if !fs.Changed(name) {
		return nil
	}
	val, err := fs.GetDuration(name)
	if err != nil {
		return err
	}
	*dst = val
	return nil
}
