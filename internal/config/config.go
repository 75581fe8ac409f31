package config

import (
	"fmt"
	"os"
	"strings"
	"time"
)

type SourceType string

const (
	SourceGenerator SourceType = "generator"
	SourceKafka     SourceType = "kafka"
	SourceReplay    SourceType = "replay"
)

type OutputFormat string

const (
	OutputText OutputFormat = "text"
	OutputJSON OutputFormat = "json"
	OutputYAML OutputFormat = "yaml"
)

type Config struct {
	Concurrency      int             `mapstructure:"concurrency"`
	Rate             int             `mapstructure:"rate"`
	Duration         time.Duration   `mapstructure:"duration"`
	Total            int             `mapstructure:"total"`
	Retries          int             `mapstructure:"retries"`
	RetryDelay       time.Duration   `mapstructure:"retry_delay"`
	Arrival          ArrivalConfig   `mapstructure:"arrival"`
	Source           SourceType      `mapstructure:"source"`
	Generator        GeneratorConfig `mapstructure:"generator"`
	Handler          HandlerConfig   `mapstructure:"handler"`
	Kafka            KafkaConfig     `mapstructure:"kafka"`
	Replay           ReplayConfig    `mapstructure:"replay"`
	Metrics          MetricsConfig   `mapstructure:"metrics"`
	Tracing          TracingConfig   `mapstructure:"tracing"`
	Log              LogConfig       `mapstructure:"log"`
	Output           OutputFormat    `mapstructure:"output"`
	ProgressInterval time.Duration   `mapstructure:"progress_interval"`
	Dashboard        bool            `mapstructure:"dashboard"`
	FailOnError      bool            `mapstructure:"fail_on_error"`
	Thresholds       []string        `mapstructure:"thresholds"`
	ConfigFile       string          `mapstructure:"-"`
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

type GeneratorConfig struct {
	Skew   time.Duration `mapstructure:"skew"`   // how far event time trails the clock
	Jitter time.Duration `mapstructure:"jitter"` // event time spread around the skewed clock
	Seed   int64         `mapstructure:"seed"`
	Topic  string        `mapstructure:"topic"`
}

type HandlerConfig struct {
	Delay       time.Duration `mapstructure:"delay"`
	Jitter      time.Duration `mapstructure:"jitter"`
	FailureRate float64       `mapstructure:"failure_rate"`
	IgnoreRate  float64       `mapstructure:"ignore_rate"`
	Seed        int64         `mapstructure:"seed"`
}

type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	Topic          string   `mapstructure:"topic"`
	Group          string   `mapstructure:"group"`
	ClientID       string   `mapstructure:"client_id"`
	TimestampField string   `mapstructure:"timestamp_field"` // JSON path in the payload; empty uses the record timestamp
	ResetToStart   bool     `mapstructure:"reset_to_start"`
}

// ReplayConfig selects a recorded dataset to replay and maps its fields onto events.
type ReplayConfig struct {
	Path            string `mapstructure:"path"`
	Format          string `mapstructure:"format"` // csv, json or jsonl; empty infers from the extension
	IDField         string `mapstructure:"id_field"`
	TimeField       string `mapstructure:"time_field"`
	TopicField      string `mapstructure:"topic_field"`
	KeyField        string `mapstructure:"key_field"`
	Topic           string `mapstructure:"topic"`
	PayloadTemplate string `mapstructure:"payload_template"`
	Rebase          bool   `mapstructure:"rebase"`
}

type MetricsConfig struct {
	ListenAddr  string            `mapstructure:"listen_addr"` // empty disables the /metrics server
	Path        string            `mapstructure:"path"`
	Namespace   string            `mapstructure:"namespace"`
	Subsystem   string            `mapstructure:"subsystem"`
	ConstLabels map[string]string `mapstructure:"const_labels"`
}

type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // grpc or http
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"` // nil follows Enabled
}

// Enabled reports whether an OTLP endpoint is configured directly or through the environment.
func (t TracingConfig) Enabled() bool {
	return strings.TrimSpace(t.Endpoint) != "" || os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") != ""
}

// ShouldPropagate reports whether upstream trace context should be continued.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.Total < 0 {
		issues = append(issues, "total must be >= 0")
	}
	if c.Retries < 0 {
		issues = append(issues, "retries must be >= 0")
	}
	if c.RetryDelay < 0 {
		issues = append(issues, "retry_delay must be >= 0")
	}
	if c.Duration < 0 {
		issues = append(issues, "duration must be >= 0")
	}
	if c.ProgressInterval < 0 {
		issues = append(issues, "progress_interval must be >= 0")
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateSource(c)...)
	issues = append(issues, validateHandlerConfig(c.Handler)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)
	issues = append(issues, validateLogConfig(c.Log)...)

	switch c.Output {
	case "", OutputText, OutputJSON, OutputYAML:
	default:
		issues = append(issues, fmt.Sprintf("output: must be 'text', 'json', or 'yaml', got %q", c.Output))
	}

	if c.Metrics.Path != "" && !strings.HasPrefix(c.Metrics.Path, "/") {
		issues = append(issues, "metrics: path must start with '/'")
	}
	if c.Dashboard && c.Output != OutputText {
		issues = append(issues, "dashboard and json/yaml output are mutually exclusive")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}

	return nil
}

// Warnings lists settings that are valid but likely unintended.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d workers)", c.Concurrency))
	}
	if c.sourceType() == SourceGenerator && c.Total == 0 && c.Duration == 0 {
		warnings = append(warnings, "generator has no total or duration; the run ends only on interrupt")
	}
	if c.Tracing.Insecure && c.Tracing.Enabled() {
		warnings = append(warnings, "OTLP exporter TLS is disabled (insecure: true)")
	}
	return warnings
}

func (c Config) sourceType() SourceType {
	if c.Source == "" {
		return SourceGenerator
	}
	return c.Source
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

func validateSource(c Config) []string {
	var issues []string
	switch c.sourceType() {
	case SourceGenerator:
		if c.Generator.Skew < 0 {
			issues = append(issues, "generator: skew must be >= 0")
		}
		if c.Generator.Jitter < 0 {
			issues = append(issues, "generator: jitter must be >= 0")
		}
	case SourceKafka:
		if len(c.Kafka.Brokers) == 0 {
			issues = append(issues, "kafka: at least one broker is required")
		}
		for idx, b := range c.Kafka.Brokers {
			if strings.TrimSpace(b) == "" {
				issues = append(issues, fmt.Sprintf("kafka: brokers[%d] is empty", idx))
			}
		}
		if strings.TrimSpace(c.Kafka.Topic) == "" {
			issues = append(issues, "kafka: topic is required")
		}
	case SourceReplay:
		if strings.TrimSpace(c.Replay.Path) == "" {
			issues = append(issues, "replay: path is required")
		}
		switch strings.ToLower(c.Replay.Format) {
		case "", "csv", "json", "jsonl":
		default:
			issues = append(issues, fmt.Sprintf("replay: format must be 'csv', 'json' or 'jsonl', got %q", c.Replay.Format))
		}
	default:
		issues = append(issues, fmt.Sprintf("source: must be 'generator', 'kafka' or 'replay', got %q", c.Source))
	}
	return issues
}

func validateHandlerConfig(h HandlerConfig) []string {
	var issues []string
	if h.Delay < 0 {
		issues = append(issues, "handler: delay must be >= 0")
	}
	if h.Jitter < 0 {
		issues = append(issues, "handler: jitter must be >= 0")
	}
	if h.FailureRate < 0 || h.FailureRate > 1 {
		issues = append(issues, "handler: failure_rate must be between 0 and 1")
	}
	if h.IgnoreRate < 0 || h.IgnoreRate > 1 {
		issues = append(issues, "handler: ignore_rate must be between 0 and 1")
	}
	if h.FailureRate+h.IgnoreRate > 1 {
		issues = append(issues, "handler: failure_rate + ignore_rate must be <= 1")
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, "tracing: sample_rate must be between 0.0 and 1.0")
	}
	return issues
}

func validateLogConfig(l LogConfig) []string {
	var issues []string
	switch strings.ToLower(l.Level) {
	case "", "debug", "info", "warn", "error":
	default:
		issues = append(issues, fmt.Sprintf("log: level must be debug, info, warn or error, got %q", l.Level))
	}
	switch strings.ToLower(l.Format) {
	case "", "logfmt", "json":
	default:
		issues = append(issues, fmt.Sprintf("log: format must be 'logfmt' or 'json', got %q", l.Format))
	}
	return issues
}
