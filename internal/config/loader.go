package config

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

// NewLoader creates a new configuration Loader.
func NewLoader() *Loader {
	return &Loader{}
}

// Defaults returns the configuration used before any file or flag is applied.
func Defaults() *Config {
	return &Config{
		Concurrency:      1,
		Arrival:          ArrivalConfig{Model: ArrivalModelUniform},
		Source:           SourceGenerator,
		Kafka:            KafkaConfig{ClientID: "lagmeter"},
		Metrics:          MetricsConfig{Path: "/metrics", Namespace: "lagmeter"},
		Tracing:          TracingConfig{Protocol: "grpc", SampleRate: 1.0},
		Log:              LogConfig{Level: "info", Format: "logfmt"},
		Output:           OutputText,
		ProgressInterval: time.Second,
	}
}

// Load parses command-line arguments and configuration files to produce a Config.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Defaults()
	cfg.ConfigFile = configPath

	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}

	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}

	cfg.Source = SourceType(strings.ToLower(strings.TrimSpace(string(cfg.Source))))
	cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(string(cfg.Output))))
	cfg.Kafka.Topic = strings.TrimSpace(cfg.Kafka.Topic)
	cfg.Replay.Format = strings.ToLower(strings.TrimSpace(cfg.Replay.Format))

	return cfg, nil
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "concurrency"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("concurrency: %w", err)
		}
		cfg.Concurrency = val
	}

	if raw, ok := lookupSetting(settings, "rate"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rate: %w", err)
		}
		cfg.Rate = val
	}

	if raw, ok := lookupSetting(settings, "duration"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("duration: %w", err)
		}
		cfg.Duration = val
	}

	if raw, ok := lookupSetting(settings, "total"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("total: %w", err)
		}
		cfg.Total = val
	}

	if raw, ok := lookupSetting(settings, "retries"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("retries: %w", err)
		}
		cfg.Retries = val
	}

	if raw, ok := lookupSetting(settings, "retry_delay", "retrydelay", "retry-delay"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("retry_delay: %w", err)
		}
		cfg.RetryDelay = val
	}

	if raw, ok := lookupSetting(settings, "arrival"); ok {
		arr, err := parseArrival(raw)
		if err != nil {
			return fmt.Errorf("arrival: %w", err)
		}
		if arr.Model != "" {
			cfg.Arrival = arr
		}
	}

	if raw, ok := lookupSetting(settings, "source"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("source: %w", err)
		}
		cfg.Source = SourceType(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "generator"); ok {
		if err := applyGeneratorSettings(&cfg.Generator, raw); err != nil {
			return fmt.Errorf("generator: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "handler"); ok {
		if err := applyHandlerSettings(&cfg.Handler, raw); err != nil {
			return fmt.Errorf("handler: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "kafka"); ok {
		if err := applyKafkaSettings(&cfg.Kafka, raw); err != nil {
			return fmt.Errorf("kafka: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "replay"); ok {
		if err := applyReplaySettings(&cfg.Replay, raw); err != nil {
			return fmt.Errorf("replay: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "metrics"); ok {
		if err := applyMetricsSettings(&cfg.Metrics, raw); err != nil {
			return fmt.Errorf("metrics: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(&cfg.Tracing, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	if raw, ok := lookupSetting(settings, "log"); ok {
		entry, err := toStringKeyMap(raw)
		if err != nil {
			return fmt.Errorf("log: %w", err)
		}
		if v, ok := lookupSetting(entry, "level"); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("log.level: %w", err)
			}
			cfg.Log.Level = strings.ToLower(strings.TrimSpace(val))
		}
		if v, ok := lookupSetting(entry, "format"); ok {
			val, err := asString(v)
			if err != nil {
				return fmt.Errorf("log.format: %w", err)
			}
			cfg.Log.Format = strings.ToLower(strings.TrimSpace(val))
		}
	}

	if raw, ok := lookupSetting(settings, "output"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("output: %w", err)
		}
		cfg.Output = OutputFormat(strings.ToLower(strings.TrimSpace(val)))
	}

	if raw, ok := lookupSetting(settings, "progress_interval", "progressinterval", "progress-interval"); ok {
		val, err := asDuration(raw)
		if err != nil {
			return fmt.Errorf("progress_interval: %w", err)
		}
		cfg.ProgressInterval = val
	}

	if raw, ok := lookupSetting(settings, "dashboard"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("dashboard: %w", err)
		}
		cfg.Dashboard = val
	}

	if raw, ok := lookupSetting(settings, "fail_on_error", "failonerror", "fail-on-error"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("fail_on_error: %w", err)
		}
		cfg.FailOnError = val
	}

	if raw, ok := lookupSetting(settings, "thresholds"); ok {
		thresholds, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("thresholds: %w", err)
		}
		cfg.Thresholds = thresholds
	}

	return nil
}

func parseArrival(value interface{}) (ArrivalConfig, error) {
	if value == nil {
		return ArrivalConfig{}, nil
	}
	switch v := value.(type) {
	case string:
		model := strings.ToLower(strings.TrimSpace(v))
		if model == "" {
			return ArrivalConfig{}, nil
		}
		return ArrivalConfig{Model: ArrivalModel(model)}, nil
	default:
		entry, err := toStringKeyMap(value)
		if err != nil {
			return ArrivalConfig{}, err
		}
		if raw, ok := lookupSetting(entry, "model"); ok {
			val, err := asString(raw)
			if err != nil {
				return ArrivalConfig{}, fmt.Errorf("model: %w", err)
			}
			return ArrivalConfig{Model: ArrivalModel(strings.ToLower(strings.TrimSpace(val)))}, nil
		}
		return ArrivalConfig{}, fmt.Errorf("model field is required")
	}
}

func applyGeneratorSettings(gen *GeneratorConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "skew"); ok {
		if gen.Skew, err = asDuration(raw); err != nil {
			return fmt.Errorf("skew: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "jitter"); ok {
		if gen.Jitter, err = asDuration(raw); err != nil {
			return fmt.Errorf("jitter: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		gen.Seed = int64(val)
	}
	if raw, ok := lookupSetting(entry, "topic"); ok {
		if gen.Topic, err = asString(raw); err != nil {
			return fmt.Errorf("topic: %w", err)
		}
	}
	return nil
}

func applyHandlerSettings(h *HandlerConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "delay"); ok {
		if h.Delay, err = asDuration(raw); err != nil {
			return fmt.Errorf("delay: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "jitter"); ok {
		if h.Jitter, err = asDuration(raw); err != nil {
			return fmt.Errorf("jitter: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "failure_rate", "failurerate", "failure-rate"); ok {
		if h.FailureRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("failure_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "ignore_rate", "ignorerate", "ignore-rate"); ok {
		if h.IgnoreRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("ignore_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "seed"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		h.Seed = int64(val)
	}
	return nil
}

func applyKafkaSettings(k *KafkaConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "brokers"); ok {
		if k.Brokers, err = asStringSlice(raw); err != nil {
			return fmt.Errorf("brokers: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "topic"); ok {
		if k.Topic, err = asString(raw); err != nil {
			return fmt.Errorf("topic: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "group"); ok {
		if k.Group, err = asString(raw); err != nil {
			return fmt.Errorf("group: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "client_id", "clientid", "client-id"); ok {
		if k.ClientID, err = asString(raw); err != nil {
			return fmt.Errorf("client_id: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "timestamp_field", "timestampfield", "timestamp-field"); ok {
		if k.TimestampField, err = asString(raw); err != nil {
			return fmt.Errorf("timestamp_field: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "reset_to_start", "resettostart", "reset-to-start"); ok {
		if k.ResetToStart, err = asBool(raw); err != nil {
			return fmt.Errorf("reset_to_start: %w", err)
		}
	}
	return nil
}

func applyReplaySettings(r *ReplayConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	fields := []struct {
		dst   *string
		names []string
	}{
		{&r.Path, []string{"path", "file"}},
		{&r.Format, []string{"format"}},
		{&r.IDField, []string{"id_field", "idfield", "id-field"}},
		{&r.TimeField, []string{"time_field", "timefield", "time-field"}},
		{&r.TopicField, []string{"topic_field", "topicfield", "topic-field"}},
		{&r.KeyField, []string{"key_field", "keyfield", "key-field"}},
		{&r.Topic, []string{"topic"}},
		{&r.PayloadTemplate, []string{"payload_template", "payloadtemplate", "payload-template"}},
	}
	for _, f := range fields {
		if raw, ok := lookupSetting(entry, f.names...); ok {
			if *f.dst, err = asString(raw); err != nil {
				return fmt.Errorf("%s: %w", f.names[0], err)
			}
		}
	}
	if raw, ok := lookupSetting(entry, "rebase"); ok {
		if r.Rebase, err = asBool(raw); err != nil {
			return fmt.Errorf("rebase: %w", err)
		}
	}
	return nil
}

func applyMetricsSettings(m *MetricsConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "listen_addr", "listenaddr", "listen-addr"); ok {
		if m.ListenAddr, err = asString(raw); err != nil {
			return fmt.Errorf("listen_addr: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "path"); ok {
		if m.Path, err = asString(raw); err != nil {
			return fmt.Errorf("path: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "namespace"); ok {
		if m.Namespace, err = asString(raw); err != nil {
			return fmt.Errorf("namespace: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "subsystem"); ok {
		if m.Subsystem, err = asString(raw); err != nil {
			return fmt.Errorf("subsystem: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "const_labels", "constlabels", "const-labels"); ok {
		if m.ConstLabels, err = asStringMap(raw); err != nil {
			return fmt.Errorf("const_labels: %w", err)
		}
	}
	return nil
}

func applyTracingSettings(t *TracingConfig, value interface{}) error {
	entry, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(entry, "endpoint"); ok {
		if t.Endpoint, err = asString(raw); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "protocol"); ok {
		if t.Protocol, err = asString(raw); err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "service_name", "servicename", "service-name"); ok {
		if t.ServiceName, err = asString(raw); err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "sample_rate", "samplerate", "sample-rate"); ok {
		if t.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "insecure"); ok {
		if t.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(entry, "propagate"); ok {
		val, err := asBool(raw)
		if err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
		t.Propagate = &val
	}
	return nil
}
