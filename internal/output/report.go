package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/threshold"
)

// Report is the end-of-run summary: processing statistics plus the final gauge readings.
type Report struct {
	Stats      metrics.Stats     `json:"stats" yaml:"stats"`
	Gauges     map[string]int64  `json:"gauges" yaml:"gauges"`
	Thresholds *ThresholdSummary `json:"thresholds,omitempty" yaml:"thresholds,omitempty"`
}

// ThresholdSummary contains threshold evaluation summary.
type ThresholdSummary struct {
	Total   int                   `json:"total" yaml:"total"`
	Passed  int                   `json:"passed" yaml:"passed"`
	Failed  int                   `json:"failed" yaml:"failed"`
	Results []ThresholdResultJSON `json:"results" yaml:"results"`
}

// ThresholdResultJSON is the serialized form of one threshold result.
type ThresholdResultJSON struct {
	Threshold string  `json:"threshold" yaml:"threshold"`
	Metric    string  `json:"metric" yaml:"metric"`
	Aggregate string  `json:"aggregate" yaml:"aggregate"`
	Operator  string  `json:"operator" yaml:"operator"`
	Expected  float64 `json:"expected" yaml:"expected"`
	Actual    float64 `json:"actual" yaml:"actual"`
	Pass      bool    `json:"pass" yaml:"pass"`
	Message   string  `json:"message,omitempty" yaml:"message,omitempty"`
}

// SummarizeThresholds converts evaluation results for the report. It returns nil when nothing was evaluated.
func SummarizeThresholds(results []threshold.Result) *ThresholdSummary {
	if len(results) == 0 {
		return nil
	}
	summary := &ThresholdSummary{
		Total:   len(results),
		Results: make([]ThresholdResultJSON, len(results)),
	}
	for i, tr := range results {
		summary.Results[i] = ThresholdResultJSON{
			Threshold: tr.Threshold.Raw,
			Metric:    tr.Threshold.Metric,
			Aggregate: tr.Threshold.Aggregate,
			Operator:  tr.Threshold.Operator,
			Expected:  tr.Threshold.Value,
			Actual:    tr.Actual,
			Pass:      tr.Pass,
			Message:   tr.Message,
		}
		if tr.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
	}
	return summary
}

// PrintReport outputs a human-readable summary report.
func PrintReport(w io.Writer, report Report) {
	stats := report.Stats
	fmt.Fprintln(w, "\n--- Pipeline Results ---")
	fmt.Fprintf(w, "Total Events:      %d\n", stats.Total)
	fmt.Fprintf(w, "Successful:        %d\n", stats.Successes)
	fmt.Fprintf(w, "Failed:            %d\n", stats.Failures)
	fmt.Fprintf(w, "Ignored:           %d\n", stats.Ignored)
	fmt.Fprintf(w, "Duration:          %s\n", stats.Duration)
	fmt.Fprintf(w, "Events/sec:        %.2f\n", stats.EventsPerSec)
	fmt.Fprintln(w, "\nProcessing Time:")
	fmt.Fprintf(w, "  Min:             %s\n", stats.MinLatency)
	fmt.Fprintf(w, "  Max:             %s\n", stats.MaxLatency)
	fmt.Fprintf(w, "  Mean:            %s\n", stats.MeanLatency)
	fmt.Fprintf(w, "  P50:             %s\n", stats.P50Latency)
	fmt.Fprintf(w, "  P90:             %s\n", stats.P90Latency)
	fmt.Fprintf(w, "  P99:             %s\n", stats.P99Latency)

	if len(report.Gauges) > 0 {
		fmt.Fprintln(w, "\nGauges:")
		for _, name := range sortedKeys(report.Gauges) {
			fmt.Fprintf(w, "  %-16s %dms\n", name+":", report.Gauges[name])
		}
	}

	if len(stats.Errors) > 0 {
		fmt.Fprintln(w, "\nErrors:")
		names := make([]string, 0, len(stats.Errors))
		for name := range stats.Errors {
			names = append(names, name)
		}
		sort.Slice(names, func(i, j int) bool {
			if stats.Errors[names[i]] == stats.Errors[names[j]] {
				return names[i] < names[j]
			}
			return stats.Errors[names[i]] > stats.Errors[names[j]]
		})
		for _, name := range names {
			fmt.Fprintf(w, "  %s: %d\n", metrics.FriendlyErrorName(name), stats.Errors[name])
		}
	}

	if t := report.Thresholds; t != nil {
		fmt.Fprintf(w, "\nThresholds: %d passed, %d failed\n", t.Passed, t.Failed)
		for _, r := range t.Results {
			fmt.Fprintf(w, "  %s\n", r.Message)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintYAMLReport outputs a YAML-formatted report.
func PrintYAMLReport(w io.Writer, report Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(report); err != nil {
		return err
	}
	return enc.Close()
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
