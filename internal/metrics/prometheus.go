package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/torosent/lagmeter/internal/monitor"
)

// GaugeSetOptions name the Prometheus series built from a monitor.MetricSet.
type GaugeSetOptions struct {
	Namespace   string
	Subsystem   string
	Help        map[string]string // per metric name; a generic help text is used otherwise
	ConstLabels prometheus.Labels
}

// GaugeSetCollector publishes every gauge of a MetricSet as a Prometheus gauge.
// Values are read from the set at scrape time.
type GaugeSetCollector struct {
	gauges []prometheus.GaugeFunc
}

// NewGaugeSetCollector builds one GaugeFunc per metric in set.
func NewGaugeSetCollector(set monitor.MetricSet, opts GaugeSetOptions) *GaugeSetCollector {
	gaugesByName := set.Metrics()
	names := sortedNames(gaugesByName)

	c := &GaugeSetCollector{gauges: make([]prometheus.GaugeFunc, 0, len(names))}
	for _, name := range names {
		g := gaugesByName[name]
		help := opts.Help[name]
		if help == "" {
			help = fmt.Sprintf("Message timestamp %s between the last ingested and the last processed message, in milliseconds.", name)
		}
		c.gauges = append(c.gauges, prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace:   opts.Namespace,
			Subsystem:   opts.Subsystem,
			Name:        name,
			Help:        help,
			ConstLabels: opts.ConstLabels,
		}, func() float64 {
			return float64(g.Value())
		}))
	}
	return c
}

// Describe implements prometheus.Collector.
func (c *GaugeSetCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, g := range c.gauges {
		g.Describe(ch)
	}
}

// Collect implements prometheus.Collector.
func (c *GaugeSetCollector) Collect(ch chan<- prometheus.Metric) {
	for _, g := range c.gauges {
		g.Collect(ch)
	}
}

// NewHandler serves the registry in the Prometheus exposition format.
func NewHandler(reg *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{Registry: reg})
}

// NewServer returns an HTTP server exposing reg on path.
func NewServer(addr, path string, reg *prometheus.Registry) *http.Server {
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, NewHandler(reg))
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// Snapshot reads every gauge of set once.
func Snapshot(set monitor.MetricSet) map[string]int64 {
	gaugesByName := set.Metrics()
	values := make(map[string]int64, len(gaugesByName))
	for name, g := range gaugesByName {
		values[name] = g.Value()
	}
	return values
}

func sortedNames(gauges map[string]monitor.Gauge) []string {
	names := make([]string, 0, len(gauges))
	for name := range gauges {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
