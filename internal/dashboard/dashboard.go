// Package dashboard renders a live terminal view of a lagmeter run.
package dashboard

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/lagmeter/internal/metrics"
	"github.com/torosent/lagmeter/internal/monitor"
)

const historySize = 100

// RunInfo holds the run parameters shown in the header.
type RunInfo struct {
	Source      string        // generator, kafka or replay
	Topic       string        // topic or dataset path
	Concurrency int           // Number of concurrent workers
	Rate        int           // Events per second (0 = unlimited)
	Arrival     string        // uniform or poisson
	Duration    time.Duration // Run duration (0 = unlimited)
	Total       int           // Total events (0 = unlimited)
	Retries     int
	ConfigFile  string
}

// Dashboard renders a live terminal UI for the latency gauge and processing metrics.
type Dashboard struct {
	collector    *metrics.Collector
	gauges       monitor.MetricSet
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	latencySpark   *widgets.SparklineGroup
	processingPara *widgets.Paragraph
	epsGauge       *widgets.Gauge
	errorList      *widgets.List
	summaryPara    *widgets.Paragraph
	outcomePara    *widgets.Paragraph
	latencyHistory []float64
	peakEPS        float64
	startTime      time.Time
	info           RunInfo
}

// New initializes the terminal and creates a Dashboard. shutdownFunc is
// called when the user presses q or Ctrl-C.
func New(collector *metrics.Collector, gauges monitor.MetricSet, info RunInfo, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	d := newDashboard(collector, gauges, info, shutdownFunc)
	d.setupGrid()
	return d, nil
}

func newDashboard(collector *metrics.Collector, gauges monitor.MetricSet, info RunInfo, shutdownFunc func()) *Dashboard {
	ctx, cancel := context.WithCancel(context.Background())
	d := &Dashboard{
		collector:      collector,
		gauges:         gauges,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, historySize),
		startTime:      time.Now(),
		info:           info,
	}
	d.initWidgets()
	return d
}

func (d *Dashboard) initWidgets() {
	sparkline := widgets.NewSparkline()
	sparkline.Title = "Latency (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}

	d.latencySpark = widgets.NewSparklineGroup(sparkline)
	d.latencySpark.Title = "Pipeline Latency"
	d.latencySpark.BorderStyle.Fg = ui.ColorCyan

	d.processingPara = widgets.NewParagraph()
	d.processingPara.Title = "Processing Time"
	d.processingPara.Text = "Min: 0ms\nMean: 0ms\nP50: 0ms\nP90: 0ms\nP99: 0ms"
	d.processingPara.BorderStyle.Fg = ui.ColorCyan

	d.epsGauge = widgets.NewGauge()
	d.epsGauge.Title = "Events Per Second"
	d.epsGauge.Percent = 0
	d.epsGauge.BarColor = ui.ColorBlue
	d.epsGauge.BorderStyle.Fg = ui.ColorCyan
	d.epsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	d.errorList = widgets.NewList()
	d.errorList.Title = "Failures"
	d.errorList.Rows = []string{"No failures"}
	d.errorList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.errorList.BorderStyle.Fg = ui.ColorCyan

	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.outcomePara = widgets.NewParagraph()
	d.outcomePara.Title = "Outcomes"
	d.outcomePara.Text = "Waiting for data..."
	d.outcomePara.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.16,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.34,
			ui.NewCol(0.65, d.latencySpark),
			ui.NewCol(0.35, d.processingPara),
		),
		ui.NewRow(0.2,
			ui.NewCol(0.5, d.epsGauge),
			ui.NewCol(0.5, d.outcomePara),
		),
		ui.NewRow(0.3,
			ui.NewCol(1.0, d.errorList),
		),
	)
}

// Start begins the dashboard update loop.
func (d *Dashboard) Start() {
	d.wg.Add(1)
	go d.run()
}

// Stop stops the dashboard and restores the terminal.
func (d *Dashboard) Stop() {
	d.cancel()
	d.wg.Wait()
	ui.Close()
	// Give terminal time to restore
	time.Sleep(100 * time.Millisecond)
}

func (d *Dashboard) run() {
	defer d.wg.Done()

	ticker := time.NewTicker(500 * time.Millisecond)
	defer ticker.Stop()

	uiEvents := ui.PollEvents()

	d.render()

	for {
		select {
		case <-d.ctx.Done():
			return
		case e := <-uiEvents:
			switch e.ID {
			case "q", "<C-c>":
				if d.shutdownFunc != nil {
					d.shutdownFunc()
				}
				// Stop cancels the loop once the run has drained.
			case "<Resize>":
				payload := e.Payload.(ui.Resize)
				d.grid.SetRect(0, 0, payload.Width, payload.Height)
				ui.Clear()
				d.render()
			}
		case <-ticker.C:
			d.update(time.Since(d.startTime))
			d.render()
		}
	}
}

// update refreshes all widget data from the collector and the gauges.
func (d *Dashboard) update(elapsed time.Duration) {
	d.mu.Lock()
	defer d.mu.Unlock()

	stats := d.collector.Stats(elapsed)

	if d.gauges != nil {
		if lag, ok := metrics.Snapshot(d.gauges)[monitor.MetricLatency]; ok {
			// Sparklines cannot draw below zero; the title keeps the signed value.
			d.latencyHistory = appendHistory(d.latencyHistory, float64(max(lag, 0)))
			d.latencySpark.Sparklines[0].Data = d.latencyHistory
			d.latencySpark.Title = fmt.Sprintf("Pipeline Latency | Current: %dms | Peak: %.0fms", lag, peak(d.latencyHistory))
		}
	}

	if stats.EventsPerSec > d.peakEPS {
		d.peakEPS = stats.EventsPerSec
	}
	d.epsGauge.Percent = percentOf(stats.EventsPerSec, d.ceilingEPS())
	d.epsGauge.Label = fmt.Sprintf("%.1f EPS", stats.EventsPerSec)

	d.summaryPara.Text = fmt.Sprintf(
		"%s\nElapsed: %s | Events: %d | Success Rate: %.1f%%",
		d.formatRunInfo(),
		elapsed.Round(time.Second),
		stats.Total,
		successRate(stats),
	)

	d.outcomePara.Text = fmt.Sprintf(
		"Successful:  %d\nFailed:      %d\nIgnored:     %d\nEPS:         %.2f",
		stats.Successes,
		stats.Failures,
		stats.Ignored,
		stats.EventsPerSec,
	)

	d.processingPara.Text = fmt.Sprintf(
		"Min:  %.2fms\nMean: %.2fms\nP50:  %.2fms\nP90:  %.2fms\nP99:  %.2fms\nMax:  %.2fms",
		stats.MinLatencyMs,
		stats.MeanLatencyMs,
		stats.P50LatencyMs,
		stats.P90LatencyMs,
		stats.P99LatencyMs,
		stats.MaxLatencyMs,
	)

	d.errorList.Rows = formatErrorRows(stats.Errors, 10)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

// ceilingEPS is the full-scale value of the EPS gauge: the configured rate when
// there is one, otherwise the highest rate seen so far.
func (d *Dashboard) ceilingEPS() float64 {
	if d.info.Rate > 0 {
		return float64(d.info.Rate)
	}
	return max(d.peakEPS, 1)
}

func appendHistory(history []float64, v float64) []float64 {
	history = append(history, v)
	if len(history) > historySize {
		history = history[len(history)-historySize:]
	}
	return history
}

func peak(values []float64) float64 {
	var p float64
	for _, v := range values {
		p = max(p, v)
	}
	return p
}

func percentOf(v, ceiling float64) int {
	if ceiling <= 0 || v <= 0 {
		return 0
	}
	return min(int(v/ceiling*100), 100)
}

func successRate(stats metrics.Stats) float64 {
	if stats.Total == 0 {
		return 0
	}
	return float64(stats.Successes) / float64(stats.Total) * 100
}

func formatErrorRows(errs map[string]int, limit int) []string {
	if len(errs) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	names := make([]string, 0, len(errs))
	for name := range errs {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if errs[names[i]] == errs[names[j]] {
			return names[i] < names[j]
		}
		return errs[names[i]] > errs[names[j]]
	})
	if limit > 0 && len(names) > limit {
		names = names[:limit]
	}
	rows := make([]string, 0, len(names))
	for _, name := range names {
		rows = append(rows, fmt.Sprintf("[%s](fg:red) %d", metrics.FriendlyErrorName(name), errs[name]))
	}
	return rows
}

// formatRunInfo formats the run parameters for the header.
func (d *Dashboard) formatRunInfo() string {
	var parts []string

	if d.info.Source != "" {
		source := "Source: " + d.info.Source
		if d.info.Topic != "" {
			source += " (" + d.info.Topic + ")"
		}
		parts = append(parts, source)
	}

	if d.info.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Workers: %d", d.info.Concurrency))
	}

	if d.info.Rate > 0 {
		rate := fmt.Sprintf("Rate: %d/s", d.info.Rate)
		if d.info.Arrival != "" && d.info.Arrival != "uniform" {
			rate += " " + d.info.Arrival
		}
		parts = append(parts, rate)
	} else {
		parts = append(parts, "Rate: unlimited")
	}

	if d.info.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", d.info.Duration))
	}
	if d.info.Total > 0 {
		parts = append(parts, fmt.Sprintf("Total: %d", d.info.Total))
	}
	if d.info.Retries > 0 {
		parts = append(parts, fmt.Sprintf("Retries: %d", d.info.Retries))
	}
	if d.info.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", d.info.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
