// Package dashboard renders a live terminal view of a run, one row per target.
package dashboard

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	ui "github.com/gizak/termui/v3"
	"github.com/gizak/termui/v3/widgets"

	"github.com/torosent/chatcrank/internal/metrics"
)

// Source supplies live per-target summaries.
type Source interface {
	Snapshot() []metrics.Summary
}

// RunConfig holds run parameters for display.
type RunConfig struct {
	Endpoint    string
	Method      string
	Concurrency int           // virtual users per target
	Duration    time.Duration // per-target run time
	Rate        int           // 0 = unlimited
	Timeout     time.Duration
	ConfigFile  string
}

// Dashboard renders a live terminal UI for load test metrics.
type Dashboard struct {
	source       Source
	ctx          context.Context
	cancel       context.CancelFunc
	shutdownFunc func()
	wg           sync.WaitGroup
	mu           sync.Mutex

	grid           *ui.Grid
	summaryPara    *widgets.Paragraph
	rpsGauge       *widgets.Gauge
	latencySparkle *widgets.SparklineGroup
	targetTable    *widgets.Table
	failureList    *widgets.List
	latencyHistory []float64
	startTime      time.Time
	cfg            RunConfig
}

// New initialises the terminal. shutdownFunc is called when the user presses
// q or Ctrl-C.
func New(source Source, cfg RunConfig, shutdownFunc func()) (*Dashboard, error) {
	if err := ui.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize termui: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Dashboard{
		source:         source,
		ctx:            ctx,
		cancel:         cancel,
		shutdownFunc:   shutdownFunc,
		latencyHistory: make([]float64, 0, 100),
		startTime:      time.Now(),
		cfg:            cfg,
	}

	d.initWidgets()
	d.setupGrid()

	return d, nil
}

func (d *Dashboard) initWidgets() {
	d.summaryPara = widgets.NewParagraph()
	d.summaryPara.Title = "Run"
	d.summaryPara.Text = "Initializing..."
	d.summaryPara.BorderStyle.Fg = ui.ColorCyan

	d.rpsGauge = widgets.NewGauge()
	d.rpsGauge.Title = "Successful Requests Per Second (all targets)"
	d.rpsGauge.BarColor = ui.ColorBlue
	d.rpsGauge.BorderStyle.Fg = ui.ColorCyan
	d.rpsGauge.LabelStyle = ui.NewStyle(ui.ColorWhite)

	sparkline := widgets.NewSparkline()
	sparkline.Title = "Slowest target P99 (ms)"
	sparkline.LineColor = ui.ColorGreen
	sparkline.Data = []float64{0}
	d.latencySparkle = widgets.NewSparklineGroup(sparkline)
	d.latencySparkle.Title = "Latency"
	d.latencySparkle.BorderStyle.Fg = ui.ColorCyan

	d.targetTable = widgets.NewTable()
	d.targetTable.Title = "Targets"
	d.targetTable.Rows = [][]string{targetHeader}
	d.targetTable.TextStyle = ui.NewStyle(ui.ColorWhite)
	d.targetTable.RowSeparator = false
	d.targetTable.BorderStyle.Fg = ui.ColorCyan

	d.failureList = widgets.NewList()
	d.failureList.Title = "Failures"
	d.failureList.Rows = []string{"[No failures](fg:green)"}
	d.failureList.TextStyle = ui.NewStyle(ui.ColorYellow)
	d.failureList.BorderStyle.Fg = ui.ColorCyan
}

func (d *Dashboard) setupGrid() {
	termWidth, termHeight := ui.TerminalDimensions()

	d.grid = ui.NewGrid()
	d.grid.SetRect(0, 0, termWidth, termHeight)

	d.grid.Set(
		ui.NewRow(0.15,
			ui.NewCol(1.0, d.summaryPara),
		),
		ui.NewRow(0.2,
			ui.NewCol(0.4, d.rpsGauge),
			ui.NewCol(0.6, d.latencySparkle),
		),
		ui.NewRow(0.4,
			ui.NewCol(1.0, d.targetTable),
		),
		ui.NewRow(0.25,
			ui.NewCol(1.0, d.failureList),
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
			for len(uiEvents) > 0 {
				<-uiEvents
			}
			return
		case e := <-uiEvents:
			select {
			case <-d.ctx.Done():
				return
			default:
			}

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
			d.update()
			d.render()
		}
	}
}

func (d *Dashboard) update() {
	d.mu.Lock()
	defer d.mu.Unlock()

	elapsed := time.Since(d.startTime)
	summaries := d.source.Snapshot()
	totals := aggregate(summaries)

	if slowest := slowestP99(summaries); slowest > 0 {
		d.latencyHistory = append(d.latencyHistory, slowest)
		if len(d.latencyHistory) > 100 {
			d.latencyHistory = d.latencyHistory[1:]
		}
		d.latencySparkle.Sparklines[0].Data = d.latencyHistory
		d.latencySparkle.Title = fmt.Sprintf("Latency | slowest P99 %.2fms", slowest)
	}

	d.rpsGauge.Percent = gaugePercent(totals.RequestsPerSec, 100)
	d.rpsGauge.Label = fmt.Sprintf("%.1f RPS", totals.RequestsPerSec)

	d.summaryPara.Text = fmt.Sprintf(
		"Endpoint: %s\n%s\nElapsed: %s | Total: %d | Errors: %.1f%% | press q to stop",
		d.cfg.Endpoint,
		formatRunParams(d.cfg),
		elapsed.Round(time.Second),
		totals.Total,
		totals.ErrorPercentage,
	)

	d.targetTable.Rows = formatTargetRows(summaries)
	d.failureList.Rows = formatFailureRows(summaries, 10)
}

func (d *Dashboard) render() {
	d.mu.Lock()
	defer d.mu.Unlock()

	ui.Render(d.grid)
}

var targetHeader = []string{"Target", "Total", "OK", "Err", "Cancel", "Err %", "RPS", "Avg ms", "P50", "P90", "P99"}

func formatTargetRows(summaries []metrics.Summary) [][]string {
	rows := make([][]string, 0, len(summaries)+1)
	rows = append(rows, targetHeader)
	for _, s := range summaries {
		rows = append(rows, []string{
			s.Target,
			fmt.Sprintf("%d", s.Total),
			fmt.Sprintf("%d", s.Successes),
			fmt.Sprintf("%d", s.Failures),
			fmt.Sprintf("%d", s.Cancelled),
			fmt.Sprintf("%.1f", s.ErrorPercentage),
			fmt.Sprintf("%.1f", s.RequestsPerSec),
			fmt.Sprintf("%.1f", s.MeanLatencyMs),
			fmt.Sprintf("%.1f", s.P50LatencyMs),
			fmt.Sprintf("%.1f", s.P90LatencyMs),
			fmt.Sprintf("%.1f", s.P99LatencyMs),
		})
	}
	return rows
}

func formatFailureRows(summaries []metrics.Summary, limit int) []string {
	var rows []string
	for _, s := range summaries {
		for _, b := range metrics.FlattenBuckets(s.FailuresByClass) {
			rows = append(rows, fmt.Sprintf("[%s](fg:cyan) [%s](fg:red) %d", s.Target, metrics.FriendlyClassName(b.Label), b.Count))
		}
	}
	if len(rows) == 0 {
		return []string{"[No failures](fg:green)"}
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}

// aggregate sums counters across targets; rates add, error % is recomputed.
func aggregate(summaries []metrics.Summary) metrics.Summary {
	var out metrics.Summary
	for _, s := range summaries {
		out.Total += s.Total
		out.Successes += s.Successes
		out.Failures += s.Failures
		out.Cancelled += s.Cancelled
		out.RequestsPerSec += s.RequestsPerSec
	}
	if out.Total > 0 {
		out.ErrorPercentage = float64(out.Failures) / float64(out.Total) * 100
	}
	return out
}

func slowestP99(summaries []metrics.Summary) float64 {
	var slowest float64
	for _, s := range summaries {
		if s.P99LatencyMs > slowest {
			slowest = s.P99LatencyMs
		}
	}
	return slowest
}

// gaugePercent scales value against a ceiling that grows with it.
func gaugePercent(value, ceiling float64) int {
	if value > ceiling {
		ceiling = value
	}
	if ceiling <= 0 {
		return 0
	}
	pct := int((value / ceiling) * 100)
	if pct > 100 {
		pct = 100
	}
	return pct
}

func formatRunParams(cfg RunConfig) string {
	var parts []string

	if cfg.Method != "" && cfg.Method != "POST" {
		parts = append(parts, fmt.Sprintf("Method: %s", cfg.Method))
	}
	if cfg.Concurrency > 0 {
		parts = append(parts, fmt.Sprintf("Users: %d", cfg.Concurrency))
	}
	if cfg.Rate > 0 {
		parts = append(parts, fmt.Sprintf("Rate: %d/s", cfg.Rate))
	} else {
		parts = append(parts, "Rate: unlimited")
	}
	if cfg.Duration > 0 {
		parts = append(parts, fmt.Sprintf("Duration: %s", cfg.Duration))
	}
	if cfg.Timeout > 0 {
		parts = append(parts, fmt.Sprintf("Timeout: %s", cfg.Timeout))
	}
	if cfg.ConfigFile != "" {
		parts = append(parts, fmt.Sprintf("Config: %s", cfg.ConfigFile))
	}

	return strings.Join(parts, " | ")
}
