package output

import (
	"fmt"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
)

// Snapshotter exposes live per-target summaries of a run in progress.
type Snapshotter interface {
	Snapshot() []metrics.Summary
}

// ProgressReporter displays real-time progress updates.
type ProgressReporter struct {
	source   Snapshotter
	ticker   *time.Ticker
	done     chan struct{}
	finished chan struct{}
	writer   io.Writer
	active   int32
	start    time.Time
	total    time.Duration
}

// NewProgressReporter creates a progress reporter that updates at the given
// interval. total is the configured run duration used for the remaining-time
// readout; zero omits it.
func NewProgressReporter(source Snapshotter, interval, total time.Duration, writer io.Writer) *ProgressReporter {
	if writer == nil {
		writer = io.Discard
	}
	return &ProgressReporter{
		source:   source,
		ticker:   time.NewTicker(interval),
		done:     make(chan struct{}),
		finished: make(chan struct{}),
		writer:   writer,
		start:    time.Now(),
		total:    total,
	}
}

// Start begins displaying progress updates in a background goroutine.
func (p *ProgressReporter) Start() {
	if !atomic.CompareAndSwapInt32(&p.active, 0, 1) {
		return
	}
	go p.run()
}

// Stop halts progress updates and terminates the progress line.
func (p *ProgressReporter) Stop() {
	if atomic.CompareAndSwapInt32(&p.active, 1, 0) {
		close(p.done)
		p.ticker.Stop()
		<-p.finished
		fmt.Fprintln(p.writer)
	}
}

func (p *ProgressReporter) run() {
	defer close(p.finished)
	for {
		select {
		case <-p.ticker.C:
			fmt.Fprint(p.writer, "\r"+FormatProgress(p.source.Snapshot(), time.Since(p.start), p.total))
		case <-p.done:
			return
		}
	}
}

// FormatProgress renders one progress line across all targets.
func FormatProgress(summaries []metrics.Summary, elapsed, total time.Duration) string {
	var requests, successes, failures int64
	var rps float64
	for _, s := range summaries {
		requests += s.Total
		successes += s.Successes
		failures += s.Failures
		rps += s.RequestsPerSec
	}

	parts := []string{fmt.Sprintf("Elapsed: %s", elapsed.Truncate(time.Second))}
	if total > 0 {
		remaining := total - elapsed
		if remaining < 0 {
			remaining = 0
		}
		parts[0] += fmt.Sprintf(" / %s (remaining %s)", total, remaining.Truncate(time.Second))
	}
	parts = append(parts, fmt.Sprintf("Requests: %d | Successes: %d | Failures: %d | RPS: %.1f",
		requests, successes, failures, rps))
	if len(summaries) > 1 {
		slowest := summaries[0]
		for _, s := range summaries[1:] {
			if s.P99LatencyMs > slowest.P99LatencyMs {
				slowest = s
			}
		}
		parts = append(parts, fmt.Sprintf("Slowest: %s (P99 %.1fms)", slowest.Target, slowest.P99LatencyMs))
	} else if len(summaries) == 1 {
		parts = append(parts, fmt.Sprintf("P99: %.1fms", summaries[0].P99LatencyMs))
	}
	return strings.Join(parts, " | ")
}
