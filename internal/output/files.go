package output

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/oklog/ulid/v2"

	"github.com/torosent/chatcrank/internal/config"
	"github.com/torosent/chatcrank/internal/metrics"
)

const lockFileName = ".chatcrank.lock"

// lockRetry is how often a busy result directory lock is retried.
var lockRetry = 100 * time.Millisecond

// NewRunID returns a sortable identifier stamped on every report of a run.
func NewRunID() string {
	return ulid.Make().String()
}

// ReportFileName is the per-target text report name, built from
// config.ReportKey so validation can reject names that would collide.
func ReportFileName(target string) string {
	return "api_metrics_" + config.ReportKey(target) + ".txt"
}

// WriteTargetReports writes one text report per summary into dir, creating it
// if needed. The directory is locked for the duration so concurrent runs
// sharing a result directory do not interleave writes. It returns the paths
// written.
func WriteTargetReports(ctx context.Context, dir, runID string, summaries []metrics.Summary) ([]string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create result directory: %w", err)
	}

	lock := flock.New(filepath.Join(dir, lockFileName))
	locked, err := lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return nil, fmt.Errorf("lock result directory: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock result directory: %s is busy", dir)
	}
	defer lock.Unlock()

	paths := make([]string, 0, len(summaries))
	for _, s := range summaries {
		path := filepath.Join(dir, ReportFileName(s.Target))
		if err := writeTargetReport(path, runID, s); err != nil {
			return paths, err
		}
		paths = append(paths, path)
	}
	return paths, nil
}

func writeTargetReport(path, runID string, s metrics.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintf(w, "Model: %s\n", s.Target)
	fmt.Fprintf(w, "Total requests sent: %d\n", s.Total)
	fmt.Fprintf(w, "Requests/s: %.2f\n", s.RequestsPerSec)
	fmt.Fprintf(w, "Avg. response time (ms): %.2f\n", s.MeanLatencyMs)
	fmt.Fprintf(w, "Min(ms): %.2f\n", s.MinLatencyMs)
	fmt.Fprintf(w, "Max(ms): %.2f\n", s.MaxLatencyMs)
	fmt.Fprintf(w, "P50(ms): %.2f\n", s.P50LatencyMs)
	fmt.Fprintf(w, "P90(ms): %.2f\n", s.P90LatencyMs)
	fmt.Fprintf(w, "P99(ms): %.2f\n", s.P99LatencyMs)
	fmt.Fprintf(w, "Error %%: %.2f%%\n", s.ErrorPercentage)
	fmt.Fprintf(w, "Canceled requests: %d\n", s.Cancelled)
	if runID != "" {
		fmt.Fprintf(w, "Run: %s\n", runID)
	}
	fmt.Fprintln(w)

	if err := w.Flush(); err != nil {
		f.Close()
		return fmt.Errorf("write report: %w", err)
	}
	return f.Close()
}
