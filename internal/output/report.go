package output

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/threshold"
)

// RunInfo identifies a run on every report.
type RunInfo struct {
	RunID     string    `json:"run_id"`
	Endpoint  string    `json:"endpoint"`
	StartedAt time.Time `json:"started_at"`
}

// JSONReport is the document written by PrintJSONReport.
type JSONReport struct {
	RunInfo
	Targets    []metrics.Summary `json:"targets"`
	Thresholds *ThresholdSummary `json:"thresholds,omitempty"`
	Errors     map[string]string `json:"setup_errors,omitempty"`
}

// Ordered returns summaries in the given target order. Targets missing from
// order are appended sorted by name.
func Ordered(summaries map[string]metrics.Summary, order []string) []metrics.Summary {
	out := make([]metrics.Summary, 0, len(summaries))
	seen := make(map[string]bool, len(order))
	for _, name := range order {
		if s, ok := summaries[name]; ok && !seen[name] {
			out = append(out, s)
			seen[name] = true
		}
	}
	rest := make([]string, 0)
	for name := range summaries {
		if !seen[name] {
			rest = append(rest, name)
		}
	}
	sort.Strings(rest)
	for _, name := range rest {
		out = append(out, summaries[name])
	}
	return out
}

// PrintReport outputs a human-readable summary report, one block per target.
func PrintReport(w io.Writer, info RunInfo, summaries []metrics.Summary) {
	fmt.Fprintln(w, "\n--- Load Test Results ---")
	if info.RunID != "" {
		fmt.Fprintf(w, "Run:               %s\n", info.RunID)
	}
	if info.Endpoint != "" {
		fmt.Fprintf(w, "Endpoint:          %s\n", info.Endpoint)
	}
	for _, s := range summaries {
		printSummary(w, s)
	}
}

func printSummary(w io.Writer, s metrics.Summary) {
	fmt.Fprintf(w, "\nTarget: %s\n", s.Target)
	fmt.Fprintf(w, "  Total Requests:  %d\n", s.Total)
	fmt.Fprintf(w, "  Successful:      %d\n", s.Successes)
	fmt.Fprintf(w, "  Failed:          %d (%.2f%%)\n", s.Failures, s.ErrorPercentage)
	fmt.Fprintf(w, "  Cancelled:       %d\n", s.Cancelled)
	fmt.Fprintf(w, "  Duration:        %s\n", s.Elapsed.Round(time.Millisecond))
	fmt.Fprintf(w, "  Requests/sec:    %.2f\n", s.RequestsPerSec)
	fmt.Fprintln(w, "  Latency (ms):")
	fmt.Fprintf(w, "    Min:           %.2f\n", s.MinLatencyMs)
	fmt.Fprintf(w, "    Max:           %.2f\n", s.MaxLatencyMs)
	fmt.Fprintf(w, "    Mean:          %.2f\n", s.MeanLatencyMs)
	fmt.Fprintf(w, "    P50:           %.2f\n", s.P50LatencyMs)
	fmt.Fprintf(w, "    P90:           %.2f\n", s.P90LatencyMs)
	fmt.Fprintf(w, "    P99:           %.2f\n", s.P99LatencyMs)
	if rows := metrics.FlattenBuckets(s.FailuresByClass); len(rows) > 0 {
		fmt.Fprintln(w, "  Failures:")
		for _, row := range rows {
			fmt.Fprintf(w, "    %s: %d\n", metrics.FriendlyClassName(row.Label), row.Count)
		}
	}
	if rows := metrics.FlattenBuckets(s.StatusCodes); len(rows) > 0 {
		fmt.Fprintln(w, "  Status Codes:")
		for _, row := range rows {
			fmt.Fprintf(w, "    HTTP %s: %d\n", row.Label, row.Count)
		}
	}
}

// PrintJSONReport outputs a JSON-formatted report.
func PrintJSONReport(w io.Writer, report JSONReport) error {
	if report.Targets == nil {
		report.Targets = []metrics.Summary{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(report)
}

// PrintThresholdResults lists each threshold check and whether it passed.
func PrintThresholdResults(w io.Writer, results []threshold.Result) {
	if len(results) == 0 {
		return
	}
	fmt.Fprintln(w, "\n--- Thresholds ---")
	for _, r := range results {
		mark := "PASS"
		if !r.Pass {
			mark = "FAIL"
		}
		fmt.Fprintf(w, "  [%s] %s: %s (actual %.2f)\n", mark, r.Target, r.Threshold.Raw, r.Actual)
	}
}
