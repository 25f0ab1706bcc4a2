package output

import (
	"bytes"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/threshold"
)

func sampleSummary(target string) metrics.Summary {
	agg := metrics.NewAggregator(target, 10*time.Second)
	agg.Record(metrics.Success(100*time.Millisecond, 200))
	agg.Record(metrics.Success(300*time.Millisecond, 200))
	agg.Record(metrics.Failure(metrics.ClassStatus, 500, errors.New("boom")))
	agg.Record(metrics.Cancelled(nil))
	return agg.Finalize(2 * time.Second)
}

func TestPrintReportBasic(t *testing.T) {
	var buf bytes.Buffer
	PrintReport(&buf, RunInfo{RunID: "01TEST", Endpoint: "http://127.0.0.1:11434/api/chat"},
		[]metrics.Summary{sampleSummary("llama3:latest")})

	output := buf.String()
	for _, want := range []string{
		"Load Test Results",
		"01TEST",
		"Target: llama3:latest",
		"Total Requests:  4",
		"Failed:          1 (25.00%)",
		"Cancelled:       1",
		"Requests/sec:    1.00",
		"Mean:          200.00",
		"HTTP 200: 2",
		"HTTP 500: 1",
	} {
		if !strings.Contains(output, want) {
			t.Errorf("output missing %q:\n%s", want, output)
		}
	}
}

func TestPrintReportNoSuccesses(t *testing.T) {
	agg := metrics.NewAggregator("down", time.Second)
	agg.Record(metrics.Failure(metrics.ClassTransport, 0, errors.New("refused")))

	var buf bytes.Buffer
	PrintReport(&buf, RunInfo{}, []metrics.Summary{agg.Finalize(time.Second)})

	output := buf.String()
	if !strings.Contains(output, "Min:           0.00") {
		t.Errorf("latency should be zero without successes:\n%s", output)
	}
	if strings.Contains(output, "Status Codes") {
		t.Errorf("no status codes were recorded:\n%s", output)
	}
	if !strings.Contains(output, "Failures:") {
		t.Errorf("expected failure breakdown:\n%s", output)
	}
}

func TestPrintJSONReport(t *testing.T) {
	results := []threshold.Result{{
		Target:    "llama3:latest",
		Threshold: threshold.Threshold{Metric: "error_rate", Operator: "<", Value: 1, Raw: "error_rate < 1"},
		Actual:    25,
	}}
	report := JSONReport{
		RunInfo:    RunInfo{RunID: "01TEST"},
		Targets:    []metrics.Summary{sampleSummary("llama3:latest")},
		Thresholds: SummarizeThresholds(results),
	}

	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, report); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}

	var decoded map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &decoded); err != nil {
		t.Fatalf("invalid JSON: %v", err)
	}
	if decoded["run_id"] != "01TEST" {
		t.Errorf("run_id = %v", decoded["run_id"])
	}
	targets, ok := decoded["targets"].([]interface{})
	if !ok || len(targets) != 1 {
		t.Fatalf("targets = %v", decoded["targets"])
	}
	first := targets[0].(map[string]interface{})
	if first["total_requests_sent"] != float64(4) || first["mean_latency_ms"] != float64(200) {
		t.Errorf("target = %v", first)
	}
	thresholds := decoded["thresholds"].(map[string]interface{})
	if thresholds["failed"] != float64(1) {
		t.Errorf("thresholds = %v", thresholds)
	}
}

func TestPrintJSONReportEmptyTargets(t *testing.T) {
	var buf bytes.Buffer
	if err := PrintJSONReport(&buf, JSONReport{}); err != nil {
		t.Fatalf("PrintJSONReport() error = %v", err)
	}
	if !strings.Contains(buf.String(), `"targets": []`) {
		t.Errorf("expected empty targets array, got %s", buf.String())
	}
}

func TestOrdered(t *testing.T) {
	summaries := map[string]metrics.Summary{
		"b": {Target: "b"},
		"a": {Target: "a"},
		"z": {Target: "z"},
		"c": {Target: "c"},
	}
	got := Ordered(summaries, []string{"z", "missing", "b"})
	var names []string
	for _, s := range got {
		names = append(names, s.Target)
	}
	if strings.Join(names, ",") != "z,b,a,c" {
		t.Errorf("Ordered() = %v, want z,b,a,c", names)
	}
}

func TestPrintThresholdResults(t *testing.T) {
	var buf bytes.Buffer
	PrintThresholdResults(&buf, []threshold.Result{
		{Target: "a", Threshold: threshold.Threshold{Raw: "rps > 1"}, Actual: 2, Pass: true},
		{Target: "b", Threshold: threshold.Threshold{Raw: "rps > 1"}, Actual: 0.5},
	})
	output := buf.String()
	if !strings.Contains(output, "[PASS] a: rps > 1") || !strings.Contains(output, "[FAIL] b: rps > 1 (actual 0.50)") {
		t.Errorf("unexpected output:\n%s", output)
	}

	buf.Reset()
	PrintThresholdResults(&buf, nil)
	if buf.Len() != 0 {
		t.Errorf("expected no output without results, got %q", buf.String())
	}
}
