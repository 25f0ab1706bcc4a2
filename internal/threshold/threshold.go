// Package threshold evaluates pass/fail assertions against per-target run
// summaries.
package threshold

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"

	"github.com/torosent/chatcrank/internal/metrics"
)

// Threshold represents a performance assertion that can pass or fail.
type Threshold struct {
	Metric    string // latency, error_rate, errors, rps, requests, cancelled
	Aggregate string // latency only: p50, p90, p99, avg, min, max
	Operator  string // <, <=, >, >=, ==
	Value     float64
	Raw       string
}

// Result represents the outcome of evaluating a threshold for one target.
type Result struct {
	Target    string
	Threshold Threshold
	Actual    float64
	Pass      bool
	Message   string
}

// Evaluator evaluates thresholds against target summaries.
type Evaluator struct {
	thresholds []Threshold
}

func NewEvaluator(thresholds []Threshold) *Evaluator {
	return &Evaluator{
		thresholds: thresholds,
	}
}

// Evaluate checks all thresholds against one target's summary.
func (e *Evaluator) Evaluate(summary metrics.Summary) []Result {
	if len(e.thresholds) == 0 {
		return nil
	}

	results := make([]Result, 0, len(e.thresholds))
	for _, t := range e.thresholds {
		result := e.evaluateOne(t, summary)
		results = append(results, result)
	}
	return results
}

// EvaluateAll applies every threshold to every summary, in order.
func (e *Evaluator) EvaluateAll(summaries []metrics.Summary) []Result {
	var results []Result
	for _, s := range summaries {
		results = append(results, e.Evaluate(s)...)
	}
	return results
}

// Passed reports whether every result passed.
func Passed(results []Result) bool {
	for _, r := range results {
		if !r.Pass {
			return false
		}
	}
	return true
}

func (e *Evaluator) evaluateOne(t Threshold, summary metrics.Summary) Result {
	actual, err := extractMetricValue(t, summary)
	if err != nil {
		return Result{
			Target:    summary.Target,
			Threshold: t,
			Pass:      false,
			Message:   fmt.Sprintf("error: %v", err),
		}
	}

	pass := compareValues(actual, t.Operator, t.Value)
	status := "✓"
	if !pass {
		status = "✗"
	}

	return Result{
		Target:    summary.Target,
		Threshold: t,
		Actual:    actual,
		Pass:      pass,
		Message:   fmt.Sprintf("%s %s [%s]: %.2f %s %.2f", status, t.Raw, summary.Target, actual, t.Operator, t.Value),
	}
}

var thresholdPattern = regexp.MustCompile(`^([a-z_]+)(?::([a-z0-9]+))?\s*(<=|>=|==|<|>)\s*([0-9]+(?:\.[0-9]+)?)$`)

// Parse parses a threshold string into a Threshold struct.
// Supported formats:
//   - "latency:p99 < 2000"   (latency aggregate in ms: p50, p90, p99, avg, min, max)
//   - "error_rate < 1"       (failed requests as a percentage of all requests)
//   - "errors <= 10"         (failed request count)
//   - "rps > 5"              (successful requests per second)
//   - "requests >= 100"      (requests sent)
//   - "cancelled == 0"       (requests cut off by the end of the run)
func Parse(s string) (Threshold, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return Threshold{}, fmt.Errorf("empty threshold string")
	}

	matches := thresholdPattern.FindStringSubmatch(s)
	if matches == nil {
		return Threshold{}, fmt.Errorf("invalid threshold format: %q (expected format: metric[:aggregate] operator value, e.g., 'latency:p99 < 2000')", s)
	}

	metric := matches[1]
	aggregate := matches[2]
	operator := matches[3]

	value, err := strconv.ParseFloat(matches[4], 64)
	if err != nil {
		return Threshold{}, fmt.Errorf("invalid threshold value %q: %v", matches[4], err)
	}

	switch metric {
	case "latency":
		if aggregate == "mean" {
			aggregate = "avg"
		}
		if !isValidLatencyAggregate(aggregate) {
			return Threshold{}, fmt.Errorf("unsupported latency aggregate: %q (supported: p50, p90, p99, avg, min, max)", aggregate)
		}
	case "error_rate", "errors", "rps", "requests", "cancelled":
		if aggregate != "" {
			return Threshold{}, fmt.Errorf("metric %q takes no aggregate", metric)
		}
	default:
		return Threshold{}, fmt.Errorf("unsupported metric: %q (supported: latency, error_rate, errors, rps, requests, cancelled)", metric)
	}

	return Threshold{
		Metric:    metric,
		Aggregate: aggregate,
		Operator:  operator,
		Value:     value,
		Raw:       s,
	}, nil
}

// ParseMultiple parses multiple threshold strings.
func ParseMultiple(thresholds []string) ([]Threshold, error) {
	if len(thresholds) == 0 {
		return nil, nil
	}

	result := make([]Threshold, 0, len(thresholds))
	var errors []string

	for i, s := range thresholds {
		t, err := Parse(s)
		if err != nil {
			errors = append(errors, fmt.Sprintf("threshold[%d]: %v", i, err))
			continue
		}
		result = append(result, t)
	}

	if len(errors) > 0 {
		return nil, fmt.Errorf("threshold parsing errors: %s", strings.Join(errors, "; "))
	}

	return result, nil
}

func isValidLatencyAggregate(aggregate string) bool {
	switch aggregate {
	case "p50", "p90", "p99", "avg", "min", "max":
		return true
	}
	return false
}

func extractMetricValue(t Threshold, s metrics.Summary) (float64, error) {
	switch t.Metric {
	case "latency":
		return extractLatencyMetric(t.Aggregate, s)
	case "error_rate":
		return s.ErrorPercentage, nil
	case "errors":
		return float64(s.Failures), nil
	case "rps":
		return s.RequestsPerSec, nil
	case "requests":
		return float64(s.Total), nil
	case "cancelled":
		return float64(s.Cancelled), nil
	default:
		return 0, fmt.Errorf("unknown metric: %s", t.Metric)
	}
}

func extractLatencyMetric(aggregate string, s metrics.Summary) (float64, error) {
	switch aggregate {
	case "p50":
		return s.P50LatencyMs, nil
	case "p90":
		return s.P90LatencyMs, nil
	case "p99":
		return s.P99LatencyMs, nil
	case "avg":
		return s.MeanLatencyMs, nil
	case "min":
		return s.MinLatencyMs, nil
	case "max":
		return s.MaxLatencyMs, nil
	default:
		return 0, fmt.Errorf("unsupported aggregate %q for latency", aggregate)
	}
}

func compareValues(actual float64, operator string, expected float64) bool {
	epsilon := 1e-9

	switch operator {
	case "<":
		return actual < expected
	case "<=":
		return actual <= expected || math.Abs(actual-expected) < epsilon
	case ">":
		return actual > expected
	case ">=":
		return actual >= expected || math.Abs(actual-expected) < epsilon
	case "==":
		return math.Abs(actual-expected) < epsilon
	default:
		return false
	}
}
