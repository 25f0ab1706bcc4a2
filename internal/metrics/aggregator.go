package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
)

// Aggregator accumulates the outcomes of one target. Record is expected to be
// called from a single goroutine; the mutex only makes live snapshots safe.
type Aggregator struct {
	mu         sync.Mutex
	target     string
	configured time.Duration
	hist       *hdrhistogram.Histogram
	successes  int64
	failures   int64
	cancelled  int64
	minLatency time.Duration
	maxLatency time.Duration
	sumLatency time.Duration
	byClass    map[FailureClass]int64
	byStatus   map[int]int64
}

// Summary is the finalized, read-only statistics of one target.
type Summary struct {
	Target          string        `json:"target"`
	Total           int64         `json:"total_requests_sent"`
	Successes       int64         `json:"successful"`
	Failures        int64         `json:"errors"`
	Cancelled       int64         `json:"cancelled"`
	RequestsPerSec  float64       `json:"requests_per_sec"`
	ErrorPercentage float64       `json:"error_percentage"`
	MinLatency      time.Duration `json:"-"`
	MaxLatency      time.Duration `json:"-"`
	MeanLatency     time.Duration `json:"-"`
	P50Latency      time.Duration `json:"-"`
	P90Latency      time.Duration `json:"-"`
	P99Latency      time.Duration `json:"-"`
	Elapsed         time.Duration `json:"-"`

	// JSON-friendly millisecond fields.
	MinLatencyMs  float64 `json:"min_latency_ms"`
	MaxLatencyMs  float64 `json:"max_latency_ms"`
	MeanLatencyMs float64 `json:"mean_latency_ms"`
	P50LatencyMs  float64 `json:"p50_latency_ms"`
	P90LatencyMs  float64 `json:"p90_latency_ms"`
	P99LatencyMs  float64 `json:"p99_latency_ms"`
	ElapsedMs     float64 `json:"elapsed_ms"`

	FailuresByClass map[string]int `json:"failures_by_class,omitempty"`
	StatusCodes     map[string]int `json:"status_codes,omitempty"`
}

// NewAggregator creates an empty accumulator. configured is the run duration
// used for throughput when no elapsed time is known.
func NewAggregator(target string, configured time.Duration) *Aggregator {
	// Track latencies from 1µs up to 10 minutes with 3 significant figures.
	h := hdrhistogram.New(1, 600_000_000, 3)
	return &Aggregator{
		target:     target,
		configured: configured,
		hist:       h,
		byClass:    make(map[FailureClass]int64),
		byStatus:   make(map[int]int64),
	}
}

// Target returns the identifier the aggregator was created for.
func (a *Aggregator) Target() string {
	return a.target
}

// Record folds one outcome into the accumulator.
func (a *Aggregator) Record(o Outcome) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if o.StatusCode > 0 {
		a.byStatus[o.StatusCode]++
	}

	switch o.Kind {
	case OutcomeSuccess:
		a.successes++
		latency := o.Latency
		us := latency.Microseconds()
		if us < a.hist.LowestTrackableValue() {
			us = a.hist.LowestTrackableValue()
		}
		if us > a.hist.HighestTrackableValue() {
			us = a.hist.HighestTrackableValue()
		}
		_ = a.hist.RecordValue(us)
		a.sumLatency += latency
		if a.successes == 1 || latency < a.minLatency {
			a.minLatency = latency
		}
		if latency > a.maxLatency {
			a.maxLatency = latency
		}
	case OutcomeCancelled:
		a.cancelled++
	default:
		a.failures++
		class := o.Class
		if class == "" {
			class = ClassUnexpected
		}
		a.byClass[class]++
	}
}

// Finalize computes the Summary. It does not mutate the accumulator, so calling
// it twice with the same elapsed time yields identical results.
func (a *Aggregator) Finalize(elapsed time.Duration) Summary {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.summaryLocked(elapsed)
}

// Snapshot is Finalize for a run still in progress.
func (a *Aggregator) Snapshot(elapsed time.Duration) Summary {
	return a.Finalize(elapsed)
}

func (a *Aggregator) summaryLocked(elapsed time.Duration) Summary {
	total := a.successes + a.failures + a.cancelled
	s := Summary{
		Target:    a.target,
		Total:     total,
		Successes: a.successes,
		Failures:  a.failures,
		Cancelled: a.cancelled,
		Elapsed:   elapsed,
	}

	if a.successes > 0 {
		s.MinLatency = a.minLatency
		s.MaxLatency = a.maxLatency
		s.MeanLatency = time.Duration(int64(a.sumLatency) / a.successes)
		s.P50Latency = time.Duration(a.hist.ValueAtQuantile(50)) * time.Microsecond
		s.P90Latency = time.Duration(a.hist.ValueAtQuantile(90)) * time.Microsecond
		s.P99Latency = time.Duration(a.hist.ValueAtQuantile(99)) * time.Microsecond
	}

	window := elapsed
	if window <= 0 {
		window = a.configured
	}
	if window > 0 && a.successes > 0 {
		s.RequestsPerSec = float64(a.successes) / window.Seconds()
	}
	if total > 0 {
		s.ErrorPercentage = float64(a.failures) / float64(total) * 100
	}

	s.MinLatencyMs = toMillis(s.MinLatency)
	s.MaxLatencyMs = toMillis(s.MaxLatency)
	s.MeanLatencyMs = toMillis(s.MeanLatency)
	s.P50LatencyMs = toMillis(s.P50Latency)
	s.P90LatencyMs = toMillis(s.P90Latency)
	s.P99LatencyMs = toMillis(s.P99Latency)
	s.ElapsedMs = toMillis(elapsed)

	if len(a.byClass) > 0 {
		s.FailuresByClass = make(map[string]int, len(a.byClass))
		for k, v := range a.byClass {
			s.FailuresByClass[string(k)] = int(v)
		}
	}
	if len(a.byStatus) > 0 {
		s.StatusCodes = make(map[string]int, len(a.byStatus))
		for k, v := range a.byStatus {
			s.StatusCodes[strconv.Itoa(k)] = int(v)
		}
	}
	return s
}

func toMillis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}
