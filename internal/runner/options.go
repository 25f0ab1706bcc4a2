package runner

import (
	"context"
	"encoding/json"
	"time"

	"golang.org/x/time/rate"

	"github.com/torosent/chatcrank/internal/metrics"
)

// Executor issues one request attempt and classifies how it ended.
// Implementations must honour ctx cancellation and must return exactly one
// Outcome per call.
type Executor interface {
	Execute(ctx context.Context, payload json.RawMessage) metrics.Outcome
}

// Preparer is implemented by executors that need to initialise their
// transport before the first attempt. A Prepare error is fatal to the target.
type Preparer interface {
	Prepare(ctx context.Context) error
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(ctx context.Context, payload json.RawMessage) metrics.Outcome

func (f ExecutorFunc) Execute(ctx context.Context, payload json.RawMessage) metrics.Outcome {
	return f(ctx, payload)
}

// ExecutorFactory builds the executor for one target.
type ExecutorFactory func(target Target, opt Options) (Executor, error)

// Observer receives every outcome right after it is recorded.
type Observer interface {
	Observe(target string, outcome metrics.Outcome)
}

// StateObserver may additionally be implemented by an Observer to follow
// controller lifecycle transitions.
type StateObserver interface {
	StateChanged(target string, state State)
}

// Target is a named payload sequence cycled through during a run.
type Target struct {
	Name     string
	Payloads []json.RawMessage
}

// Options configure a run. They are shared read-only by every controller.
type Options struct {
	Duration       time.Duration // per-target run time (0 means until the stop signal)
	Concurrency    int           // max in-flight requests per target
	Timeout        time.Duration // per-request timeout handed to executors
	RatePerSecond  int           // admission pacing per target (0 means unlimited)
	ArrivalModel   ArrivalModel  // pacing model when RatePerSecond > 0
	RandomSeed     int64
	PoissonSampler func() float64
	DrainGrace     time.Duration // wait this long for in-flight work before cancelling it
	Observer       Observer
	LimiterFactory func(rps int) *rate.Limiter // optional injection for tests
}

func (o *Options) normalize() {
	if o.Concurrency <= 0 {
		o.Concurrency = 1
	}
	if o.Duration < 0 {
		o.Duration = 0
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.RatePerSecond < 0 {
		o.RatePerSecond = 0
	}
	if o.DrainGrace < 0 {
		o.DrainGrace = 0
	}
	if o.ArrivalModel == "" {
		o.ArrivalModel = ArrivalModelUniform
	}
	if o.RandomSeed == 0 {
		o.RandomSeed = time.Now().UnixNano()
	}
	if o.LimiterFactory == nil {
		o.LimiterFactory = func(rps int) *rate.Limiter {
			if rps <= 0 {
				return rate.NewLimiter(rate.Inf, 0)
			}
			return rate.NewLimiter(rate.Limit(rps), 1)
		}
	}
}
