package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/runner"
)

// fakeExecutor simulates a request with fixed latency and a fixed verdict.
type fakeExecutor struct {
	latency  time.Duration
	status   int
	timeout  time.Duration
	calls    atomic.Int64
	inFlight atomic.Int64
	peak     atomic.Int64
}

func (f *fakeExecutor) Execute(ctx context.Context, payload json.RawMessage) metrics.Outcome {
	f.calls.Add(1)
	cur := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		old := f.peak.Load()
		if cur <= old || f.peak.CompareAndSwap(old, cur) {
			break
		}
	}

	wait := f.latency
	timedOut := false
	if f.timeout > 0 && f.timeout < wait {
		wait = f.timeout
		timedOut = true
	}
	start := time.Now()
	select {
	case <-time.After(wait):
	case <-ctx.Done():
		return metrics.Cancelled(context.Cause(ctx))
	}
	if timedOut {
		return metrics.Failure(metrics.ClassTimeout, 0, context.DeadlineExceeded)
	}
	status := f.status
	if status == 0 {
		status = 200
	}
	if status >= 300 {
		return metrics.Failure(metrics.ClassStatus, status, &runner.HTTPError{StatusCode: status})
	}
	return metrics.Success(time.Since(start), status)
}

func payloads(n int) []json.RawMessage {
	out := make([]json.RawMessage, n)
	for i := range out {
		out[i] = json.RawMessage(`{"model":"m","messages":[]}`)
	}
	return out
}

func assertAccounting(t *testing.T, s metrics.Summary) {
	t.Helper()
	if s.Total != s.Successes+s.Failures+s.Cancelled {
		t.Fatalf("total %d != successes %d + failures %d + cancelled %d", s.Total, s.Successes, s.Failures, s.Cancelled)
	}
	if s.ErrorPercentage < 0 || s.ErrorPercentage > 100 {
		t.Fatalf("error percentage out of range: %f", s.ErrorPercentage)
	}
}

func TestControllerSteadySuccesses(t *testing.T) {
	exec := &fakeExecutor{latency: 100 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "a", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    2 * time.Second,
		Concurrency: 1,
	})
	s, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAccounting(t, s)
	if s.Successes < 18 || s.Successes > 22 {
		t.Fatalf("expected about 20 successes, got %d", s.Successes)
	}
	if s.ErrorPercentage != 0 {
		t.Fatalf("expected 0%% errors, got %f", s.ErrorPercentage)
	}
	if s.Cancelled > 1 {
		t.Fatalf("expected at most one cancelled attempt, got %d", s.Cancelled)
	}
	if ctrl.State() != runner.StateFinished {
		t.Fatalf("expected finished state, got %s", ctrl.State())
	}
	if s.MeanLatency < 90*time.Millisecond {
		t.Fatalf("mean latency too low: %s", s.MeanLatency)
	}
}

// Every completed attempt fails; only attempts still in flight at the
// deadline are cancelled, so the error percentage over all outcomes sits at
// or just under 100.
func TestControllerAllStatusFailures(t *testing.T) {
	exec := &fakeExecutor{latency: 10 * time.Millisecond, status: 500}
	ctrl := runner.NewController(runner.Target{Name: "b", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    2 * time.Second,
		Concurrency: 5,
	})
	s, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAccounting(t, s)
	if s.Total != exec.calls.Load() {
		t.Fatalf("expected an outcome per attempt: total %d, calls %d", s.Total, exec.calls.Load())
	}
	if s.Successes != 0 {
		t.Fatalf("expected no successes, got %d", s.Successes)
	}
	if s.Cancelled > 5 {
		t.Fatalf("only in-flight attempts may be cancelled, got %d", s.Cancelled)
	}
	if s.Failures == 0 || s.Failures != s.Total-s.Cancelled {
		t.Fatalf("expected every completed attempt to fail: %+v", s)
	}
	want := float64(s.Failures) / float64(s.Total) * 100
	if math.Abs(s.ErrorPercentage-want) > 1e-9 {
		t.Fatalf("error percentage = %f, want %f", s.ErrorPercentage, want)
	}
	if floor := float64(s.Total-5) / float64(s.Total) * 100; s.ErrorPercentage < floor {
		t.Fatalf("error percentage %f below %f", s.ErrorPercentage, floor)
	}
	if s.FailuresByClass["status"] != int(s.Failures) {
		t.Fatalf("expected status class failures, got %v", s.FailuresByClass)
	}
	if s.StatusCodes["500"] != int(s.Failures) {
		t.Fatalf("expected 500 status codes recorded, got %v", s.StatusCodes)
	}
}

func TestControllerTimeoutsAreFailures(t *testing.T) {
	exec := &fakeExecutor{latency: time.Second, timeout: 50 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "c", Payloads: payloads(2)}, exec, runner.Options{
		Duration:    time.Second,
		Concurrency: 3,
	})
	s, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	assertAccounting(t, s)
	if s.Failures == 0 || s.FailuresByClass["timeout"] != int(s.Failures) {
		t.Fatalf("expected timeout failures, got %+v", s)
	}
	if s.Successes != 0 {
		t.Fatalf("expected no successes, got %d", s.Successes)
	}
	if s.Cancelled > 3 {
		t.Fatalf("only in-flight attempts may be cancelled, got %d", s.Cancelled)
	}
}

func TestControllerStopSignalDrains(t *testing.T) {
	exec := &fakeExecutor{latency: 300 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "d", Payloads: payloads(3)}, exec, runner.Options{
		Duration:    10 * time.Second,
		Concurrency: 4,
	})

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(500*time.Millisecond, cancel)

	start := time.Now()
	s, err := ctrl.Run(ctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("controller did not stop promptly: %s", elapsed)
	}
	assertAccounting(t, s)
	if s.Total != exec.calls.Load() {
		t.Fatalf("expected an outcome per attempt: total %d, calls %d", s.Total, exec.calls.Load())
	}
	if s.Cancelled == 0 {
		t.Fatalf("expected in-flight attempts to be cancelled")
	}
	if s.Successes == 0 {
		t.Fatalf("expected successes before the stop signal")
	}
}

func TestControllerDrainGraceLetsRequestsFinish(t *testing.T) {
	exec := &fakeExecutor{latency: 150 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "grace", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    200 * time.Millisecond,
		Concurrency: 2,
		DrainGrace:  time.Second,
	})
	s, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.Cancelled != 0 {
		t.Fatalf("expected no cancellations with a drain grace, got %d", s.Cancelled)
	}
	if s.Successes != s.Total {
		t.Fatalf("expected all attempts to succeed: %+v", s)
	}
}

func TestControllerConcurrencyLimit(t *testing.T) {
	exec := &fakeExecutor{latency: 5 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "limit", Payloads: payloads(4)}, exec, runner.Options{
		Duration:    300 * time.Millisecond,
		Concurrency: 3,
	})
	s, _ := ctrl.Run(context.Background())
	assertAccounting(t, s)
	if peak := exec.peak.Load(); peak > 3 {
		t.Fatalf("in-flight exceeded limit: %d", peak)
	}
}

func TestControllerCyclesPayloads(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	exec := runner.ExecutorFunc(func(ctx context.Context, payload json.RawMessage) metrics.Outcome {
		mu.Lock()
		seen = append(seen, string(payload))
		mu.Unlock()
		return metrics.Success(time.Millisecond, 200)
	})
	target := runner.Target{Name: "cycle", Payloads: []json.RawMessage{
		json.RawMessage(`"a"`), json.RawMessage(`"b"`), json.RawMessage(`"c"`),
	}}
	ctrl := runner.NewController(target, exec, runner.Options{
		Duration:      250 * time.Millisecond,
		Concurrency:   1,
		RatePerSecond: 40,
	})
	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) < 4 {
		t.Fatalf("expected wrap-around, only %d attempts", len(seen))
	}
	want := []string{`"a"`, `"b"`, `"c"`}
	for i, got := range seen {
		if got != want[i%3] {
			t.Fatalf("attempt %d used payload %s, want %s", i, got, want[i%3])
		}
	}
}

type failingPreparer struct{ fakeExecutor }

func (f *failingPreparer) Prepare(context.Context) error {
	return errors.New("bad url")
}

func TestControllerSetupFailure(t *testing.T) {
	exec := &failingPreparer{}
	ctrl := runner.NewController(runner.Target{Name: "broken", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    time.Second,
		Concurrency: 2,
	})
	s, err := ctrl.Run(context.Background())
	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected SetupError, got %v", err)
	}
	if setupErr.Target != "broken" {
		t.Fatalf("unexpected target %q", setupErr.Target)
	}
	if exec.calls.Load() != 0 {
		t.Fatalf("no attempt should run after setup failure")
	}
	if !strings.Contains(err.Error(), "bad url") {
		t.Fatalf("setup error lost its cause: %v", err)
	}
	if s.Total != 0 || s.Failures != 0 || len(s.FailuresByClass) != 0 || s.ErrorPercentage != 0 {
		t.Fatalf("a target that never started reports no attempts, got %+v", s)
	}
	if ctrl.State() != runner.StateFinished {
		t.Fatalf("expected finished state, got %s", ctrl.State())
	}
}

func TestControllerSetupOutcomeStopsRun(t *testing.T) {
	var calls atomic.Int64
	exec := runner.ExecutorFunc(func(ctx context.Context, payload json.RawMessage) metrics.Outcome {
		calls.Add(1)
		return metrics.Failure(metrics.ClassSetup, 0, errors.New("transport unusable"))
	})
	ctrl := runner.NewController(runner.Target{Name: "x", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    5 * time.Second,
		Concurrency: 1,
	})
	start := time.Now()
	_, err := ctrl.Run(context.Background())
	if err == nil {
		t.Fatalf("expected setup error")
	}
	if time.Since(start) > time.Second {
		t.Fatalf("setup failure should end the run early")
	}
	if calls.Load() > 2 {
		t.Fatalf("expected the run to stop after the first setup failure, got %d calls", calls.Load())
	}
}

func TestControllerEmptyPayloads(t *testing.T) {
	ctrl := runner.NewController(runner.Target{Name: "empty"}, &fakeExecutor{}, runner.Options{Duration: time.Second})
	_, err := ctrl.Run(context.Background())
	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) {
		t.Fatalf("expected SetupError, got %v", err)
	}
}

func TestControllerPanicIsRecovered(t *testing.T) {
	exec := runner.ExecutorFunc(func(ctx context.Context, payload json.RawMessage) metrics.Outcome {
		panic("boom")
	})
	ctrl := runner.NewController(runner.Target{Name: "p", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    100 * time.Millisecond,
		Concurrency: 2,
	})
	s, err := ctrl.Run(context.Background())
	if err != nil {
		t.Fatalf("executor panics are per-attempt failures, got %v", err)
	}
	if s.Failures == 0 || s.FailuresByClass["unexpected"] != int(s.Failures) {
		t.Fatalf("expected unexpected failures, got %+v", s.FailuresByClass)
	}
}

// failOnceObserver panics on the first outcome it sees.
type failOnceObserver struct{ fired atomic.Bool }

func (o *failOnceObserver) Observe(string, metrics.Outcome) {
	if o.fired.CompareAndSwap(false, true) {
		panic("observer failure")
	}
}

func TestControllerPanicDrainsInFlightAttempts(t *testing.T) {
	var calls, active atomic.Int64
	exec := runner.ExecutorFunc(func(ctx context.Context, payload json.RawMessage) metrics.Outcome {
		if calls.Add(1) == 1 {
			return metrics.Success(time.Millisecond, 200)
		}
		active.Add(1)
		defer active.Add(-1)
		<-ctx.Done()
		return metrics.Cancelled(context.Cause(ctx))
	})
	ctrl := runner.NewController(runner.Target{Name: "crash", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    5 * time.Second,
		Concurrency: 3,
		Observer:    &failOnceObserver{},
	})

	start := time.Now()
	s, err := ctrl.Run(context.Background())
	if elapsed := time.Since(start); elapsed > 2*time.Second {
		t.Fatalf("controller did not stop after the panic: %s", elapsed)
	}
	var setupErr *runner.SetupError
	if !errors.As(err, &setupErr) || !strings.Contains(err.Error(), "controller panic") {
		t.Fatalf("expected controller panic error, got %v", err)
	}
	if n := active.Load(); n != 0 {
		t.Fatalf("%d attempts still running after Run returned", n)
	}
	assertAccounting(t, s)
	if s.Total != calls.Load() {
		t.Fatalf("expected an outcome per attempt: total %d, calls %d", s.Total, calls.Load())
	}
	if s.Successes != 1 || s.Cancelled != s.Total-1 {
		t.Fatalf("expected one success and the rest cancelled, got %+v", s)
	}
	if ctrl.State() != runner.StateFinished {
		t.Fatalf("expected finished state, got %s", ctrl.State())
	}
}

type stateRecorder struct {
	mu     sync.Mutex
	states []runner.State
	seen   int
}

func (r *stateRecorder) Observe(string, metrics.Outcome) {
	r.mu.Lock()
	r.seen++
	r.mu.Unlock()
}

func (r *stateRecorder) StateChanged(target string, s runner.State) {
	r.mu.Lock()
	r.states = append(r.states, s)
	r.mu.Unlock()
}

func TestControllerReportsStateTransitions(t *testing.T) {
	rec := &stateRecorder{}
	exec := &fakeExecutor{latency: 5 * time.Millisecond}
	ctrl := runner.NewController(runner.Target{Name: "m", Payloads: payloads(1)}, exec, runner.Options{
		Duration:    50 * time.Millisecond,
		Concurrency: 2,
		Observer:    rec,
	})

	if _, err := ctrl.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()
	want := []runner.State{runner.StateRunning, runner.StateDraining, runner.StateFinished}
	if len(rec.states) != len(want) {
		t.Fatalf("states = %v, want %v", rec.states, want)
	}
	for i := range want {
		if rec.states[i] != want[i] {
			t.Fatalf("states = %v, want %v", rec.states, want)
		}
	}
	if rec.seen == 0 {
		t.Error("observer saw no outcomes")
	}
}
