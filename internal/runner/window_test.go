package runner_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/runner"
)

func blockingExecutor(release <-chan struct{}) runner.Executor {
	return runner.ExecutorFunc(func(ctx context.Context, payload json.RawMessage) metrics.Outcome {
		select {
		case <-release:
			return metrics.Success(time.Millisecond, 200)
		case <-ctx.Done():
			return metrics.Cancelled(context.Cause(ctx))
		}
	})
}

func TestWindowAdmitBlocksWhenFull(t *testing.T) {
	release := make(chan struct{})
	var outcomes []metrics.Outcome
	w := runner.NewWindow(context.Background(), 1, blockingExecutor(release), func(o metrics.Outcome) {
		outcomes = append(outcomes, o)
	})

	if err := w.Admit(context.Background(), nil); err != nil {
		t.Fatalf("first admit: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	if err := w.Admit(ctx, nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline error from full window, got %v", err)
	}
	if w.Admitted() != 1 || w.InFlight() != 1 {
		t.Fatalf("nothing should be admitted on timeout: admitted=%d inflight=%d", w.Admitted(), w.InFlight())
	}

	close(release)
	w.Drain(false)
	if len(outcomes) != 1 || outcomes[0].Kind != metrics.OutcomeSuccess {
		t.Fatalf("expected one success, got %+v", outcomes)
	}
}

func TestWindowDrainCancelsInFlight(t *testing.T) {
	var outcomes []metrics.Outcome
	w := runner.NewWindow(context.Background(), 3, blockingExecutor(nil), func(o metrics.Outcome) {
		outcomes = append(outcomes, o)
	})
	for i := 0; i < 3; i++ {
		if err := w.Admit(context.Background(), nil); err != nil {
			t.Fatalf("admit %d: %v", i, err)
		}
	}
	w.Drain(true)

	if len(outcomes) != 3 {
		t.Fatalf("expected 3 outcomes, got %d", len(outcomes))
	}
	for _, o := range outcomes {
		if o.Kind != metrics.OutcomeCancelled || !errors.Is(o.Err, runner.ErrDrained) {
			t.Fatalf("expected drained cancellation, got %+v", o)
		}
	}
	if w.InFlight() != 0 || w.Peak() != 3 {
		t.Fatalf("unexpected window state: inflight=%d peak=%d", w.InFlight(), w.Peak())
	}
	if err := w.Admit(context.Background(), nil); !errors.Is(err, runner.ErrWindowClosed) {
		t.Fatalf("expected closed window, got %v", err)
	}
}

func TestWindowIgnoresParentCancellation(t *testing.T) {
	parent, cancel := context.WithCancel(context.Background())
	release := make(chan struct{})
	var got metrics.Outcome
	w := runner.NewWindow(parent, 1, blockingExecutor(release), func(o metrics.Outcome) { got = o })
	if err := w.Admit(context.Background(), nil); err != nil {
		t.Fatalf("admit: %v", err)
	}
	cancel()
	close(release)
	w.Drain(false)
	if got.Kind != metrics.OutcomeSuccess {
		t.Fatalf("in-flight attempt should survive parent cancellation, got %+v", got)
	}
}

func TestWindowDrainWithinGrace(t *testing.T) {
	var outcomes []metrics.Outcome
	w := runner.NewWindow(context.Background(), 1, blockingExecutor(nil), func(o metrics.Outcome) {
		outcomes = append(outcomes, o)
	})
	if err := w.Admit(context.Background(), nil); err != nil {
		t.Fatalf("admit: %v", err)
	}
	start := time.Now()
	w.DrainWithin(50 * time.Millisecond)
	if time.Since(start) < 40*time.Millisecond {
		t.Fatalf("drain returned before grace elapsed")
	}
	if len(outcomes) != 1 || outcomes[0].Kind != metrics.OutcomeCancelled {
		t.Fatalf("expected cancellation after grace, got %+v", outcomes)
	}
}

func TestWindowRecoversPanics(t *testing.T) {
	var got metrics.Outcome
	w := runner.NewWindow(context.Background(), 1, runner.ExecutorFunc(func(context.Context, json.RawMessage) metrics.Outcome {
		panic("boom")
	}), func(o metrics.Outcome) { got = o })
	if err := w.Admit(context.Background(), nil); err != nil {
		t.Fatalf("admit: %v", err)
	}
	w.Drain(false)
	if got.Kind != metrics.OutcomeFailure || got.Class != metrics.ClassUnexpected {
		t.Fatalf("expected unexpected failure, got %+v", got)
	}
}
