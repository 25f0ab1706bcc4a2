package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
)

// ErrWindowClosed is returned by Admit once the window has been drained.
var ErrWindowClosed = errors.New("window closed")

// Window bounds the number of in-flight attempts for one target. Each admitted
// attempt runs in its own goroutine and reports back on a completion channel
// sized to the limit, so a finished attempt never blocks.
//
// Admit, Drain and DrainWithin must be called from a single goroutine. The sink
// is invoked on that goroutine, once per admitted attempt.
type Window struct {
	limit  int
	exec   Executor
	sink   func(metrics.Outcome)
	ctx    context.Context
	cancel context.CancelCauseFunc
	done   chan metrics.Outcome

	inFlight int
	admitted int64
	peak     int
	closed   bool
}

// NewWindow creates a window with room for limit concurrent attempts.
// Attempts inherit values from parent but not its cancellation: they only end
// early when the window is drained.
func NewWindow(parent context.Context, limit int, exec Executor, sink func(metrics.Outcome)) *Window {
	if limit <= 0 {
		limit = 1
	}
	ctx, cancel := context.WithCancelCause(context.WithoutCancel(parent))
	return &Window{
		limit:  limit,
		exec:   exec,
		sink:   sink,
		ctx:    ctx,
		cancel: cancel,
		done:   make(chan metrics.Outcome, limit),
	}
}

// Admit starts one attempt with payload. When the window is full it blocks
// until any attempt completes or ctx is done; in the latter case nothing is
// admitted and ctx's error is returned.
func (w *Window) Admit(ctx context.Context, payload json.RawMessage) error {
	if w.closed {
		return ErrWindowClosed
	}
	w.reap()
	if w.inFlight >= w.limit {
		select {
		case outcome := <-w.done:
			w.collect(outcome)
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	w.inFlight++
	w.admitted++
	if w.inFlight > w.peak {
		w.peak = w.inFlight
	}
	go w.execute(payload)
	return nil
}

// Drain closes the window and collects every remaining attempt. With cancel
// set the attempts are cancelled first (cause ErrDrained); otherwise they are
// allowed to finish on their own.
func (w *Window) Drain(cancel bool) {
	w.closed = true
	if cancel {
		w.cancel(ErrDrained)
	}
	for w.inFlight > 0 {
		w.collect(<-w.done)
	}
	w.cancel(ErrDrained)
}

// DrainWithin lets in-flight attempts run for up to grace before cancelling
// whatever is left.
func (w *Window) DrainWithin(grace time.Duration) {
	w.closed = true
	if grace <= 0 {
		w.Drain(true)
		return
	}
	timer := time.NewTimer(grace)
	defer timer.Stop()
	for w.inFlight > 0 {
		select {
		case outcome := <-w.done:
			w.collect(outcome)
		case <-timer.C:
			w.Drain(true)
			return
		}
	}
	w.cancel(ErrDrained)
}

// InFlight reports attempts admitted but not yet collected.
func (w *Window) InFlight() int { return w.inFlight }

// Admitted reports the total number of attempts started.
func (w *Window) Admitted() int64 { return w.admitted }

// Peak reports the highest InFlight value observed.
func (w *Window) Peak() int { return w.peak }

func (w *Window) reap() {
	for {
		select {
		case outcome := <-w.done:
			w.collect(outcome)
		default:
			return
		}
	}
}

func (w *Window) collect(outcome metrics.Outcome) {
	w.inFlight--
	if w.sink != nil {
		w.sink(outcome)
	}
}

func (w *Window) execute(payload json.RawMessage) {
	var outcome metrics.Outcome
	defer func() {
		if p := recover(); p != nil {
			outcome = metrics.Failure(metrics.ClassUnexpected, 0, fmt.Errorf("executor panic: %v", p))
		}
		w.done <- outcome
	}()
	outcome = w.exec.Execute(w.ctx, payload)
}
