package runner

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/torosent/chatcrank/internal/metrics"
)

// State is the lifecycle phase of a Controller.
type State int32

const (
	StatePending State = iota
	StateRunning
	StateDraining
	StateFinished
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateFinished:
		return "finished"
	default:
		return "unknown"
	}
}

// Controller keeps one target's concurrency window full until the run
// deadline or the stop signal, then drains it and finalizes the statistics.
type Controller struct {
	target Target
	opt    Options
	exec   Executor
	agg    *metrics.Aggregator
	state  atomic.Int32
	start  atomic.Int64
	fatal  error
}

// NewController prepares a controller for target. It does not start any work.
func NewController(target Target, exec Executor, opt Options) *Controller {
	opt.normalize()
	return &Controller{
		target: target,
		opt:    opt,
		exec:   exec,
		agg:    metrics.NewAggregator(target.Name, opt.Duration),
	}
}

// Target returns the name of the driven target.
func (c *Controller) Target() string { return c.target.Name }

// State reports the current lifecycle phase.
func (c *Controller) State() State { return State(c.state.Load()) }

// Snapshot returns live statistics for a run in progress.
func (c *Controller) Snapshot() metrics.Summary {
	var elapsed time.Duration
	if started := c.start.Load(); started > 0 {
		elapsed = time.Since(time.Unix(0, started))
	}
	return c.agg.Snapshot(elapsed)
}

// Run drives the target until opt.Duration elapses or ctx is cancelled.
// Stopping early is not an error: the summary covers whatever completed.
// A *SetupError is returned when the target could not be driven; the summary
// is still valid and reflects the attempts that did finish, which is none
// when Prepare fails.
func (c *Controller) Run(ctx context.Context) (summary metrics.Summary, err error) {
	start := time.Now()
	c.start.Store(start.UnixNano())
	c.setState(StateRunning)

	var window *Window
	defer func() {
		if p := recover(); p != nil {
			err = &SetupError{Target: c.target.Name, Err: fmt.Errorf("controller panic: %v", p)}
			if window != nil {
				c.setState(StateDraining)
				drainAfterPanic(window)
			}
		}
		summary = c.agg.Finalize(time.Since(start))
		c.setState(StateFinished)
	}()

	if len(c.target.Payloads) == 0 {
		return summary, &SetupError{Target: c.target.Name, Err: errors.New("no payloads")}
	}
	if c.exec == nil {
		return summary, &SetupError{Target: c.target.Name, Err: errors.New("no executor")}
	}
	if p, ok := c.exec.(Preparer); ok {
		if err := p.Prepare(ctx); err != nil {
			return summary, &SetupError{Target: c.target.Name, Err: err}
		}
	}

	runCtx := ctx
	if c.opt.Duration > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, c.opt.Duration)
		defer cancel()
	}

	window = NewWindow(ctx, c.opt.Concurrency, c.exec, c.record)
	arrival := newPacer(c.opt)
	payloads := c.target.Payloads

	for i := 0; c.fatal == nil && runCtx.Err() == nil; i = (i + 1) % len(payloads) {
		if arrival != nil {
			if err := arrival.Wait(runCtx); err != nil {
				break
			}
		}
		if err := window.Admit(runCtx, payloads[i]); err != nil {
			break
		}
	}

	c.setState(StateDraining)
	if c.fatal != nil {
		window.Drain(true)
	} else {
		window.DrainWithin(c.opt.DrainGrace)
	}
	return summary, c.fatal
}

// drainAfterPanic cancels and collects the window's attempts. A second panic
// from the sink is swallowed; the cancelled attempts still exit because the
// completion channel is buffered to the limit.
func drainAfterPanic(w *Window) {
	defer func() { _ = recover() }()
	w.Drain(true)
}

func (c *Controller) setState(s State) {
	c.state.Store(int32(s))
	if so, ok := c.opt.Observer.(StateObserver); ok {
		so.StateChanged(c.target.Name, s)
	}
}

func (c *Controller) record(outcome metrics.Outcome) {
	c.agg.Record(outcome)
	if c.opt.Observer != nil {
		c.opt.Observer.Observe(c.target.Name, outcome)
	}
	if outcome.Kind == metrics.OutcomeFailure && outcome.Class == metrics.ClassSetup && c.fatal == nil {
		c.fatal = &SetupError{Target: c.target.Name, Err: outcome.Err}
	}
}
