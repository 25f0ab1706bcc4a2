package runner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/torosent/chatcrank/internal/metrics"
)

// Orchestrator runs one Controller per target in parallel over a shared
// configuration and a shared stop signal.
type Orchestrator struct {
	opt     Options
	factory ExecutorFactory

	mu          sync.Mutex
	controllers []*Controller
	stop        context.CancelFunc
	stopped     bool
}

// NewOrchestrator creates an orchestrator. factory is called once per target.
func NewOrchestrator(opt Options, factory ExecutorFactory) *Orchestrator {
	opt.normalize()
	return &Orchestrator{opt: opt, factory: factory}
}

// Run drives every target and blocks until all have finished. The returned map
// holds one summary per target, including targets that failed setup. The
// error joins every per-target *SetupError.
func (o *Orchestrator) Run(ctx context.Context, targets []Target) (map[string]metrics.Summary, error) {
	if len(targets) == 0 {
		return nil, errors.New("no targets configured")
	}
	seen := make(map[string]struct{}, len(targets))
	for _, t := range targets {
		if _, dup := seen[t.Name]; dup {
			return nil, fmt.Errorf("duplicate target %q", t.Name)
		}
		seen[t.Name] = struct{}{}
	}

	stopCtx, stop := context.WithCancel(ctx)
	defer stop()

	controllers := make([]*Controller, len(targets))
	for i, t := range targets {
		exec, err := o.buildExecutor(t)
		if err != nil {
			exec = failedSetup{err: err}
		}
		controllers[i] = NewController(t, exec, o.opt)
	}

	o.mu.Lock()
	o.controllers = controllers
	o.stop = stop
	if o.stopped {
		stop()
	}
	o.mu.Unlock()

	summaries := make([]metrics.Summary, len(controllers))
	errs := make([]error, len(controllers))
	var g errgroup.Group
	for i, ctrl := range controllers {
		g.Go(func() error {
			summaries[i], errs[i] = ctrl.Run(stopCtx)
			return nil
		})
	}
	_ = g.Wait()

	results := make(map[string]metrics.Summary, len(summaries))
	for _, s := range summaries {
		results[s.Target] = s
	}
	return results, errors.Join(errs...)
}

// Stop signals every controller to stop admitting and drain. It is safe to
// call before, during, or after Run, and more than once.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopped = true
	if o.stop != nil {
		o.stop()
	}
}

// Snapshot returns live statistics for every target of the current run, in
// configuration order.
func (o *Orchestrator) Snapshot() []metrics.Summary {
	o.mu.Lock()
	controllers := o.controllers
	o.mu.Unlock()

	out := make([]metrics.Summary, 0, len(controllers))
	for _, c := range controllers {
		out = append(out, c.Snapshot())
	}
	return out
}

// States reports the lifecycle phase of every controller, keyed by target.
func (o *Orchestrator) States() map[string]State {
	o.mu.Lock()
	controllers := o.controllers
	o.mu.Unlock()

	out := make(map[string]State, len(controllers))
	for _, c := range controllers {
		out[c.Target()] = c.State()
	}
	return out
}

func (o *Orchestrator) buildExecutor(t Target) (exec Executor, err error) {
	if o.factory == nil {
		return nil, errors.New("no executor factory")
	}
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("executor factory panic: %v", p)
		}
	}()
	return o.factory(t, o.opt)
}

// failedSetup stands in for an executor whose construction failed, so the
// target is reported through the usual setup path.
type failedSetup struct {
	err error
}

func (f failedSetup) Prepare(context.Context) error { return f.err }

func (f failedSetup) Execute(context.Context, json.RawMessage) metrics.Outcome {
	return metrics.Failure(metrics.ClassSetup, 0, f.err)
}
