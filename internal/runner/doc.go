// Package runner drives load against one or more chat targets.
//
// Each target gets a [Controller] that keeps a bounded [Window] of in-flight
// attempts full for a fixed duration, cycling through the target's payloads in
// order. When the window is full the controller waits for any attempt to
// complete before admitting the next one, so the number of concurrent attempts
// never exceeds the configured concurrency.
//
// # Basic Usage
//
//	orch := runner.NewOrchestrator(runner.Options{
//		Duration:    time.Minute,
//		Concurrency: 20,
//		Timeout:     60 * time.Second,
//	}, func(t runner.Target, opt runner.Options) (runner.Executor, error) {
//		return httpclient.NewExecutor(cfg, client)
//	})
//	summaries, err := orch.Run(ctx, targets)
//
// # Executor Interface
//
// An [Executor] performs exactly one request attempt and reports a
// [metrics.Outcome]. Attempts that observe the drain cancellation (cause
// [ErrDrained]) report a cancelled outcome; executors never decide to cancel
// on their own.
//
// # Stopping
//
// A run ends when the duration elapses, when the context passed to Run is
// cancelled, or when [Orchestrator.Stop] is called. In-flight attempts are then
// cancelled, optionally after [Options.DrainGrace], and every one of them is
// still recorded.
//
// # Rate Limiting & Arrival Models
//
// Admissions can additionally be paced per target:
//   - [ArrivalModelUniform]: Requests at fixed intervals
//   - [ArrivalModelPoisson]: Requests following a Poisson distribution
//
// # Errors
//
// Individual request failures are counted, never returned. A [SetupError] is
// returned when a target cannot be driven at all; other targets are not
// affected.
package runner
