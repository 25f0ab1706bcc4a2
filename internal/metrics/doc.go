// Package metrics turns per-request outcomes into per-target statistics.
//
// Every request attempt ends in exactly one [Outcome]: a success carrying its
// latency, a failure carrying a [FailureClass], or a cancellation caused by the
// end-of-run drain. Outcomes of one target are folded into an [Aggregator]:
//
//	agg := metrics.NewAggregator("llama3.1:latest", time.Minute)
//	agg.Record(metrics.Success(120*time.Millisecond, 200))
//	agg.Record(metrics.Failure(metrics.ClassTimeout, 0, err))
//	summary := agg.Finalize(elapsed)
//
// # Summary
//
// [Summary] holds the counters (total, successful, errors, cancelled), the
// throughput (successful requests per second of elapsed wall time), the error
// percentage and latency statistics. Latency statistics only cover successful
// attempts and are all zero when there were none. Percentiles come from an
// HDR histogram.
//
// Cancelled attempts are counted separately from failures so that the error
// percentage is not polluted by the harness stopping work at the deadline.
//
// # Thread Safety
//
// Record is meant to be called by a single goroutine per target. The
// Aggregator still guards its state with a mutex so that progress reporters can
// call [Aggregator.Snapshot] while the run is going.
package metrics
