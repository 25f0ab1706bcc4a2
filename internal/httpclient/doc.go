// Package httpclient issues chat requests against an HTTP inference endpoint.
//
// [Executor] implements runner.Executor: it posts one JSON payload per attempt
// with a per-request timeout and classifies the result as a success (2xx), a
// status failure, a transport failure, a timeout, or a cancellation caused by
// the run draining. [NewClient] builds the shared, pooled transport and
// [Probe] performs the advisory reachability check before a run.
package httpclient
