package runner

import (
	"context"
	"encoding/json"

	"github.com/torosent/chatcrank/internal/metrics"
)

// FailureLogger logs failed request attempts.
type FailureLogger interface {
	LogFailure(target string, outcome metrics.Outcome)
}

type loggingExecutor struct {
	inner  Executor
	target string
	logger FailureLogger
}

// WithLogging wraps an Executor so failed outcomes are reported to logger.
// Cancelled attempts are not failures and are not logged.
func WithLogging(exec Executor, target string, logger FailureLogger) Executor {
	if logger == nil {
		return exec
	}
	return &loggingExecutor{inner: exec, target: target, logger: logger}
}

func (l *loggingExecutor) Execute(ctx context.Context, payload json.RawMessage) metrics.Outcome {
	outcome := l.inner.Execute(ctx, payload)
	if outcome.Kind == metrics.OutcomeFailure {
		l.logger.LogFailure(l.target, outcome)
	}
	return outcome
}

func (l *loggingExecutor) Prepare(ctx context.Context) error {
	if p, ok := l.inner.(Preparer); ok {
		return p.Prepare(ctx)
	}
	return nil
}
