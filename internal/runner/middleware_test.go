package runner

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/torosent/chatcrank/internal/metrics"
)

type recordingLogger struct {
	targets  []string
	outcomes []metrics.Outcome
}

func (r *recordingLogger) LogFailure(target string, outcome metrics.Outcome) {
	r.targets = append(r.targets, target)
	r.outcomes = append(r.outcomes, outcome)
}

type preparedExecutor struct {
	prepared bool
	outcome  metrics.Outcome
}

func (p *preparedExecutor) Prepare(context.Context) error {
	p.prepared = true
	return nil
}

func (p *preparedExecutor) Execute(context.Context, json.RawMessage) metrics.Outcome {
	return p.outcome
}

func TestWithLoggingLogsFailuresOnly(t *testing.T) {
	logger := &recordingLogger{}
	inner := &preparedExecutor{outcome: metrics.Failure(metrics.ClassTransport, 0, errors.New("refused"))}
	exec := WithLogging(inner, "llama3", logger)

	exec.Execute(context.Background(), nil)
	if len(logger.outcomes) != 1 || logger.targets[0] != "llama3" {
		t.Fatalf("expected one logged failure, got %+v", logger.targets)
	}

	inner.outcome = metrics.Cancelled(ErrDrained)
	exec.Execute(context.Background(), nil)
	inner.outcome = metrics.Success(0, 200)
	exec.Execute(context.Background(), nil)
	if len(logger.outcomes) != 1 {
		t.Fatalf("cancelled and successful attempts must not be logged")
	}
}

func TestWithLoggingForwardsPrepare(t *testing.T) {
	inner := &preparedExecutor{}
	exec := WithLogging(inner, "t", &recordingLogger{})
	p, ok := exec.(Preparer)
	if !ok {
		t.Fatalf("logging executor should expose Prepare")
	}
	if err := p.Prepare(context.Background()); err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if !inner.prepared {
		t.Fatalf("prepare was not forwarded")
	}
}

func TestWithLoggingNilLogger(t *testing.T) {
	inner := &preparedExecutor{}
	if got := WithLogging(inner, "t", nil); got != Executor(inner) {
		t.Fatalf("nil logger should return the executor unchanged")
	}
}

func TestSetupErrorUnwrap(t *testing.T) {
	cause := errors.New("bad url")
	err := &SetupError{Target: "x", Err: cause}
	if !errors.Is(err, cause) {
		t.Fatalf("SetupError should unwrap to its cause")
	}
	if err.Error() != `target "x": setup failed: bad url` {
		t.Fatalf("unexpected message %q", err.Error())
	}
}
