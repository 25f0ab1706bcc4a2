// Package logging builds the zap logger shared by the command and its
// failure hook.
package logging

import (
	"errors"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/runner"
)

// New returns a console logger named "chatcrank" writing to stderr. Verbose
// enables debug level.
func New(verbose bool) *zap.Logger {
	return NewWithWriter(os.Stderr, verbose)
}

// NewWithWriter is New with an explicit destination.
func NewWithWriter(w io.Writer, verbose bool) *zap.Logger {
	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}
	enc := zap.NewDevelopmentEncoderConfig()
	enc.EncodeLevel = zapcore.CapitalColorLevelEncoder
	if f, ok := w.(*os.File); !ok || !isatty.IsTerminal(f.Fd()) {
		enc.EncodeLevel = zapcore.CapitalLevelEncoder
	}
	core := zapcore.NewCore(zapcore.NewConsoleEncoder(enc), zapcore.Lock(zapcore.AddSync(w)), level)
	return zap.New(core).Named("chatcrank")
}

// FailureLogger writes one warning per failed request attempt.
type FailureLogger struct {
	logger *zap.Logger
}

var _ runner.FailureLogger = (*FailureLogger)(nil)

func NewFailureLogger(logger *zap.Logger) *FailureLogger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FailureLogger{logger: logger.Named("request")}
}

func (l *FailureLogger) LogFailure(target string, outcome metrics.Outcome) {
	fields := []zap.Field{
		zap.String("target", target),
		zap.String("class", string(outcome.Class)),
	}
	if outcome.StatusCode != 0 {
		fields = append(fields, zap.Int("status", outcome.StatusCode))
	}
	var httpErr *runner.HTTPError
	if errors.As(outcome.Err, &httpErr) && httpErr.Body != "" {
		fields = append(fields, zap.String("body", httpErr.Body))
	} else if outcome.Err != nil {
		fields = append(fields, zap.Error(outcome.Err))
	}
	l.logger.Warn("request failed", fields...)
}
