package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/torosent/chatcrank/internal/auth"
	"github.com/torosent/chatcrank/internal/config"
	"github.com/torosent/chatcrank/internal/dashboard"
	"github.com/torosent/chatcrank/internal/httpclient"
	"github.com/torosent/chatcrank/internal/logging"
	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/output"
	"github.com/torosent/chatcrank/internal/runner"
	"github.com/torosent/chatcrank/internal/telemetry"
	"github.com/torosent/chatcrank/internal/threshold"
	"github.com/torosent/chatcrank/internal/tracing"
)

const (
	progressInterval = time.Second
	shutdownTimeout  = 10 * time.Second
)

var errThresholdsFailed = errors.New("one or more thresholds failed")

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer) error {
	loader := config.NewLoader()
	cfg, err := loader.Load(args)
	if err != nil {
		if errors.Is(err, config.ErrHelpRequested) {
			return nil
		}
		return err
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	thresholds, err := threshold.ParseMultiple(cfg.Thresholds)
	if err != nil {
		return err
	}

	logger := logging.New(cfg.Verbose)
	defer func() { _ = logger.Sync() }()
	for _, w := range cfg.Warnings() {
		logger.Warn(w)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	tp, err := tracing.Init(ctx, cfg.Tracing)
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := tp.Shutdown(shutdownCtx); err != nil {
			logger.Warn("tracing shutdown failed", zap.Error(err))
		}
	}()

	client := httpclient.NewClient(cfg.Concurrency * len(cfg.Targets))
	if !cfg.SkipProbe {
		httpclient.Probe(ctx, client, cfg.BaseURL(), logger)
	}

	opts := runner.Options{
		Duration:      cfg.Duration,
		Concurrency:   cfg.Concurrency,
		Timeout:       cfg.Timeout,
		RatePerSecond: cfg.Rate,
		ArrivalModel:  toRunnerArrivalModel(cfg.Arrival.Model),
		DrainGrace:    cfg.DrainGrace,
	}

	if cfg.MetricsAddr != "" {
		recorder := telemetry.NewRecorder()
		srv, err := telemetry.Serve(cfg.MetricsAddr, recorder, logger)
		if err != nil {
			return fmt.Errorf("metrics server: %w", err)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		opts.Observer = recorder
	}

	var failures runner.FailureLogger
	if cfg.LogErrors {
		failures = logging.NewFailureLogger(logger)
	}

	orch := runner.NewOrchestrator(opts, newExecutorFactory(cfg, client, tp, failures))

	info := output.RunInfo{
		RunID:     output.NewRunID(),
		Endpoint:  cfg.EndpointURL(),
		StartedAt: time.Now(),
	}
	logger.Info("starting run",
		zap.String("run_id", info.RunID),
		zap.String("endpoint", info.Endpoint),
		zap.Int("targets", len(cfg.Targets)),
		zap.Int("concurrency", cfg.Concurrency),
		zap.Duration("duration", cfg.Duration),
	)

	stopLive, err := startLiveView(cfg, orch, stdout)
	if err != nil {
		return err
	}
	results, runErr := orch.Run(ctx, toRunnerTargets(cfg.Targets))
	stopLive()
	if results == nil {
		return runErr
	}

	summaries := output.Ordered(results, targetNames(cfg.Targets))
	thresholdResults := threshold.NewEvaluator(thresholds).EvaluateAll(summaries)

	if cfg.JSONOutput {
		report := output.JSONReport{
			RunInfo:    info,
			Targets:    summaries,
			Thresholds: output.SummarizeThresholds(thresholdResults),
			Errors:     setupErrors(runErr),
		}
		if err := output.PrintJSONReport(stdout, report); err != nil {
			return err
		}
	} else {
		output.PrintReport(stdout, info, summaries)
		output.PrintThresholdResults(stdout, thresholdResults)
	}

	if err := writeArtifacts(ctx, cfg, info, summaries, thresholdResults, logger); err != nil {
		return err
	}

	if runErr != nil {
		return runErr
	}
	if !threshold.Passed(thresholdResults) {
		return errThresholdsFailed
	}
	return nil
}

// startLiveView starts the dashboard or the progress line and returns the
// function that stops it.
func startLiveView(cfg *config.Config, orch *runner.Orchestrator, stdout io.Writer) (func(), error) {
	if cfg.Dashboard {
		dash, err := dashboard.New(orch, dashboard.RunConfig{
			Endpoint:    cfg.EndpointURL(),
			Method:      cfg.Method,
			Concurrency: cfg.Concurrency,
			Duration:    cfg.Duration,
			Rate:        cfg.Rate,
			Timeout:     cfg.Timeout,
			ConfigFile:  cfg.ConfigFile,
		}, orch.Stop)
		if err != nil {
			return nil, err
		}
		dash.Start()
		return dash.Stop, nil
	}
	if cfg.JSONOutput {
		return func() {}, nil
	}
	progress := output.NewProgressReporter(orch, progressInterval, cfg.Duration, stdout)
	progress.Start()
	return progress.Stop, nil
}

func writeArtifacts(ctx context.Context, cfg *config.Config, info output.RunInfo, summaries []metrics.Summary, results []threshold.Result, logger *zap.Logger) error {
	// Reports are still written after an interrupt.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()

	if cfg.ResultDir != "" {
		paths, err := output.WriteTargetReports(ctx, cfg.ResultDir, info.RunID, summaries)
		if err != nil {
			return fmt.Errorf("write result files: %w", err)
		}
		logger.Info("saved results", zap.String("dir", cfg.ResultDir), zap.Strings("files", paths))
	}

	if cfg.HTMLOutput != "" {
		f, err := os.Create(cfg.HTMLOutput)
		if err != nil {
			return fmt.Errorf("create html report: %w", err)
		}
		if err := output.GenerateHTMLReport(f, info, summaries, results); err != nil {
			f.Close()
			return err
		}
		if err := f.Close(); err != nil {
			return fmt.Errorf("write html report: %w", err)
		}
		logger.Info("saved html report", zap.String("path", cfg.HTMLOutput))
	}
	return nil
}

func newExecutorFactory(cfg *config.Config, client *http.Client, tp *tracing.Provider, failures runner.FailureLogger) runner.ExecutorFactory {
	var provider auth.Provider
	if cfg.APIKey != "" {
		var opts []auth.APIKeyOption
		if cfg.APIKeyHeader != "" {
			opts = append(opts, auth.WithHeader(cfg.APIKeyHeader), auth.WithScheme(""))
		}
		provider = auth.NewAPIKeyProvider(cfg.APIKey, opts...)
	}

	return func(target runner.Target, opt runner.Options) (runner.Executor, error) {
		exec, err := httpclient.NewExecutor(httpclient.ExecutorConfig{
			Target:         target.Name,
			URL:            cfg.EndpointURL(),
			Method:         cfg.Method,
			Headers:        cfg.Headers,
			Timeout:        opt.Timeout,
			Auth:           provider,
			Tracer:         tp.Tracer(),
			PropagateTrace: tp.ShouldPropagate(),
		}, client)
		if err != nil {
			return nil, err
		}
		if failures == nil {
			return exec, nil
		}
		return runner.WithLogging(exec, target.Name, failures), nil
	}
}

func toRunnerTargets(targets []config.TargetConfig) []runner.Target {
	out := make([]runner.Target, len(targets))
	for i, t := range targets {
		out[i] = runner.Target{Name: t.Name, Payloads: t.Payloads}
	}
	return out
}

func targetNames(targets []config.TargetConfig) []string {
	names := make([]string, len(targets))
	for i, t := range targets {
		names[i] = t.Name
	}
	return names
}

func toRunnerArrivalModel(model config.ArrivalModel) runner.ArrivalModel {
	switch strings.ToLower(string(model)) {
	case string(config.ArrivalModelPoisson):
		return runner.ArrivalModelPoisson
	default:
		return runner.ArrivalModelUniform
	}
}

// setupErrors maps each failed target to its setup error message.
func setupErrors(err error) map[string]string {
	if err == nil {
		return nil
	}
	errs := []error{err}
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		errs = joined.Unwrap()
	}
	out := make(map[string]string, len(errs))
	for _, e := range errs {
		var setup *runner.SetupError
		if errors.As(e, &setup) {
			out[setup.Target] = setup.Err.Error()
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
