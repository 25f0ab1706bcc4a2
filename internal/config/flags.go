package config

import (
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

// newFlagCommand creates a cobra command with all flags configured.
func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "chatcrank",
		Short:         "Sustained concurrent load against chat inference endpoints",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

// configureFlags sets up all CLI flags on the provided flag set.
func configureFlags(flags *pflag.FlagSet) {
	// Endpoint flags
	flags.String("host", DefaultHost, "Endpoint host or base URL (e.g. 127.0.0.1 or https://gpu-box)")
	flags.String("scheme", DefaultScheme, "URL scheme used when --host has none (http or https)")
	flags.Int("port", DefaultPort, "Endpoint port (0 keeps the scheme default)")
	flags.String("path", DefaultPath, "Chat API path")
	flags.String("method", DefaultMethod, "HTTP method to use")
	flags.StringSlice("header", nil, "Additional request header in key=value form")
	flags.String("api-key", "", "Bearer token sent in the Authorization header")
	flags.String("api-key-header", "", "Send the bare API key in this header instead (e.g. api-key)")

	// Target flags
	flags.StringSliceP("model", "m", nil, "Model to test (repeatable); one target per model")
	flags.String("prompt", DefaultPrompt, "User prompt used for --model targets")

	// Load control flags
	flags.IntP("concurrency", "c", DefaultConcurrency, "Virtual users (max in-flight requests) per target")
	flags.DurationP("duration", "d", DefaultDuration, "How long to drive each target (e.g. 30s, 10m)")
	flags.Duration("timeout", DefaultTimeout, "Per-request timeout")
	flags.IntP("rate", "r", 0, "Requests per second limit per target (0 means unlimited)")
	flags.String("arrival-model", string(ArrivalModelUniform), "Arrival model to use when pacing requests (uniform or poisson)")
	flags.Duration("drain-grace", 0, "How long in-flight requests may finish after the run ends before they are cancelled")

	// Output flags
	flags.String("result-dir", DefaultResultDir, "Directory for per-target text reports (empty disables)")
	flags.Bool("json-output", false, "Emit JSON formatted output")
	flags.String("html-output", "", "Generate HTML report to the specified file path")
	flags.Bool("dashboard", false, "Show live terminal dashboard with metrics")
	flags.Bool("log-errors", false, "Log each failed request to stderr")
	flags.BoolP("verbose", "v", false, "Enable debug logging")
	flags.Bool("skip-probe", false, "Skip the endpoint reachability check")
	flags.String("metrics-addr", "", "Serve Prometheus metrics on this address while running (e.g. :9090)")
	flags.StringSlice("threshold", nil, "Pass/fail thresholds (repeatable, e.g. 'latency:p99 < 2000')")
	flags.String("config", "", "Path to configuration file (JSON or YAML)")

	// Tracing flags
	flags.String("tracing-endpoint", "", "OTLP collector endpoint for request spans")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.String("tracing-service-name", "", "Service name reported on spans")
	flags.Float64("tracing-sample-rate", 1.0, "Fraction of requests to trace (0.0-1.0)")
	flags.Bool("tracing-insecure", false, "Disable TLS to the OTLP collector")
}

// displayHelp prints the help message for a command.
func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	if cmd.Short != "" {
		fmt.Fprintf(out, "%s\n\n", cmd.Short)
	}
	fmt.Fprintf(out, "Usage: %s\n\nFlags:\n", cmd.UseLine())
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	strOverrides := map[string]*string{
		"host":                 &cfg.Host,
		"scheme":               &cfg.Scheme,
		"path":                 &cfg.Path,
		"method":               &cfg.Method,
		"api-key":              &cfg.APIKey,
		"api-key-header":       &cfg.APIKeyHeader,
		"prompt":               &cfg.Prompt,
		"result-dir":           &cfg.ResultDir,
		"html-output":          &cfg.HTMLOutput,
		"metrics-addr":         &cfg.MetricsAddr,
		"tracing-endpoint":     &cfg.Tracing.Endpoint,
		"tracing-protocol":     &cfg.Tracing.Protocol,
		"tracing-service-name": &cfg.Tracing.ServiceName,
	}
	for name, dst := range strOverrides {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetString(name)
		if err != nil {
			return err
		}
		*dst = strings.TrimSpace(val)
	}

	intOverrides := map[string]*int{
		"port":        &cfg.Port,
		"concurrency": &cfg.Concurrency,
		"rate":        &cfg.Rate,
	}
	for name, dst := range intOverrides {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetInt(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("duration") {
		val, err := fs.GetDuration("duration")
		if err != nil {
			return err
		}
		cfg.Duration = val
	}
	if fs.Changed("timeout") {
		val, err := fs.GetDuration("timeout")
		if err != nil {
			return err
		}
		cfg.Timeout = val
	}
	if fs.Changed("drain-grace") {
		val, err := fs.GetDuration("drain-grace")
		if err != nil {
			return err
		}
		cfg.DrainGrace = val
	}
	if fs.Changed("arrival-model") {
		val, err := fs.GetString("arrival-model")
		if err != nil {
			return err
		}
		cfg.Arrival.Model = ArrivalModel(strings.ToLower(strings.TrimSpace(val)))
	}
	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	boolOverrides := map[string]*bool{
		"json-output":      &cfg.JSONOutput,
		"dashboard":        &cfg.Dashboard,
		"log-errors":       &cfg.LogErrors,
		"verbose":          &cfg.Verbose,
		"skip-probe":       &cfg.SkipProbe,
		"tracing-insecure": &cfg.Tracing.Insecure,
	}
	for name, dst := range boolOverrides {
		if !fs.Changed(name) {
			continue
		}
		val, err := fs.GetBool(name)
		if err != nil {
			return err
		}
		*dst = val
	}

	if fs.Changed("model") {
		val, err := fs.GetStringSlice("model")
		if err != nil {
			return err
		}
		cfg.Models = val
	}
	if fs.Changed("threshold") {
		val, err := fs.GetStringSlice("threshold")
		if err != nil {
			return err
		}
		cfg.Thresholds = val
	}

	vals, err := fs.GetStringSlice("header")
	if err != nil {
		return err
	}
	if len(vals) > 0 {
		if cfg.Headers == nil {
			cfg.Headers = map[string]string{}
		}
		for _, entry := range vals {
			parts := strings.SplitN(entry, "=", 2)
			if len(parts) != 2 {
				return fmt.Errorf("header must be in key=value format: %s", entry)
			}
			key := http.CanonicalHeaderKey(strings.TrimSpace(parts[0]))
			if key == "" {
				return fmt.Errorf("header key cannot be empty")
			}
			cfg.Headers[key] = strings.TrimSpace(parts[1])
		}
	}

	return nil
}
