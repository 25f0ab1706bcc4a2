package config

import (
	"encoding/json"
	"fmt"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// Defaults mirror the Ollama chat endpoint on the local host.
const (
	DefaultHost        = "127.0.0.1"
	DefaultScheme      = "http"
	DefaultPort        = 11434
	DefaultPath        = "/api/chat"
	DefaultMethod      = "POST"
	DefaultConcurrency = 20
	DefaultDuration    = 600 * time.Second
	DefaultTimeout     = 60 * time.Second
	DefaultResultDir   = "./result"
	DefaultPrompt      = "how r u?"
)

type Config struct {
	Host         string            `mapstructure:"host"`
	Scheme       string            `mapstructure:"scheme"`
	Port         int               `mapstructure:"port"`
	Path         string            `mapstructure:"path"`
	Method       string            `mapstructure:"method"`
	Headers      map[string]string `mapstructure:"headers"`
	APIKey       string            `mapstructure:"api_key"`
	APIKeyHeader string            `mapstructure:"api_key_header"`
	Concurrency  int               `mapstructure:"concurrency"`
	Duration     time.Duration     `mapstructure:"duration"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Rate         int               `mapstructure:"rate"`
	Arrival      ArrivalConfig     `mapstructure:"arrival"`
	DrainGrace   time.Duration     `mapstructure:"drain_grace"`
	ResultDir    string            `mapstructure:"result_dir"`
	JSONOutput   bool              `mapstructure:"json_output"`
	HTMLOutput   string            `mapstructure:"html_output"`
	Dashboard    bool              `mapstructure:"dashboard"`
	LogErrors    bool              `mapstructure:"log_errors"`
	Verbose      bool              `mapstructure:"verbose"`
	SkipProbe    bool              `mapstructure:"skip_probe"`
	MetricsAddr  string            `mapstructure:"metrics_addr"`
	Thresholds   []string          `mapstructure:"thresholds"`
	Tracing      TracingConfig     `mapstructure:"tracing"`
	Targets      []TargetConfig    `mapstructure:"targets"`
	Models       []string          `mapstructure:"models"`
	Prompt       string            `mapstructure:"prompt"`
	ConfigFile   string            `mapstructure:"-"`
}

// TargetConfig names one payload sequence. Payloads may be given inline, read
// from a YAML or JSON file, rendered from a prompt dataset, or generated from
// Model and Prompt.
type TargetConfig struct {
	Name            string            `mapstructure:"name"`
	Model           string            `mapstructure:"model"`
	Prompt          string            `mapstructure:"prompt"`
	Payloads        []json.RawMessage `mapstructure:"payloads"`
	PayloadsFile    string            `mapstructure:"payloads_file"`
	PromptsFile     string            `mapstructure:"prompts_file"`     // CSV or JSON rows
	PayloadTemplate string            `mapstructure:"payload_template"` // {{field}} placeholders
}

type ArrivalModel string

const (
	ArrivalModelUniform ArrivalModel = "uniform"
	ArrivalModelPoisson ArrivalModel = "poisson"
)

type ArrivalConfig struct {
	Model ArrivalModel `mapstructure:"model"`
}

// TracingConfig configures OTLP export of per-request client spans.
type TracingConfig struct {
	Endpoint    string  `mapstructure:"endpoint"`
	Protocol    string  `mapstructure:"protocol"` // "grpc" (default) or "http"
	ServiceName string  `mapstructure:"service_name"`
	SampleRate  float64 `mapstructure:"sample_rate"`
	Insecure    bool    `mapstructure:"insecure"`
	Propagate   *bool   `mapstructure:"propagate"`
}

// ResolvedEndpoint returns the configured endpoint, falling back to the
// standard OTLP environment variable.
func (t TracingConfig) ResolvedEndpoint() string {
	if ep := strings.TrimSpace(t.Endpoint); ep != "" {
		return ep
	}
	return strings.TrimSpace(os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"))
}

// Enabled reports whether spans should be exported.
func (t TracingConfig) Enabled() bool {
	return t.ResolvedEndpoint() != ""
}

// ShouldPropagate reports whether W3C trace headers are injected into requests.
// It defaults to Enabled.
func (t TracingConfig) ShouldPropagate() bool {
	if t.Propagate != nil {
		return *t.Propagate
	}
	return t.Enabled()
}

// BaseURL is the endpoint root used for the reachability probe.
func (c Config) BaseURL() string {
	host := strings.TrimRight(strings.TrimSpace(c.Host), "/")
	if host == "" {
		host = DefaultHost
	}
	if !strings.Contains(host, "://") {
		scheme := c.Scheme
		if scheme == "" {
			scheme = DefaultScheme
		}
		host = scheme + "://" + host
	}
	u, err := url.Parse(host)
	if err != nil {
		return host
	}
	if c.Port > 0 && u.Port() == "" {
		u.Host = net.JoinHostPort(u.Hostname(), strconv.Itoa(c.Port))
	}
	return strings.TrimRight(u.String(), "/")
}

// EndpointURL is the full chat endpoint URL requests are sent to.
func (c Config) EndpointURL() string {
	path := strings.TrimSpace(c.Path)
	if path == "" {
		return c.BaseURL()
	}
	return c.BaseURL() + "/" + strings.TrimLeft(path, "/")
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

func (c Config) Validate() error {
	var issues []string

	if strings.TrimSpace(c.Host) == "" {
		issues = append(issues, "host is required")
	}
	if _, err := url.Parse(c.EndpointURL()); err != nil {
		issues = append(issues, fmt.Sprintf("endpoint URL is invalid: %v", err))
	}
	if c.Port < 0 || c.Port > 65535 {
		issues = append(issues, "port must be between 0 and 65535")
	}
	switch strings.ToLower(c.Scheme) {
	case "", "http", "https":
	default:
		issues = append(issues, fmt.Sprintf("scheme must be http or https, got %q", c.Scheme))
	}
	if c.Concurrency < 1 {
		issues = append(issues, "concurrency must be >= 1")
	}
	if c.Duration <= 0 {
		issues = append(issues, "duration must be > 0")
	}
	if c.Timeout <= 0 {
		issues = append(issues, "timeout must be > 0")
	}
	if c.Rate < 0 {
		issues = append(issues, "rate must be >= 0")
	}
	if c.DrainGrace < 0 {
		issues = append(issues, "drain-grace must be >= 0")
	}
	if c.Dashboard && c.JSONOutput {
		issues = append(issues, "dashboard and json-output are mutually exclusive")
	}

	issues = append(issues, validateArrivalConfig(c.Arrival)...)
	issues = append(issues, validateTargets(c.Targets)...)
	issues = append(issues, validateTracingConfig(c.Tracing)...)

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

// Warnings lists settings that are valid but deserve the operator's attention.
func (c Config) Warnings() []string {
	var warnings []string
	if c.Rate > 1000 {
		warnings = append(warnings, fmt.Sprintf("high rate limit configured (%d RPS per target); ensure you have authorization to test the endpoint", c.Rate))
	}
	if c.Concurrency > 500 {
		warnings = append(warnings, fmt.Sprintf("high concurrency configured (%d virtual users per target); ensure you have authorization to test the endpoint", c.Concurrency))
	}
	if c.APIKey != "" && strings.EqualFold(c.Scheme, "http") && !strings.HasPrefix(strings.ToLower(c.Host), "https://") {
		warnings = append(warnings, "API key will be sent over plain HTTP")
	}
	return warnings
}

func validateArrivalConfig(arr ArrivalConfig) []string {
	model := arr.Model
	if model == "" {
		model = ArrivalModelUniform
	}
	switch model {
	case ArrivalModelUniform, ArrivalModelPoisson:
		return nil
	default:
		return []string{fmt.Sprintf("arrival model %q is not supported", model)}
	}
}

var reportKeyReplacer = strings.NewReplacer("/", "_", ":", "_", "\\", "_")

// ReportKey is the filesystem-safe form of a target name used in report
// file names. Path separators and ':' become '_'.
func ReportKey(name string) string {
	return reportKeyReplacer.Replace(name)
}

func validateTargets(targets []TargetConfig) []string {
	if len(targets) == 0 {
		return []string{"at least one target is required (use --model or a config file; --help for usage)"}
	}
	var issues []string
	seen := map[string]int{}
	files := map[string]int{}
	for idx, t := range targets {
		name := strings.TrimSpace(t.Name)
		if name == "" {
			issues = append(issues, fmt.Sprintf("targets[%d]: name is required", idx))
		} else if prev, ok := seen[name]; ok {
			issues = append(issues, fmt.Sprintf("targets[%d]: duplicate name %q also defined at index %d", idx, name, prev))
		} else {
			seen[name] = idx
			// Case is folded too; macOS and Windows result directories are case-insensitive.
			key := strings.ToLower(ReportKey(name))
			if prev, ok := files[key]; ok {
				issues = append(issues, fmt.Sprintf("targets[%d]: name %q writes the same report file as targets[%d] %q", idx, name, prev, targets[prev].Name))
			} else {
				files[key] = idx
			}
		}
		if len(t.Payloads) == 0 {
			issues = append(issues, fmt.Sprintf("targets[%d]: at least one payload is required", idx))
		}
		for pIdx, p := range t.Payloads {
			if !gjson.ValidBytes(p) {
				issues = append(issues, fmt.Sprintf("targets[%d].payloads[%d]: not valid JSON", idx, pIdx))
			}
		}
	}
	return issues
}

func validateTracingConfig(t TracingConfig) []string {
	var issues []string
	switch strings.ToLower(t.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing: protocol must be 'grpc' or 'http', got %q", t.Protocol))
	}
	if t.SampleRate < 0 || t.SampleRate > 1 {
		issues = append(issues, fmt.Sprintf("tracing: sample_rate must be between 0.0 and 1.0, got %g", t.SampleRate))
	}
	return issues
}
