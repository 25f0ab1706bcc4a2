package httpclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"

	"github.com/torosent/chatcrank/internal/auth"
	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/runner"
	"github.com/torosent/chatcrank/internal/tracing"
)

const maxLoggedBodyBytes = 1024

// ErrRequestTimeout is the cancellation cause of an attempt whose per-request
// timeout fired.
var ErrRequestTimeout = errors.New("request timeout")

// ExecutorConfig describes how requests for one target are issued.
type ExecutorConfig struct {
	Target         string
	URL            string
	Method         string
	Headers        map[string]string
	Timeout        time.Duration
	Auth           auth.Provider
	Tracer         trace.Tracer
	PropagateTrace bool
}

// Executor sends chat payloads to an HTTP endpoint and classifies each
// attempt. It implements runner.Executor and runner.Preparer.
type Executor struct {
	client    *http.Client
	target    string
	url       string
	method    string
	headers   http.Header
	timeout   time.Duration
	auth      auth.Provider
	tracer    trace.Tracer
	propagate bool
}

// NewExecutor validates cfg and returns an executor using client.
func NewExecutor(cfg ExecutorConfig, client *http.Client) (*Executor, error) {
	if client == nil {
		return nil, errors.New("http client cannot be nil")
	}

	method := strings.ToUpper(strings.TrimSpace(cfg.Method))
	if method == "" {
		method = http.MethodPost
	}

	headers, err := normalizeHeaders(cfg.Headers)
	if err != nil {
		return nil, err
	}
	if headers.Get("Content-Type") == "" {
		headers.Set("Content-Type", "application/json")
	}

	tracer := cfg.Tracer
	if tracer == nil {
		tracer = noop.NewTracerProvider().Tracer("chatcrank")
	}

	return &Executor{
		client:    client,
		target:    cfg.Target,
		url:       strings.TrimSpace(cfg.URL),
		method:    method,
		headers:   headers,
		timeout:   cfg.Timeout,
		auth:      cfg.Auth,
		tracer:    tracer,
		propagate: cfg.PropagateTrace,
	}, nil
}

// Prepare checks that the endpoint URL is usable and that credentials can be
// obtained before any attempt is made.
func (e *Executor) Prepare(ctx context.Context) error {
	if e.url == "" {
		return errors.New("endpoint URL is required")
	}
	u, err := url.Parse(e.url)
	if err != nil {
		return fmt.Errorf("invalid endpoint URL: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid endpoint URL %q: scheme must be http or https", e.url)
	}
	if u.Host == "" {
		return fmt.Errorf("invalid endpoint URL %q: missing host", e.url)
	}
	if e.auth != nil {
		if _, err := e.auth.Token(ctx); err != nil {
			return fmt.Errorf("auth token: %w", err)
		}
	}
	return nil
}

// Execute issues one request with payload as the JSON body. Latency covers the
// time from sending the request until the response body has been fully read.
func (e *Executor) Execute(ctx context.Context, payload json.RawMessage) metrics.Outcome {
	reqCtx := ctx
	if e.timeout > 0 {
		var cancel context.CancelFunc
		reqCtx, cancel = context.WithTimeoutCause(ctx, e.timeout, ErrRequestTimeout)
		defer cancel()
	}

	reqCtx, span := tracing.StartRequestSpan(reqCtx, e.tracer, e.target)
	outcome := e.do(reqCtx, payload)
	tracing.EndSpan(span, outcome.Err,
		attribute.String("chatcrank.outcome", outcome.Kind.String()),
		attribute.Int("http.response.status_code", outcome.StatusCode),
	)
	return outcome
}

func (e *Executor) do(ctx context.Context, payload json.RawMessage) metrics.Outcome {
	req, err := http.NewRequestWithContext(ctx, e.method, e.url, bytes.NewReader(payload))
	if err != nil {
		return metrics.Failure(metrics.ClassSetup, 0, fmt.Errorf("build request: %w", err))
	}
	req.Header = e.headers.Clone()
	if e.auth != nil {
		if err := e.auth.InjectHeader(ctx, req); err != nil {
			return classify(ctx, fmt.Errorf("auth provider inject header: %w", err), 0)
		}
	}
	if e.propagate {
		tracing.InjectHTTPHeaders(ctx, req.Header)
	}

	start := time.Now()
	resp, err := e.client.Do(req)
	if err != nil {
		return classify(ctx, err, 0)
	}
	defer resp.Body.Close()

	var snippet []byte
	if !isSuccess(resp.StatusCode) {
		snippet, err = io.ReadAll(io.LimitReader(resp.Body, maxLoggedBodyBytes))
		if err != nil {
			return classify(ctx, err, resp.StatusCode)
		}
	}
	if _, err := io.Copy(io.Discard, resp.Body); err != nil {
		return classify(ctx, err, resp.StatusCode)
	}
	latency := time.Since(start)

	if isSuccess(resp.StatusCode) {
		return metrics.Success(latency, resp.StatusCode)
	}
	return metrics.Failure(metrics.ClassStatus, resp.StatusCode, &runner.HTTPError{
		StatusCode: resp.StatusCode,
		Body:       strings.TrimSpace(string(snippet)),
	})
}

// classify maps a transport-level error to an outcome, using the context's
// cancellation cause to decide which of timeout or drain happened first.
func classify(ctx context.Context, err error, status int) metrics.Outcome {
	cause := context.Cause(ctx)
	switch {
	case errors.Is(cause, ErrRequestTimeout):
		return metrics.Failure(metrics.ClassTimeout, status, fmt.Errorf("%w: %v", ErrRequestTimeout, err))
	case cause != nil:
		return metrics.Cancelled(cause)
	default:
		return metrics.Failure(metrics.ClassTransport, status, err)
	}
}

func isSuccess(status int) bool {
	return status >= 200 && status < 300
}

func normalizeHeaders(in map[string]string) (http.Header, error) {
	headers := http.Header{}
	for key, value := range in {
		trimmedKey := strings.TrimSpace(key)
		if trimmedKey == "" || strings.ContainsAny(trimmedKey, "\r\n") {
			return nil, fmt.Errorf("invalid header key %q", key)
		}
		canonicalKey := http.CanonicalHeaderKey(trimmedKey)
		if strings.ContainsAny(value, "\r\n") {
			return nil, fmt.Errorf("invalid header value for %s", canonicalKey)
		}
		headers.Set(canonicalKey, value)
	}
	return headers, nil
}
