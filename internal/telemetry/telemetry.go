// Package telemetry exports live per-target request metrics in the
// Prometheus text format while a run is in progress.
package telemetry

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/torosent/chatcrank/internal/metrics"
	"github.com/torosent/chatcrank/internal/runner"
)

const namespace = "chatcrank"

// Recorder turns outcomes into Prometheus series. It is safe for concurrent use.
type Recorder struct {
	registry *prometheus.Registry
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
	running  *prometheus.GaugeVec
}

var (
	_ runner.Observer      = (*Recorder)(nil)
	_ runner.StateObserver = (*Recorder)(nil)
)

func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Completed request attempts by target and outcome.",
		}, []string{"target", "outcome", "class", "code"}),
		latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Latency of successful requests.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 14),
		}, []string{"target"}),
		running: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "target_running",
			Help:      "1 while a target's controller is running.",
		}, []string{"target"}),
	}
	r.registry.MustRegister(r.requests, r.latency, r.running)
	return r
}

// Observe implements runner.Observer.
func (r *Recorder) Observe(target string, o metrics.Outcome) {
	code := ""
	if o.StatusCode > 0 {
		code = strconv.Itoa(o.StatusCode)
	}
	switch o.Kind {
	case metrics.OutcomeSuccess:
		r.requests.WithLabelValues(target, "success", "", code).Inc()
		r.latency.WithLabelValues(target).Observe(o.Latency.Seconds())
	case metrics.OutcomeCancelled:
		r.requests.WithLabelValues(target, "cancelled", "", code).Inc()
	default:
		r.requests.WithLabelValues(target, "failure", string(o.Class), code).Inc()
	}
}

// StateChanged implements runner.StateObserver. A target counts as running
// until its in-flight requests have drained.
func (r *Recorder) StateChanged(target string, state runner.State) {
	v := 0.0
	if state == runner.StateRunning || state == runner.StateDraining {
		v = 1
	}
	r.running.WithLabelValues(target).Set(v)
}

// Registry exposes the underlying registry, mainly for tests.
func (r *Recorder) Registry() *prometheus.Registry {
	return r.registry
}

func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

// Server serves /metrics on a listener until Shutdown.
type Server struct {
	srv    *http.Server
	ln     net.Listener
	logger *zap.Logger
	done   chan struct{}
}

// Serve starts an HTTP server for the recorder on addr (e.g. ":9090").
func Serve(addr string, r *Recorder, logger *zap.Logger) (*Server, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", r.Handler())
	s := &Server{
		srv:    &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second},
		ln:     ln,
		logger: logger,
		done:   make(chan struct{}),
	}
	go func() {
		defer close(s.done)
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Warn("metrics server stopped", zap.Error(err))
		}
	}()
	logger.Info("serving prometheus metrics", zap.String("addr", ln.Addr().String()))
	return s, nil
}

// Addr is the bound listen address.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.srv.Shutdown(ctx)
	<-s.done
	return err
}
