// Command mock_chat_server answers chat requests with configurable latency and
// failure injection, for trying chatcrank without a GPU host.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
	"go.uber.org/zap"
)

type serverConfig struct {
	port      int
	latency   time.Duration
	jitter    time.Duration
	errorRate float64
	models    []string
}

func main() {
	var cfg serverConfig
	pflag.IntVar(&cfg.port, "port", 11434, "Listening port")
	pflag.DurationVar(&cfg.latency, "latency", 200*time.Millisecond, "Base response latency")
	pflag.DurationVar(&cfg.jitter, "jitter", 100*time.Millisecond, "Random extra latency up to this value")
	pflag.Float64Var(&cfg.errorRate, "error-rate", 0, "Fraction of requests answered with 500 (0.0-1.0)")
	pflag.StringSliceVar(&cfg.models, "model", nil, "Known models; others get 404 (empty accepts all)")
	pflag.Parse()

	logger, _ := zap.NewDevelopment()
	defer func() { _ = logger.Sync() }()

	addr := fmt.Sprintf(":%d", cfg.port)
	logger.Info("mock chat server listening", zap.String("addr", addr))
	if err := http.ListenAndServe(addr, newMux(cfg, logger)); err != nil {
		logger.Error("server stopped", zap.Error(err))
		os.Exit(1)
	}
}

func newMux(cfg serverConfig, logger *zap.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	chat := handleChat(cfg, logger)
	mux.HandleFunc("/api/chat", chat)
	mux.HandleFunc("/v1/chat/completions", chat)
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "mock chat server is running")
	})
	return mux
}

func handleChat(cfg serverConfig, logger *zap.Logger) http.HandlerFunc {
	known := make(map[string]bool, len(cfg.models))
	for _, m := range cfg.models {
		known[strings.TrimSpace(m)] = true
	}

	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			respondJSON(w, http.StatusMethodNotAllowed, map[string]any{"error": "POST required"})
			return
		}
		body, err := io.ReadAll(r.Body)
		if err != nil || !gjson.ValidBytes(body) {
			respondJSON(w, http.StatusBadRequest, map[string]any{"error": "invalid JSON body"})
			return
		}
		model := gjson.GetBytes(body, "model").String()
		if len(known) > 0 && !known[model] {
			respondJSON(w, http.StatusNotFound, map[string]any{"error": fmt.Sprintf("model %q not found", model)})
			return
		}

		delay := cfg.latency
		if cfg.jitter > 0 {
			delay += time.Duration(rand.Int64N(int64(cfg.jitter)))
		}
		select {
		case <-time.After(delay):
		case <-r.Context().Done():
			logger.Debug("client went away", zap.String("model", model))
			return
		}

		if cfg.errorRate > 0 && rand.Float64() < cfg.errorRate {
			respondJSON(w, http.StatusInternalServerError, map[string]any{"error": "injected failure"})
			return
		}

		var prompt string
		if contents := gjson.GetBytes(body, "messages.#.content").Array(); len(contents) > 0 {
			prompt = contents[len(contents)-1].String()
		}
		respondJSON(w, http.StatusOK, map[string]any{
			"model":      model,
			"created_at": time.Now().UTC().Format(time.RFC3339Nano),
			"message": map[string]any{
				"role":    "assistant",
				"content": fmt.Sprintf("echo: %s", prompt),
			},
			"done":           true,
			"total_duration": delay.Nanoseconds(),
		})
	}
}

func respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
