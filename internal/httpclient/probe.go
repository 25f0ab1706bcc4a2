package httpclient

import (
	"context"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// ProbeTimeout bounds the reachability check.
const ProbeTimeout = 10 * time.Second

// ProbeResult reports whether the endpoint host answered.
type ProbeResult struct {
	Reachable  bool
	StatusCode int
	Err        error
}

// Probe issues a single GET against baseURL and logs the result. It is
// advisory: the run proceeds whatever the answer.
func Probe(ctx context.Context, client *http.Client, baseURL string, logger *zap.Logger) ProbeResult {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithTimeout(ctx, ProbeTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL, nil)
	if err != nil {
		logger.Warn("endpoint probe failed", zap.String("url", baseURL), zap.Error(err))
		return ProbeResult{Err: err}
	}
	resp, err := client.Do(req)
	if err != nil {
		logger.Warn("endpoint unreachable", zap.String("url", baseURL), zap.Error(err))
		return ProbeResult{Err: err}
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		logger.Warn("endpoint answered with unexpected status",
			zap.String("url", baseURL), zap.Int("status", resp.StatusCode))
		return ProbeResult{Reachable: true, StatusCode: resp.StatusCode}
	}
	logger.Info("endpoint reachable", zap.String("url", baseURL))
	return ProbeResult{Reachable: true, StatusCode: resp.StatusCode}
}
