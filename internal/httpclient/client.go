package httpclient

import (
	"net"
	"net/http"
	"time"
)

// NewClient returns an HTTP client tuned for sustained load. maxConns is the
// total number of concurrent requests expected against the endpoint host.
//
// The client has no overall timeout: each attempt carries its own deadline on
// the request context so a timeout can be told apart from a cancellation.
func NewClient(maxConns int) *http.Client {
	if maxConns <= 0 {
		maxConns = 1
	}

	dialer := &net.Dialer{
		Timeout:   30 * time.Second,
		KeepAlive: 30 * time.Second,
	}

	transport := &http.Transport{
		Proxy:                 http.ProxyFromEnvironment,
		DialContext:           dialer.DialContext,
		ForceAttemptHTTP2:     true,
		MaxIdleConns:          max(256, maxConns),
		MaxIdleConnsPerHost:   maxConns,
		MaxConnsPerHost:       maxConns,
		IdleConnTimeout:       90 * time.Second,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
	}

	return &http.Client{Transport: transport}
}
