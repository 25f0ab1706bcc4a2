// Package auth supplies credentials for requests sent to the chat endpoint.
package auth

import (
	"context"
	"net/http"
)

// Provider obtains a credential and attaches it to outgoing requests.
type Provider interface {
	// Token returns the current credential. Executors call it once while
	// preparing so a missing key fails the target before any load is sent.
	Token(ctx context.Context) (string, error)

	// InjectHeader sets the credential header on req.
	InjectHeader(ctx context.Context, req *http.Request) error

	Close() error
}
