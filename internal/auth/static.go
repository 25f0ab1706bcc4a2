package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"
)

// ErrMissingKey is returned by Token when no API key was configured.
var ErrMissingKey = errors.New("auth: api key is empty")

// APIKeyProvider sends a fixed API key on every request. By default the key
// goes in "Authorization: Bearer <key>", which is what OpenAI-compatible
// servers and most inference gateways expect.
type APIKeyProvider struct {
	key    string
	header string
	scheme string
}

// APIKeyOption customises where the key is sent.
type APIKeyOption func(*APIKeyProvider)

// WithHeader sends the key in the named header instead of Authorization.
func WithHeader(name string) APIKeyOption {
	return func(p *APIKeyProvider) {
		if name = strings.TrimSpace(name); name != "" {
			p.header = http.CanonicalHeaderKey(name)
		}
	}
}

// WithScheme changes the prefix written before the key. An empty scheme
// sends the bare key, as Azure-style "api-key" headers require.
func WithScheme(scheme string) APIKeyOption {
	return func(p *APIKeyProvider) {
		p.scheme = strings.TrimSpace(scheme)
	}
}

func NewAPIKeyProvider(key string, opts ...APIKeyOption) *APIKeyProvider {
	p := &APIKeyProvider{
		key:    strings.TrimSpace(key),
		header: "Authorization",
		scheme: "Bearer",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// NewStaticTokenProvider returns a provider sending "Authorization: Bearer <token>".
func NewStaticTokenProvider(token string) *APIKeyProvider {
	return NewAPIKeyProvider(token)
}

func (p *APIKeyProvider) Token(ctx context.Context) (string, error) {
	if p.key == "" {
		return "", ErrMissingKey
	}
	return p.key, nil
}

func (p *APIKeyProvider) InjectHeader(ctx context.Context, req *http.Request) error {
	if p.key == "" {
		return ErrMissingKey
	}
	value := p.key
	if p.scheme != "" {
		value = p.scheme + " " + p.key
	}
	req.Header.Set(p.header, value)
	return nil
}

func (p *APIKeyProvider) Close() error {
	return nil
}
