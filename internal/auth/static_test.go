package auth

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
)

func TestStaticTokenProvider(t *testing.T) {
	token := "my-static-token"
	provider := NewStaticTokenProvider(token)

	gotToken, err := provider.Token(context.Background())
	if err != nil {
		t.Fatalf("Token() error = %v", err)
	}
	if gotToken != token {
		t.Errorf("Token() = %q, want %q", gotToken, token)
	}

	req := httptest.NewRequest("POST", "http://example.com/api/chat", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}

	gotHeader := req.Header.Get("Authorization")
	wantHeader := "Bearer " + token
	if gotHeader != wantHeader {
		t.Errorf("Authorization header = %q, want %q", gotHeader, wantHeader)
	}

	if err := provider.Close(); err != nil {
		t.Errorf("Close() error = %v", err)
	}
}

func TestAPIKeyProviderCustomHeader(t *testing.T) {
	provider := NewAPIKeyProvider("k-123", WithHeader("api-key"), WithScheme(""))

	req := httptest.NewRequest("POST", "http://example.com", nil)
	if err := provider.InjectHeader(context.Background(), req); err != nil {
		t.Fatalf("InjectHeader() error = %v", err)
	}
	if got := req.Header.Get("Api-Key"); got != "k-123" {
		t.Errorf("Api-Key header = %q, want k-123", got)
	}
	if got := req.Header.Get("Authorization"); got != "" {
		t.Errorf("Authorization should be unset, got %q", got)
	}
}

func TestAPIKeyProviderEmptyKey(t *testing.T) {
	provider := NewAPIKeyProvider("   ")

	if _, err := provider.Token(context.Background()); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("Token() error = %v, want ErrMissingKey", err)
	}
	req := httptest.NewRequest("POST", "http://example.com", nil)
	if err := provider.InjectHeader(context.Background(), req); !errors.Is(err, ErrMissingKey) {
		t.Fatalf("InjectHeader() error = %v, want ErrMissingKey", err)
	}
}
