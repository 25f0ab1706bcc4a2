package metrics

import "testing"

func TestFriendlyClassName(t *testing.T) {
	tests := map[string]string{
		"":            "Unknown error",
		"timeout":     "Request timeout",
		" Transport ": "Transport failure",
		"status":      "HTTP error response",
		"setup":       "Setup failure",
		"weird":       "Weird",
	}
	for input, want := range tests {
		if got := FriendlyClassName(input); got != want {
			t.Errorf("FriendlyClassName(%q) = %q, want %q", input, got, want)
		}
	}
}
