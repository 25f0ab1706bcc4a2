package metrics

import (
	"strings"
)

var friendlyClassNames = map[FailureClass]string{
	ClassTransport:  "Transport failure",
	ClassStatus:     "HTTP error response",
	ClassTimeout:    "Request timeout",
	ClassUnexpected: "Unexpected error",
	ClassSetup:      "Setup failure",
}

// FriendlyClassName returns a human-friendly label for a failure class.
func FriendlyClassName(class string) string {
	cleaned := strings.ToLower(strings.TrimSpace(class))
	if cleaned == "" {
		return "Unknown error"
	}
	if name, ok := friendlyClassNames[FailureClass(cleaned)]; ok {
		return name
	}
	return capitalize(cleaned)
}

func capitalize(s string) string {
	if s == "" {
		return ""
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
