package runner

import (
	"errors"
	"fmt"
)

// ErrDrained is the cancellation cause attached to attempts that were still
// in flight when the window was drained.
var ErrDrained = errors.New("request cancelled: run drained")

// HTTPError represents an HTTP request failure with status details.
type HTTPError struct {
	StatusCode int
	Body       string
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Body)
}

// SetupError reports that a target could not be driven at all: its executor
// failed to initialise, it had nothing to send, or its controller crashed.
type SetupError struct {
	Target string
	Err    error
}

func (e *SetupError) Error() string {
	if e.Target == "" {
		return fmt.Sprintf("setup failed: %v", e.Err)
	}
	return fmt.Sprintf("target %q: setup failed: %v", e.Target, e.Err)
}

func (e *SetupError) Unwrap() error {
	return e.Err
}
