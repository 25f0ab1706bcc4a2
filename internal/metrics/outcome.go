package metrics

import "time"

// OutcomeKind identifies which terminal state a request attempt reached.
type OutcomeKind int

const (
	OutcomeSuccess OutcomeKind = iota
	OutcomeFailure
	OutcomeCancelled
)

func (k OutcomeKind) String() string {
	switch k {
	case OutcomeSuccess:
		return "success"
	case OutcomeFailure:
		return "failure"
	case OutcomeCancelled:
		return "cancelled"
	default:
		return "unknown"
	}
}

// FailureClass narrows down why an attempt failed.
type FailureClass string

const (
	ClassTransport  FailureClass = "transport"
	ClassStatus     FailureClass = "status"
	ClassTimeout    FailureClass = "timeout"
	ClassUnexpected FailureClass = "unexpected"
	ClassSetup      FailureClass = "setup"
)

// Outcome is the classified result of exactly one request attempt.
type Outcome struct {
	Kind       OutcomeKind
	Latency    time.Duration // only meaningful for OutcomeSuccess
	StatusCode int
	Class      FailureClass // only set for OutcomeFailure
	Err        error
}

// Success builds a successful outcome. Negative latencies are clamped to zero.
func Success(latency time.Duration, statusCode int) Outcome {
	if latency < 0 {
		latency = 0
	}
	return Outcome{Kind: OutcomeSuccess, Latency: latency, StatusCode: statusCode}
}

// Failure builds a failed outcome of the given class.
func Failure(class FailureClass, statusCode int, err error) Outcome {
	return Outcome{Kind: OutcomeFailure, Class: class, StatusCode: statusCode, Err: err}
}

// Cancelled builds an outcome for an attempt aborted by the drain.
func Cancelled(err error) Outcome {
	return Outcome{Kind: OutcomeCancelled, Err: err}
}
