package foundation

import "fmt"

// OutcomeStatus classifies the result of a best-effort operation.
type OutcomeStatus int

const (
	// StatusOK means the operation did what it was asked to do.
	StatusOK OutcomeStatus = iota
	// StatusSoftFailure means the operation did not happen, but callers continue.
	StatusSoftFailure
)

func (s OutcomeStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusSoftFailure:
		return "soft-failure"
	default:
		return fmt.Sprintf("status(%d)", int(s))
	}
}

// Outcome is the result of a best-effort operation such as a lock write or a
// pre-compilation attempt. Soft failures carry a reason for diagnostics and never interrupt
// control flow.
type Outcome struct {
	Status OutcomeStatus
	Reason string
	Err    error
}

// OK returns a successful outcome.
func OK() Outcome {
	return Outcome{Status: StatusOK}
}

// SoftFailure returns a non-propagating failure with a reason and optional cause.
func SoftFailure(reason string, err error) Outcome {
	return Outcome{Status: StatusSoftFailure, Reason: reason, Err: err}
}

// IsOK reports whether the operation succeeded.
func (o Outcome) IsOK() bool { return o.Status == StatusOK }

func (o Outcome) String() string {
	if o.Reason == "" {
		return o.Status.String()
	}
	return fmt.Sprintf("%s: %s", o.Status, o.Reason)
}
