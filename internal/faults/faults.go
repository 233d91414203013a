package faults

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for propagation policy decisions.
type Kind uint8

const (
	// KindUnknown is the zero value for unclassified errors.
	KindUnknown Kind = iota

	// KindValidation indicates malformed or empty input.
	// Not recoverable; rejected before any mutation.
	KindValidation

	// KindSession indicates a missing or invalid session.
	KindSession

	// KindCapacity indicates a plan or operation exceeded its limits.
	// The plan is rejected atomically before any mutation.
	KindCapacity

	// KindConflict indicates an unresolved overlap under a non-automatic
	// strategy. Recoverable by retrying with a different strategy.
	KindConflict

	// KindTransient indicates a retryable failure from an external
	// producer (network, rate limit).
	KindTransient

	// KindCritical indicates an unexpected internal failure during a
	// mutation. Triggers rollback and is always surfaced.
	KindCritical
)

// String returns a human-readable name for the kind.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindSession:
		return "session"
	case KindCapacity:
		return "capacity"
	case KindConflict:
		return "conflict"
	case KindTransient:
		return "transient"
	case KindCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Error is a classified error with the operation that produced it.
type Error struct {
	Kind Kind   // Failure classification
	Op   string // Operation that failed, e.g. "submit", "reject"
	Err  error  // Underlying error
}

// New creates a classified error.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Newf creates a classified error from a format string.
func Newf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Op != "" {
		return e.Op + ": " + e.Err.Error()
	}
	return e.Err.Error()
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// KindOf returns the classification of err, or KindUnknown if it carries none.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}

// IsRetryable reports whether err should be retried with backoff.
func IsRetryable(err error) bool {
	return KindOf(err) == KindTransient
}

// IsValidation reports whether err is a validation failure.
func IsValidation(err error) bool {
	return KindOf(err) == KindValidation
}

// IsCapacity reports whether err is a capacity failure.
func IsCapacity(err error) bool {
	return KindOf(err) == KindCapacity
}

// IsConflict reports whether err is an unresolved conflict.
func IsConflict(err error) bool {
	return KindOf(err) == KindConflict
}

// IsCritical reports whether err requires rollback before surfacing.
func IsCritical(err error) bool {
	return KindOf(err) == KindCritical
}
