package faults

import (
	"errors"
	"fmt"
	"testing"
)

func TestErrorFormatting(t *testing.T) {
	base := errors.New("range out of bounds")
	err := New(KindValidation, "submit", base)

	if err.Error() != "submit: range out of bounds" {
		t.Errorf("Error() = %q, want 'submit: range out of bounds'", err.Error())
	}
	if err.Unwrap() != base {
		t.Error("Unwrap() should return underlying error")
	}
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"validation", New(KindValidation, "submit", errors.New("empty")), KindValidation},
		{"transient wrapped", fmt.Errorf("outer: %w", New(KindTransient, "producer", errors.New("rate limited"))), KindTransient},
		{"plain error", errors.New("plain"), KindUnknown},
		{"nil-op error", Newf(KindCapacity, "", "too many operations: %d", 500), KindCapacity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestPredicates(t *testing.T) {
	if !IsRetryable(New(KindTransient, "producer", errors.New("timeout"))) {
		t.Error("transient error should be retryable")
	}
	if IsRetryable(New(KindCritical, "apply", errors.New("corrupt"))) {
		t.Error("critical error should not be retryable")
	}
	if !IsCritical(fmt.Errorf("wrap: %w", New(KindCritical, "apply", errors.New("corrupt")))) {
		t.Error("IsCritical should see through wrapping")
	}
	if !IsConflict(New(KindConflict, "consolidate", errors.New("overlap"))) {
		t.Error("IsConflict should match conflict kind")
	}
}

func TestKindString(t *testing.T) {
	kinds := map[Kind]string{
		KindUnknown:    "unknown",
		KindValidation: "validation",
		KindSession:    "session",
		KindCapacity:   "capacity",
		KindConflict:   "conflict",
		KindTransient:  "transient",
		KindCritical:   "critical",
	}
	for k, want := range kinds {
		if k.String() != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, k.String(), want)
		}
	}
}
