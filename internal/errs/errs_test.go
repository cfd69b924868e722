package errs

import (
	"errors"
	"testing"
)

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"retryable step error", NewRetryable(ErrValidationRejected), true},
		{"fatal step error", NewFatal(ErrBackend), false},
		{"bare budget exhausted", ErrBudgetExhausted, false},
		{"bare cancelled", ErrCancelled, false},
		{"bare backend", ErrBackend, false},
		{"bare validation rejected", ErrValidationRejected, true},
		{"bare hierarchy rejected", ErrHierarchyRejected, true},
		{"bare circular rejected", ErrCircularRejected, true},
		{"bare rate limit", ErrRateLimit, true},
		{"wrapped retryable", errors.Join(NewRetryable(ErrRateLimit)), true},
		{"unknown error", errors.New("boom"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsRetryable(tt.err); got != tt.want {
				t.Errorf("IsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestStepErrorUnwrap(t *testing.T) {
	se := NewFatal(ErrBackend)
	if !errors.Is(se, ErrBackend) {
		t.Errorf("expected StepError to unwrap to ErrBackend")
	}
	if se.Error() != ErrBackend.Error() {
		t.Errorf("Error() = %q, want %q", se.Error(), ErrBackend.Error())
	}
}
