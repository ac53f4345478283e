package errors

import (
	stderrors "errors"
	"fmt"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		want string
	}{
		{
			name: "Without cause",
			err:  New(ErrCodeNotFound, "session not found"),
			want: "NOT_FOUND: session not found",
		},
		{
			name: "With cause",
			err:  Wrap(fmt.Errorf("boom"), ErrCodeInternalError, "failed to load"),
			want: "INTERNAL_ERROR: failed to load (boom)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestAppError_IsMatchesByCode(t *testing.T) {
	wrapped := fmt.Errorf("send: %w", New(ErrCodeSessionTerminal, "session expired"))

	if !stderrors.Is(wrapped, ErrSessionTerminal) {
		t.Error("errors.Is() = false, want true for same code")
	}
	if stderrors.Is(wrapped, ErrNotParticipant) {
		t.Error("errors.Is() = true, want false for different code")
	}
}

func TestAppError_Unwrap(t *testing.T) {
	cause := fmt.Errorf("driver failure")
	err := Wrap(cause, ErrCodeInternalError, "failed to insert")

	if !stderrors.Is(err, cause) {
		t.Error("errors.Is() = false, want cause to be reachable through Unwrap")
	}
}

func TestCodeOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{name: "App error", err: ErrEmptyContent, want: ErrCodeEmptyContent},
		{name: "Wrapped app error", err: fmt.Errorf("x: %w", ErrConflict), want: ErrCodeConflict},
		{name: "Plain error", err: fmt.Errorf("plain"), want: ErrCodeInternalError},
		{name: "Validation", err: InvalidInput("bad"), want: ErrCodeValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := CodeOf(tt.err); got != tt.want {
				t.Errorf("CodeOf() = %q, want %q", got, tt.want)
			}
		})
	}

	if HasCode(nil, ErrCodeInternalError) {
		t.Error("HasCode(nil) = true, want false")
	}
}
