package errors

import (
	stderrors "errors"
	"fmt"
)

type AppError struct {
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%v)", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error { return e.Err }

// Is reports whether target is an *AppError with the same code, so a wrapped
// error still matches the sentinel it was built from.
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

func New(code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

func Wrap(err error, code, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// CodeOf returns the code of the first AppError in err's chain, or
// ErrCodeInternalError when there is none.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// HasCode reports whether err carries the given code.
func HasCode(err error, code string) bool {
	return err != nil && CodeOf(err) == code
}

// Common error codes
const (
	ErrCodeValidation        = "VALIDATION_ERROR"
	ErrCodeNotFound          = "NOT_FOUND"
	ErrCodeUnauthorized      = "UNAUTHORIZED"
	ErrCodeInternalError     = "INTERNAL_ERROR"
	ErrCodeRateLimitExceeded = "RATE_LIMIT_EXCEEDED"

	ErrCodeNotEligible     = "NOT_ELIGIBLE"
	ErrCodeSessionTerminal = "SESSION_TERMINAL"
	ErrCodeNotParticipant  = "NOT_PARTICIPANT"
	ErrCodeEmptyContent    = "EMPTY_CONTENT"
	ErrCodeConflict        = "CONFLICT"
)

// Domain errors returned by the matching and messaging services.
var (
	ErrNotEligible     = New(ErrCodeNotEligible, "user is not eligible for this action")
	ErrSessionTerminal = New(ErrCodeSessionTerminal, "session is no longer active")
	ErrNotParticipant  = New(ErrCodeNotParticipant, "user is not a participant of this session")
	ErrEmptyContent    = New(ErrCodeEmptyContent, "message content is empty")
	ErrConflict        = New(ErrCodeConflict, "concurrent update conflict")
	ErrSessionNotFound = New(ErrCodeNotFound, "session not found")
	ErrMessageNotFound = New(ErrCodeNotFound, "message not found")
)

// InvalidInput builds a validation error with the given message.
func InvalidInput(message string) *AppError {
	return New(ErrCodeValidation, message)
}
