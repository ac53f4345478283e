package api

import (
	"encoding/json"
	stderrors "errors"
	"net/http"

	"github.com/mroshb/campus_match/pkg/errors"
	"github.com/mroshb/campus_match/pkg/logger"
)

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusFor maps an error code onto an HTTP status.
func statusFor(code string) int {
	switch code {
	case errors.ErrCodeValidation, errors.ErrCodeEmptyContent:
		return http.StatusBadRequest
	case errors.ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case errors.ErrCodeNotEligible, errors.ErrCodeNotParticipant:
		return http.StatusForbidden
	case errors.ErrCodeNotFound:
		return http.StatusNotFound
	case errors.ErrCodeConflict:
		return http.StatusConflict
	case errors.ErrCodeSessionTerminal:
		return http.StatusGone
	case errors.ErrCodeRateLimitExceeded:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

// writeError renders err with the status its code maps to. Internal errors
// are logged and their detail withheld.
func writeError(w http.ResponseWriter, err error) {
	code := errors.CodeOf(err)
	status := statusFor(code)

	body := errorBody{Code: code, Message: "internal error"}
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) && status != http.StatusInternalServerError {
		body.Message = appErr.Message
	}
	if status == http.StatusInternalServerError {
		logger.Error("Request failed", "error", err)
	}

	writeJSON(w, status, map[string]errorBody{"error": body})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.InvalidInput("invalid json body")
	}
	return nil
}
