package api

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError represents an error response returned to API clients.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	HTTPStatus int    `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("API Error: %s - %s", e.Code, e.Message)
}

// WriteJSON writes the error response as the standard JSON envelope.
func (e *APIError) WriteJSON(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.HTTPStatus)

	type errorResponse struct {
		Error APIError `json:"error"`
	}
	if err := json.NewEncoder(w).Encode(errorResponse{Error: *e}); err != nil {
		// Fallback to plain text if JSON encoding fails
		http.Error(w, e.Message, e.HTTPStatus)
	}
}

// badRequest builds a 400 error with the given code and message.
func badRequest(code, format string, args ...interface{}) *APIError {
	return &APIError{
		Code:       code,
		Message:    fmt.Sprintf(format, args...),
		HTTPStatus: http.StatusBadRequest,
	}
}

// Predefined API errors
var (
	ErrInvalidRequest = &APIError{
		Code:       "invalid_request",
		Message:    "Invalid request body",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrMissingBatchCode = &APIError{
		Code:       "missing_batch_code",
		Message:    "batch_code is required",
		HTTPStatus: http.StatusBadRequest,
	}

	ErrPatternNotFound = &APIError{
		Code:       "not_found",
		Message:    "The requested pattern does not exist",
		HTTPStatus: http.StatusNotFound,
	}

	ErrStoreDisabled = &APIError{
		Code:       "store_disabled",
		Message:    "Pattern storage is not enabled on this gateway",
		HTTPStatus: http.StatusNotImplemented,
	}

	ErrInternal = &APIError{
		Code:       "internal_error",
		Message:    "We encountered an internal error. Please try again",
		HTTPStatus: http.StatusInternalServerError,
	}
)
