package errors

import (
	"fmt"
	"net/http"
)

// APIError is the error envelope returned by the admin API.
type APIError struct {
	HTTPStatus int                    `json:"-"`
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	Type       string                 `json:"type"`
	Details    map[string]interface{} `json:"details,omitempty"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Envelope wraps the error for JSON responses: {"error": {...}}.
func (e *APIError) Envelope() map[string]interface{} {
	return map[string]interface{}{"error": e}
}

func New(httpStatus int, code, errType, message string) *APIError {
	return &APIError{HTTPStatus: httpStatus, Code: code, Type: errType, Message: message}
}

func (e *APIError) WithDetails(details map[string]interface{}) *APIError {
	e.Details = details
	return e
}

func NotFound(message string) *APIError {
	return New(http.StatusNotFound, "not_found", "invalid_request_error", message)
}

func BadRequest(message string) *APIError {
	return New(http.StatusBadRequest, "invalid_request", "invalid_request_error", message)
}

func Conflict(message string) *APIError {
	return New(http.StatusConflict, "conflict", "invalid_request_error", message)
}

func Unavailable(message string) *APIError {
	return New(http.StatusServiceUnavailable, "service_unavailable", "server_error", message)
}

func Internal(message string) *APIError {
	return New(http.StatusInternalServerError, "server_error", "server_error", message)
}
