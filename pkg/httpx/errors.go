package httpx

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// APIError is the JSON error body every endpoint returns:
//
//	{"error": "invalid_request", "error_description": "..."}
type APIError struct {
	// StatusCode is the HTTP status code for this error
	StatusCode int `json:"-"`

	// Code is a stable machine-readable error code
	Code string `json:"error"`

	// Description is a human-readable description of the error
	Description string `json:"error_description"`

	// RetryAfter, when set, is sent as a Retry-After header in seconds
	RetryAfter int `json:"-"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Description)
}

// WriteError writes this APIError to an HTTP response writer.
func (e *APIError) WriteError(w http.ResponseWriter) {
	NoCache(w)
	if e.RetryAfter > 0 {
		w.Header().Set("Retry-After", fmt.Sprintf("%d", e.RetryAfter))
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(e.StatusCode)
	_ = json.NewEncoder(w).Encode(e)
}

// ErrInvalidRequest is the catch-all for malformed bodies.
var ErrInvalidRequest = &APIError{
	StatusCode:  http.StatusBadRequest,
	Code:        "invalid_request",
	Description: "the request is malformed or missing required parameters",
}

// ErrServerError hides internal failures from clients.
var ErrServerError = &APIError{
	StatusCode:  http.StatusInternalServerError,
	Code:        "server_error",
	Description: "the server encountered an unexpected condition",
}
