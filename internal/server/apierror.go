package server

import (
	"encoding/json"
	"errors"
	"net/http"
)

// NotAuthorisedMessage is the only message a denied caller ever sees.
const NotAuthorisedMessage = "You are not authorised to access this resource."

// APIError is a structured error response. It is written as {"error": {...}}.
type APIError struct {
	Status  int    `json:"-"`
	Name    string `json:"name"`
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	// Validation carries per-field messages for validation failures.
	Validation map[string]string `json:"validation,omitempty"`
}

// Error implements the error interface.
func (e *APIError) Error() string {
	return e.Message
}

// --- Error Constructors ---

// NewNotAuthorisedError is the fixed denial response of the proxy.
func NewNotAuthorisedError() *APIError {
	return &APIError{
		Status:  http.StatusUnauthorized,
		Name:    "NotAuthorised",
		Code:    http.StatusUnauthorized,
		Message: NotAuthorisedMessage,
	}
}

// NewBadRequestError reports malformed parameters.
func NewBadRequestError(message string) *APIError {
	return &APIError{
		Status:  http.StatusBadRequest,
		Name:    "BadRequest",
		Code:    http.StatusBadRequest,
		Message: message,
	}
}

// NewValidationError reports a request body that failed validation.
func NewValidationError(fields map[string]string) *APIError {
	return &APIError{
		Status:     http.StatusBadRequest,
		Name:       "ValidationError",
		Code:       http.StatusBadRequest,
		Validation: fields,
	}
}

// NewMethodNotAllowedError rejects verbs a route does not handle.
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Status:  http.StatusMethodNotAllowed,
		Name:    "MethodNotAllowed",
		Code:    http.StatusMethodNotAllowed,
		Message: "Method not allowed",
	}
}

// WriteJSON writes data as a JSON response with the given status.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// WriteError writes err. An *APIError keeps its status and envelope; anything
// else becomes a bare 500 so internals never reach the caller.
func WriteError(w http.ResponseWriter, err error) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		WriteJSON(w, apiErr.Status, map[string]*APIError{"error": apiErr})
		return
	}
	WriteJSON(w, http.StatusInternalServerError, map[string]bool{"ok": false})
}
