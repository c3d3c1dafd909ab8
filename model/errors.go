package model

import (
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Standard error codes.
const (
	ErrBadRequest         = "BAD_REQUEST"
	ErrUnauthorized       = "UNAUTHORIZED"
	ErrForbidden          = "FORBIDDEN"
	ErrNotFound           = "NOT_FOUND"
	ErrConflict           = "CONFLICT"
	ErrValidationError    = "VALIDATION_ERROR"
	ErrRateLimited        = "RATE_LIMITED"
	ErrInternalError      = "INTERNAL_ERROR"
	ErrBackendUnavailable = "BACKEND_UNAVAILABLE"
	ErrBackendTimeout     = "BACKEND_TIMEOUT"
	ErrAuthExpired        = "AUTH_EXPIRED"
	ErrNetwork            = "NETWORK_ERROR"
)

// SessionExpiredMessage is shown when credentials are irrecoverable.
const SessionExpiredMessage = "Your session has expired. Please sign in again."

// FieldError describes a field-level validation error. Field is a dot path
// such as "addresses.0.city".
type FieldError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationError is a local, field-scoped error. It never reaches the
// network.
type ValidationError struct {
	Fields []FieldError `json:"details"`
}

// NewValidationError returns a ValidationError with the given details.
func NewValidationError(details []FieldError) *ValidationError {
	return &ValidationError{Fields: details}
}

// NewFieldError returns a ValidationError for a single field.
func NewFieldError(field, code, message string) *ValidationError {
	return &ValidationError{Fields: []FieldError{{Field: field, Code: code, Message: message}}}
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	if len(e.Fields) == 0 {
		return "validation failed"
	}
	parts := make([]string, 0, len(e.Fields))
	for _, f := range e.Fields {
		parts = append(parts, f.Field+": "+f.Message)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Map returns the field errors keyed by path.
func (e *ValidationError) Map() map[string]string {
	m := make(map[string]string, len(e.Fields))
	for _, f := range e.Fields {
		m[f.Field] = f.Message
	}
	return m
}

// Field returns the message reported for path, or "".
func (e *ValidationError) Field(path string) string {
	for _, f := range e.Fields {
		if f.Field == path {
			return f.Message
		}
	}
	return ""
}

// SortFields orders the field errors by path so output is stable.
func (e *ValidationError) SortFields() {
	sort.Slice(e.Fields, func(i, j int) bool { return e.Fields[i].Field < e.Fields[j].Field })
}

// RequestError is a 4xx/5xx response from the backend. BodyMessage holds the
// server supplied message, if any.
type RequestError struct {
	StatusCode  int    `json:"status_code"`
	Code        string `json:"code"`
	Message     string `json:"message"`
	BodyMessage string `json:"body_message,omitempty"`
	Method      string `json:"method,omitempty"`
	Path        string `json:"path,omitempty"`
}

// NewRequestError builds a RequestError from an HTTP status and an optional
// server message.
func NewRequestError(status int, bodyMessage string) *RequestError {
	return &RequestError{
		StatusCode:  status,
		Code:        CodeForStatus(status),
		Message:     http.StatusText(status),
		BodyMessage: bodyMessage,
	}
}

// Error implements the error interface.
func (e *RequestError) Error() string {
	msg := e.Message
	if e.BodyMessage != "" {
		msg = e.BodyMessage
	}
	if e.Method != "" {
		return fmt.Sprintf("%s %s: %d %s: %s", e.Method, e.Path, e.StatusCode, e.Code, msg)
	}
	return fmt.Sprintf("%d %s: %s", e.StatusCode, e.Code, msg)
}

// NetworkError means no response was received.
type NetworkError struct {
	Op  string
	Err error
}

// Error implements the error interface.
func (e *NetworkError) Error() string {
	return fmt.Sprintf("network error during %s: %v", e.Op, e.Err)
}

// Unwrap returns the transport error.
func (e *NetworkError) Unwrap() error { return e.Err }

// AuthExpiredError is a 401 that survived one refresh attempt, or a refresh
// that failed outright. Stored credentials have been cleared.
type AuthExpiredError struct {
	Reason string
	Err    error
}

// Error implements the error interface.
func (e *AuthExpiredError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("authentication expired: %s: %v", e.Reason, e.Err)
	}
	return "authentication expired: " + e.Reason
}

// Unwrap returns the underlying cause.
func (e *AuthExpiredError) Unwrap() error { return e.Err }

// CodeForStatus maps an HTTP status to an error code.
func CodeForStatus(status int) string {
	switch {
	case status == http.StatusBadRequest:
		return ErrBadRequest
	case status == http.StatusUnauthorized:
		return ErrUnauthorized
	case status == http.StatusForbidden:
		return ErrForbidden
	case status == http.StatusNotFound:
		return ErrNotFound
	case status == http.StatusConflict:
		return ErrConflict
	case status == http.StatusUnprocessableEntity:
		return ErrValidationError
	case status == http.StatusTooManyRequests:
		return ErrRateLimited
	case status == http.StatusBadGateway, status == http.StatusServiceUnavailable:
		return ErrBackendUnavailable
	case status == http.StatusGatewayTimeout:
		return ErrBackendTimeout
	case status >= 500:
		return ErrInternalError
	default:
		return ErrBadRequest
	}
}

// MessageFor returns the text shown to the user for a failed operation. An
// expired session wins over any wrapped server message; otherwise the server
// supplied message is used when present, else fallback.
func MessageFor(err error, fallback string) string {
	var authErr *AuthExpiredError
	if errors.As(err, &authErr) {
		return SessionExpiredMessage
	}
	var reqErr *RequestError
	if errors.As(err, &reqErr) && reqErr.BodyMessage != "" {
		return reqErr.BodyMessage
	}
	return fallback
}

// IsNotFound reports whether err is a 404 RequestError.
func IsNotFound(err error) bool {
	var reqErr *RequestError
	return errors.As(err, &reqErr) && reqErr.StatusCode == http.StatusNotFound
}

// IsAuthExpired reports whether err is an AuthExpiredError.
func IsAuthExpired(err error) bool {
	var authErr *AuthExpiredError
	return errors.As(err, &authErr)
}
