package library

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrNotFound is matched by API errors for missing resources.
	ErrNotFound = errors.New("not found")

	// ErrUnauthorized is matched when the API rejects the session token.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrForbidden is returned when the current role may not perform an action.
	ErrForbidden = errors.New("forbidden")

	// ErrInFlight is returned when the same action is already awaiting the API.
	ErrInFlight = errors.New("request already in progress")

	// ErrBadResponse wraps responses whose shape could not be understood.
	ErrBadResponse = errors.New("invalid response format from server")
)

// ValidationError is a local rejection raised before any network call.
type ValidationError struct {
	Fields  []string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return "Please fill in all required fields: " + strings.Join(e.Fields, ", ")
}

// AuthError is a failed login or registration.
type AuthError struct {
	Message string
	Err     error
}

func (e *AuthError) Error() string { return e.Message }
func (e *AuthError) Unwrap() error { return e.Err }

// APIError is a non-2xx response carrying the server's {message} payload.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("request failed with status %d", e.StatusCode)
	}
	return e.Message
}

// Is maps well-known status codes onto the package sentinels.
func (e *APIError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.StatusCode == http.StatusNotFound
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	case ErrForbidden:
		return e.StatusCode == http.StatusForbidden
	}
	return false
}

// ErrorMessage returns the user-facing text for err, falling back to def.
func ErrorMessage(err error, def string) string {
	if err == nil {
		return ""
	}
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	if msg := err.Error(); msg != "" {
		return msg
	}
	return def
}
