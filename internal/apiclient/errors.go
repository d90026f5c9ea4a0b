package apiclient

import (
	"errors"
	"fmt"
	"net/http"

	"taskflow/internal/normalize"
)

// ValidationError is a request rejected for bad input, either by the server
// (4xx) or by the local pre-check (Status 0).
type ValidationError struct {
	Status  int
	Message string
	Fields  map[string]string
}

func (e *ValidationError) Error() string {
	if e.Status == 0 {
		return "validation failed: " + e.Message
	}
	return fmt.Sprintf("validation failed (status %d): %s", e.Status, e.Message)
}

// NotFoundError means the server does not know the referenced id.
type NotFoundError struct {
	ID      string
	Message string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("todo %s not found", e.ID)
}

// AuthError means the credential is missing, invalid or expired. Callers
// should discard the stored session.
type AuthError struct {
	Status  int
	Message string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("unauthorized (status %d): %s", e.Status, e.Message)
}

// RemoteError is a transport failure (Status 0) or a server fault.
type RemoteError struct {
	Status  int
	Message string
	Err     error
}

func (e *RemoteError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("remote call failed: %s", e.Message)
	}
	return fmt.Sprintf("remote call failed (status %d): %s", e.Status, e.Message)
}

func (e *RemoteError) Unwrap() error { return e.Err }

// classify maps a non-2xx response to the error taxonomy.
func classify(status int, id string, body []byte) error {
	msg := normalize.Message(body)
	if msg == "" {
		msg = http.StatusText(status)
	}
	switch {
	case status == http.StatusUnauthorized:
		return &AuthError{Status: status, Message: msg}
	case status == http.StatusNotFound:
		return &NotFoundError{ID: id, Message: msg}
	case status >= 400 && status < 500:
		return &ValidationError{Status: status, Message: msg}
	default:
		return &RemoteError{Status: status, Message: msg}
	}
}

// IsNotFound reports whether err carries a NotFoundError.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf)
}

// IsAuth reports whether err carries an AuthError.
func IsAuth(err error) bool {
	var ae *AuthError
	return errors.As(err, &ae)
}

// UserMessage turns any client error into a short message fit for the user.
// Raw details stay in the error itself for logging.
func UserMessage(err error) string {
	var (
		ve    *ValidationError
		nf    *NotFoundError
		ae    *AuthError
		re    *RemoteError
		shape *normalize.ShapeError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &ve):
		if ve.Message != "" {
			return ve.Message
		}
		return fmt.Sprintf("Request failed (status: %d)", ve.Status)
	case errors.As(err, &nf):
		return "This task no longer exists."
	case errors.As(err, &ae):
		return "Your session has expired, please log in again."
	case errors.As(err, &shape):
		return "Unexpected response from server."
	case errors.As(err, &re):
		if re.Status == 0 {
			return "Network error, please check your connection."
		}
		return fmt.Sprintf("Server error, please try again later. (status: %d)", re.Status)
	default:
		return "Something went wrong, please try again."
	}
}
