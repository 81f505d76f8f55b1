package shared

import (
	"errors"
	"fmt"
)

// ConfigurationError means no usable credential could be resolved.
type ConfigurationError struct {
	Message string
}

func (e *ConfigurationError) Error() string {
	return "configuration error: " + e.Message
}

// AuthError means the backend rejected the credential or lacks permission.
type AuthError struct {
	StatusCode int
	Permission bool // key accepted but not allowed to use the model
	Message    string
}

func (e *AuthError) Error() string {
	if e.Permission {
		return fmt.Sprintf("permission denied (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("invalid credential (status %d): %s", e.StatusCode, e.Message)
}

// TransportError is a network or HTTP failure. StatusCode is 0 when the
// request never got a response.
type TransportError struct {
	StatusCode int
	Message    string
	Cause      error
}

func (e *TransportError) Error() string {
	if e.StatusCode == 0 {
		return "transport error: " + e.Message
	}
	return fmt.Sprintf("transport error (status %d): %s", e.StatusCode, e.Message)
}

func (e *TransportError) Unwrap() error { return e.Cause }

// UnexpectedResponseError is a success response without a text field.
type UnexpectedResponseError struct {
	Message string
}

func (e *UnexpectedResponseError) Error() string {
	return "unexpected response: " + e.Message
}

// ValidationError is a blank or malformed local input, caught before any
// network call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// ErrorKind names the taxonomy bucket of err. It doubles as the Temporal
// application error type.
func ErrorKind(err error) string {
	var (
		cfgErr   *ConfigurationError
		authErr  *AuthError
		trErr    *TransportError
		unexpErr *UnexpectedResponseError
		valErr   *ValidationError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &cfgErr):
		return "ConfigurationError"
	case errors.As(err, &authErr):
		return "AuthError"
	case errors.As(err, &trErr):
		return "TransportError"
	case errors.As(err, &unexpErr):
		return "UnexpectedResponseError"
	case errors.As(err, &valErr):
		return "ValidationError"
	}
	return "Error"
}

// UserMessage converts err into the single inline message shown to the user.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}
	var (
		cfgErr   *ConfigurationError
		authErr  *AuthError
		trErr    *TransportError
		unexpErr *UnexpectedResponseError
		valErr   *ValidationError
	)
	switch {
	case errors.As(err, &cfgErr):
		return cfgErr.Message + " Configure an API key in Settings or set GEMINI_API_KEY."
	case errors.As(err, &authErr):
		if authErr.Permission {
			return "The configured API key is valid, but may not have permission for the specified model."
		}
		return "The configured API key is invalid or expired. Update it in Settings."
	case errors.As(err, &trErr):
		return trErr.Message
	case errors.As(err, &unexpErr):
		return "The model returned an unexpected response. Please try again."
	case errors.As(err, &valErr):
		return valErr.Message
	}
	return err.Error()
}
