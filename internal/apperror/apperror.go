// Package apperror defines the error taxonomy shared by the services and the
// HTTP layer.
//
// Services never return raw transport or storage errors to their callers.
// They translate them into one of the kinds below, and the handler package
// maps each kind to an HTTP status with errors.Is.
//
// SUBTYPES:
// Some sentinels wrap others so that errors.Is matches both the specific and
// the general kind:
//
//	ErrInvalidAddress → ErrValidation
//	ErrUpstreamAuth   → ErrAuthentication
package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrValidation     = errors.New("Validation Error")
	ErrAuthentication = errors.New("authentication failed")
	ErrPersistence    = errors.New("persistence failed")

	// ErrInvalidAddress is a validation error for malformed blockchain addresses.
	ErrInvalidAddress = fmt.Errorf("invalid address format: %w", ErrValidation)

	// ErrUpstreamAuth means the identity provider rejected the request itself
	// (for example an expired authorization code), as opposed to a transport failure.
	ErrUpstreamAuth = fmt.Errorf("upstream rejected authorization: %w", ErrAuthentication)
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message, safe to show to clients
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

// InvalidAddress reports an address that is present but not of the form
// "0x" followed by 40 hex characters.
func InvalidAddress(field, message string) *AppError {
	return &AppError{
		Err:     ErrInvalidAddress,
		Message: message,
		Field:   field,
	}
}

// AuthenticationFailed is returned for any failure talking to the identity
// provider. The message is fixed so nothing from the underlying error
// (URLs, request bodies, credentials) reaches the client.
func AuthenticationFailed() *AppError {
	return &AppError{
		Err:     ErrAuthentication,
		Message: "Authentication error",
	}
}

// UpstreamAuth carries the provider's own description of why it rejected the
// authorization code.
func UpstreamAuth(description string) *AppError {
	msg := "Authentication error"
	if description != "" {
		msg = fmt.Sprintf("Authentication error: %s", description)
	}
	return &AppError{
		Err:     ErrUpstreamAuth,
		Message: msg,
	}
}

// PersistenceFailed reports that the user store could not complete an operation.
func PersistenceFailed(message string) *AppError {
	return &AppError{
		Err:     ErrPersistence,
		Message: message,
	}
}
