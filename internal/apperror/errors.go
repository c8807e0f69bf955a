// Package apperror provides the error type returned by HTTP handlers. An
// AppError carries a status code and a message safe to show to clients; the
// Echo error handler renders it as {"type", "message"} JSON.
//
// Storage errors never reach the client as-is. Handlers either map them with
// FromStore or wrap them with NewInternal.
package apperror

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/kittclouds/kittpages/internal/store"
)

// AppError is a client-safe error with an HTTP status.
type AppError struct {
	// Code is the HTTP status code.
	Code int `json:"-"`

	// Type is a machine-readable classifier such as "not_found".
	Type string `json:"type"`

	// Message is safe to show to the client.
	Message string `json:"message"`

	// Internal is logged, never sent.
	Internal error `json:"-"`
}

func (e *AppError) Error() string {
	if e.Internal != nil {
		return fmt.Sprintf("%s: %s (internal: %v)", e.Type, e.Message, e.Internal)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Internal
}

// NewNotFound creates a 404 error.
func NewNotFound(message string) *AppError {
	return &AppError{Code: http.StatusNotFound, Type: "not_found", Message: message}
}

// NewBadRequest creates a 400 error.
func NewBadRequest(message string) *AppError {
	return &AppError{Code: http.StatusBadRequest, Type: "bad_request", Message: message}
}

// NewConflict creates a 409 error.
func NewConflict(message string) *AppError {
	return &AppError{Code: http.StatusConflict, Type: "conflict", Message: message}
}

// NewValidation creates a 422 error.
func NewValidation(message string) *AppError {
	return &AppError{Code: http.StatusUnprocessableEntity, Type: "validation_error", Message: message}
}

// NewNotImplemented creates a 501 error for features the configured backend
// lacks, such as vector search on MySQL.
func NewNotImplemented(message string) *AppError {
	return &AppError{Code: http.StatusNotImplemented, Type: "not_implemented", Message: message}
}

// NewInternal creates a 500 error. The client only sees a generic message.
func NewInternal(err error) *AppError {
	return &AppError{
		Code:     http.StatusInternalServerError,
		Type:     "internal_error",
		Message:  "An unexpected error occurred. Please try again.",
		Internal: err,
	}
}

// FromStore maps storage sentinels to client errors and wraps anything else
// as internal.
func FromStore(err error, what string) *AppError {
	var appErr *AppError
	switch {
	case err == nil:
		return nil
	case errors.As(err, &appErr):
		return appErr
	case errors.Is(err, store.ErrNotFound):
		e := NewNotFound(what + " not found")
		e.Internal = err
		return e
	case errors.Is(err, store.ErrVectorsUnsupported):
		e := NewNotImplemented("related pages are not available on this database")
		e.Internal = err
		return e
	}
	return NewInternal(err)
}

// SafeMessage returns the client-safe message of err.
func SafeMessage(err error) string {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Message
	}
	return "an unexpected error occurred"
}

// SafeCode returns the status of an AppError, or 500.
func SafeCode(err error) int {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Code
	}
	return http.StatusInternalServerError
}
