package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrValidation  = errors.New("Validation Error")
	ErrExpired     = errors.New("expired")
	ErrCapacity    = errors.New("capacity exhausted")
	ErrUnavailable = errors.New("unavailable")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
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

// Expired marks a resource that exists but is past its expiry timestamp.
// HTTP handlers map this to 410 Gone, distinct from 404.
func Expired(resource, id string) *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: fmt.Sprintf("%s %s has expired", resource, id),
	}
}

// Capacity indicates the execution concurrency cap is exhausted and the
// request could not get a sandbox slot within the queue wait window.
func Capacity(message string) *AppError {
	return &AppError{
		Err:     ErrCapacity,
		Message: message,
	}
}

// Unavailable wraps a dependency failure (sandbox provisioning, remote
// execution service) that is not the caller's fault.
func Unavailable(message string) *AppError {
	return &AppError{
		Err:     ErrUnavailable,
		Message: message,
	}
}
