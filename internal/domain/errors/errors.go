// Package errors provides domain-specific error types.
package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// Error codes for domain errors.
const (
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidation         = "VALIDATION_ERROR"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInternal           = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// DomainError is an error that knows how it is presented over HTTP.
type DomainError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    string `json:"details,omitempty"`
	HTTPStatus int    `json:"-"`
	Err        error  `json:"-"`
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Unwrap returns the underlying error.
func (e *DomainError) Unwrap() error {
	return e.Err
}

func newError(code string, status int, message, details string, err error) *DomainError {
	return &DomainError{
		Code:       code,
		Message:    message,
		Details:    details,
		HTTPStatus: status,
		Err:        err,
	}
}

// NewNotFoundError reports a missing resource such as a conversation.
func NewNotFoundError(resource, identifier string) *DomainError {
	return newError(ErrCodeNotFound, http.StatusNotFound, resource+" not found", identifier, nil)
}

// NewValidationError reports a malformed request.
func NewValidationError(message, details string) *DomainError {
	return newError(ErrCodeValidation, http.StatusBadRequest, message, details, nil)
}

// NewUnauthorizedError reports a missing or rejected access token.
func NewUnauthorizedError(message string) *DomainError {
	return newError(ErrCodeUnauthorized, http.StatusUnauthorized, message, "", nil)
}

// NewInternalError wraps err. Its text is exposed as details.
func NewInternalError(message string, err error) *DomainError {
	details := ""
	if err != nil {
		details = err.Error()
	}
	return newError(ErrCodeInternal, http.StatusInternalServerError, message, details, err)
}

// NewServiceUnavailableError reports an unreachable backing dependency.
func NewServiceUnavailableError(service string, err error) *DomainError {
	return newError(ErrCodeServiceUnavailable, http.StatusServiceUnavailable, service+" unavailable", "", err)
}

// GetDomainError extracts the domain error from an error chain.
func GetDomainError(err error) (*DomainError, bool) {
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr, true
	}
	return nil, false
}
