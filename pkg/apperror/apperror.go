// Package apperror defines the closed set of application error kinds.
// Handlers communicate every failure through one of these; the client
// branches on Code, so codes and structured fields must survive to the
// response unchanged.
package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

// Code is a machine-readable error kind.
type Code string

const (
	CodeUnauthenticated Code = "UNAUTHENTICATED"
	CodeForbidden       Code = "FORBIDDEN"
	CodeNotFound        Code = "NOT_FOUND"
	CodeValidation      Code = "VALIDATION"
	CodeConflict        Code = "CONFLICT"
	CodeRateLimited     Code = "RATE_LIMITED"
	CodeInternal        Code = "INTERNAL"
)

// Error carries a code plus optional structured fields. All fields except
// Code are optional and only set by the constructor that uses them.
type Error struct {
	Code         Code   `json:"code"`
	Message      string `json:"message,omitempty"`
	Resource     string `json:"resource,omitempty"`
	ID           string `json:"id,omitempty"`
	Field        string `json:"field,omitempty"`
	RequiredRole string `json:"required_role,omitempty"`
	RetryAfter   int    `json:"retry_after,omitempty"`
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return string(e.Code)
}

// HTTPStatus maps the error code to an HTTP status.
func (e *Error) HTTPStatus() int {
	switch e.Code {
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeForbidden:
		return http.StatusForbidden
	case CodeNotFound:
		return http.StatusNotFound
	case CodeValidation:
		return http.StatusBadRequest
	case CodeConflict:
		return http.StatusConflict
	case CodeRateLimited:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// Unauthenticated means no valid identity was presented.
func Unauthenticated() *Error {
	return &Error{Code: CodeUnauthenticated, Message: "not authenticated"}
}

// Forbidden means the identity is valid but the role is insufficient.
// requiredRole may be empty when no single role would have sufficed.
func Forbidden(requiredRole string) *Error {
	return &Error{Code: CodeForbidden, RequiredRole: requiredRole, Message: "not authorized"}
}

// NotFound means the referenced entity does not exist (or is soft-deleted).
func NotFound(resource, id string) *Error {
	return &Error{Code: CodeNotFound, Resource: resource, ID: id, Message: resource + " not found"}
}

// Validation means caller-supplied input is malformed.
func Validation(field, message string) *Error {
	return &Error{Code: CodeValidation, Field: field, Message: message}
}

// Conflict means the operation violates a uniqueness or state invariant.
func Conflict(message string) *Error {
	return &Error{Code: CodeConflict, Message: message}
}

// RateLimited means the caller exceeded a throughput budget.
// retryAfter is in seconds; zero means unknown.
func RateLimited(retryAfter int) *Error {
	msg := "rate limit exceeded"
	if retryAfter > 0 {
		msg = fmt.Sprintf("rate limit exceeded, retry after %d seconds", retryAfter)
	}
	return &Error{Code: CodeRateLimited, RetryAfter: retryAfter, Message: msg}
}

// Internal means an unexpected failure that is not caller-actionable.
func Internal(message string) *Error {
	return &Error{Code: CodeInternal, Message: message}
}

// From returns err as *Error, wrapping unknown errors as INTERNAL so that
// no handler can leak an unclassified failure to the client.
func From(err error) *Error {
	var appErr *Error
	if errors.As(err, &appErr) {
		return appErr
	}
	return &Error{Code: CodeInternal, Message: "internal error"}
}

// IsCode reports whether err is an application error with the given code.
func IsCode(err error, code Code) bool {
	var appErr *Error
	return errors.As(err, &appErr) && appErr.Code == code
}
