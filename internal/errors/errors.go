// Package errors provides standardized domain errors with codes for the
// Openshelf catalog core.
//
// Usage:
//
//	// In the clustering engine - return typed errors
//	if !samePWIDs {
//	    return errors.ClusterConsistencyf("works %s and %s have different pwid sets", a.ID, b.ID)
//	}
//
//	// In callers - check with errors.Is
//	if errors.Is(err, errors.ErrDataIncomplete) {
//	    // leave the pool unclustered, retry on next metadata change
//	}
package errors

import (
	"errors"
	"fmt"
)

// Re-export standard library functions for convenience.
var (
	Is     = errors.Is
	As     = errors.As
	Unwrap = errors.Unwrap
	Join   = errors.Join
)

// Code represents a machine-readable error code.
type Code string

// Error codes used throughout the catalog core.
const (
	CodeNotFound      Code = "NOT_FOUND"
	CodeAlreadyExists Code = "ALREADY_EXISTS"
	CodeValidation    Code = "VALIDATION"
	CodeConflict      Code = "CONFLICT"
	CodeInternal      Code = "INTERNAL"

	// CodeDataIncomplete marks a pool that cannot be clustered yet (missing
	// title, author, or pwid). Non-fatal: the pool stays unclustered and is
	// retried whenever its metadata next changes.
	CodeDataIncomplete Code = "DATA_INCOMPLETE"

	// CodeClusterConsistency marks a violated clustering precondition, such
	// as merging works with different pwid sets or pooling a commercial
	// license. Fatal: the operation aborts and upstream data must be fixed.
	CodeClusterConsistency Code = "CLUSTER_CONSISTENCY"

	// CodeExternalService marks a failed call to the classifier or summary
	// evaluator. The step that needed it is skipped for this pass.
	CodeExternalService Code = "EXTERNAL_SERVICE"
)

// Error is a domain error with a code, message, and optional cause.
type Error struct {
	Code    Code   `json:"code"`
	Message string `json:"message"`
	cause   error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.cause)
	}
	return e.Message
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether target matches this error.
// Matches if target is an *Error with the same Code.
func (e *Error) Is(target error) bool {
	var t *Error
	if errors.As(target, &t) {
		return e.Code == t.Code
	}
	return false
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{
		Code:    e.Code,
		Message: e.Message,
		cause:   err,
	}
}

// Sentinel errors for use with errors.Is().
var (
	ErrNotFound           = &Error{Code: CodeNotFound, Message: "not found"}
	ErrAlreadyExists      = &Error{Code: CodeAlreadyExists, Message: "already exists"}
	ErrValidation         = &Error{Code: CodeValidation, Message: "validation error"}
	ErrConflict           = &Error{Code: CodeConflict, Message: "conflict"}
	ErrInternal           = &Error{Code: CodeInternal, Message: "internal error"}
	ErrDataIncomplete     = &Error{Code: CodeDataIncomplete, Message: "data incomplete"}
	ErrClusterConsistency = &Error{Code: CodeClusterConsistency, Message: "cluster consistency violation"}
	ErrExternalService    = &Error{Code: CodeExternalService, Message: "external service failure"}
)

// NotFound creates a not found error.
func NotFound(msg string) *Error {
	return &Error{Code: CodeNotFound, Message: msg}
}

// NotFoundf creates a not found error with formatted message.
func NotFoundf(format string, args ...any) *Error {
	return &Error{Code: CodeNotFound, Message: fmt.Sprintf(format, args...)}
}

// AlreadyExists creates an already exists error.
func AlreadyExists(msg string) *Error {
	return &Error{Code: CodeAlreadyExists, Message: msg}
}

// Validation creates a validation error.
func Validation(msg string) *Error {
	return &Error{Code: CodeValidation, Message: msg}
}

// Validationf creates a validation error with formatted message.
func Validationf(format string, args ...any) *Error {
	return &Error{Code: CodeValidation, Message: fmt.Sprintf(format, args...)}
}

// Conflict creates a conflict error.
func Conflict(msg string) *Error {
	return &Error{Code: CodeConflict, Message: msg}
}

// Internal creates an internal error.
func Internal(msg string) *Error {
	return &Error{Code: CodeInternal, Message: msg}
}

// Internalf creates an internal error with formatted message.
func Internalf(format string, args ...any) *Error {
	return &Error{Code: CodeInternal, Message: fmt.Sprintf(format, args...)}
}

// DataIncomplete creates a data incomplete error.
func DataIncomplete(msg string) *Error {
	return &Error{Code: CodeDataIncomplete, Message: msg}
}

// DataIncompletef creates a data incomplete error with formatted message.
func DataIncompletef(format string, args ...any) *Error {
	return &Error{Code: CodeDataIncomplete, Message: fmt.Sprintf(format, args...)}
}

// ClusterConsistency creates a cluster consistency error.
func ClusterConsistency(msg string) *Error {
	return &Error{Code: CodeClusterConsistency, Message: msg}
}

// ClusterConsistencyf creates a cluster consistency error with formatted message.
func ClusterConsistencyf(format string, args ...any) *Error {
	return &Error{Code: CodeClusterConsistency, Message: fmt.Sprintf(format, args...)}
}

// ExternalService creates an external service error.
func ExternalService(msg string) *Error {
	return &Error{Code: CodeExternalService, Message: msg}
}

// Wrap wraps an error with a code and message.
func Wrap(err error, code Code, msg string) *Error {
	return &Error{Code: code, Message: msg, cause: err}
}

// Wrapf wraps an error with a code and formatted message.
func Wrapf(err error, code Code, format string, args ...any) *Error {
	return &Error{Code: code, Message: fmt.Sprintf(format, args...), cause: err}
}
