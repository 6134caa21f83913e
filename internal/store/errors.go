// Package store defines persistence-facing errors and the interfaces the
// store uses to notify downstream consumers without depending on them.
package store

import "fmt"

// Error is a persistence error with a stable kind.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Kind classifies persistence errors.
type Kind int

// Error kinds.
const (
	KindNotFound Kind = iota + 1
	KindAlreadyExists
	KindConflict
	KindInvalidInput
)

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Is matches errors of the same kind, so sentinel comparisons work through
// wrapping.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	return ok && e.Kind == t.Kind
}

// WithMessage returns a new error with a custom message.
func (e *Error) WithMessage(msg string) *Error {
	return &Error{Kind: e.Kind, Message: msg, Err: e.Err}
}

// WithCause wraps an underlying error.
func (e *Error) WithCause(err error) *Error {
	return &Error{Kind: e.Kind, Message: e.Message, Err: err}
}

// Sentinel errors.
var (
	ErrNotFound = &Error{
		Kind:    KindNotFound,
		Message: "resource not found",
	}

	ErrAlreadyExists = &Error{
		Kind:    KindAlreadyExists,
		Message: "resource already exists",
	}

	// ErrConflict signals an optimistic-concurrency failure: another writer
	// changed the row between read and write. Callers retry the whole
	// operation for the affected entity.
	ErrConflict = &Error{
		Kind:    KindConflict,
		Message: "concurrent modification",
	}

	ErrInvalidInput = &Error{
		Kind:    KindInvalidInput,
		Message: "invalid input",
	}
)
