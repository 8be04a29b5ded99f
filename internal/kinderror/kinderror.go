// Package kinderror implements the typed error kinds of §7: each surfaced
// error carries a Kind so callers (and, eventually, the REST boundary this
// module does not implement) can map it to the right status code without
// string-matching error messages.
package kinderror

import (
	"fmt"

	"github.com/pkg/errors"
)

// Kind classifies an error per §7.
type Kind int

const (
	// Internal is the zero value: an unexpected error, logged at error
	// level with full context.
	Internal Kind = iota
	SchemaMismatch
	InvalidQuery
	UnknownField
	WriterShutdown
	BackendError
	PermissionDenied
	NotFound
)

func (k Kind) String() string {
	switch k {
	case SchemaMismatch:
		return "SchemaMismatch"
	case InvalidQuery:
		return "InvalidQuery"
	case UnknownField:
		return "UnknownField"
	case WriterShutdown:
		return "WriterShutdown"
	case BackendError:
		return "BackendError"
	case PermissionDenied:
		return "PermissionDenied"
	case NotFound:
		return "NotFound"
	default:
		return "Internal"
	}
}

// HTTPStatus is the status code the (unimplemented) REST boundary would
// use for each kind, per §7/§4.7. Kept here as the lookup table a future
// HTTP layer consumes, not as an implementation of that layer.
func (k Kind) HTTPStatus() int {
	switch k {
	case InvalidQuery:
		return 400
	case PermissionDenied:
		return 401
	case NotFound:
		return 404
	case WriterShutdown:
		return 503
	case SchemaMismatch, UnknownField, BackendError, Internal:
		return 500
	default:
		return 500
	}
}

// Error is a kinded, wrapped error, constructed with New or Wrap so it
// carries a Kind. Not every error in this module is kinded: some
// constructors (e.g. schema.New, index.New) return plain errors.
type Error struct {
	Kind  Kind
	cause error
}

func New(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// Wrap attaches a message to cause via github.com/pkg/errors before
// kinding it, preserving the original error in the chain for %+v
// stack-trace formatting.
func Wrap(kind Kind, cause error, msg string) *Error {
	return &Error{Kind: kind, cause: errors.Wrap(cause, msg)}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error {
	return e.cause
}

// Is reports whether err (or anything it wraps) is a *Error of kind.
func Is(err error, kind Kind) bool {
	var ke *Error
	if errors.As(err, &ke) {
		return ke.Kind == kind
	}
	return false
}
