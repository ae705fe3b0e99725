// Package fault classifies failures so the handler layer can map them to
// client-visible status codes without string matching.
//
// Adapters never let an engine or filesystem failure escape unclassified:
// every error crossing an adapter boundary is a *Error carrying a Kind.
package fault

import (
	"errors"
	"fmt"
)

// Kind partitions failures into the categories the API cares about.
type Kind int

const (
	// KindUnknown is the zero value for errors that were never classified.
	KindUnknown Kind = iota

	// KindValidation marks client-fault input rejections (4xx).
	KindValidation

	// KindNotFound marks lookups of resources that do not exist (404).
	KindNotFound

	// KindEngine marks inference engine failures, including empty output (5xx).
	KindEngine

	// KindStorage marks filesystem read/write failures (5xx).
	KindStorage
)

// String returns the kind identifier used in logs.
func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindNotFound:
		return "not_found"
	case KindEngine:
		return "engine"
	case KindStorage:
		return "storage"
	default:
		return "unknown"
	}
}

// Error is a classified failure. It wraps an optional cause.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return e.Msg + ": " + e.Err.Error()
	}
	return e.Msg
}

// Unwrap exposes the cause to errors.Is / errors.As.
func (e *Error) Unwrap() error { return e.Err }

// New creates a classified error with a formatted message.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies an existing error with a context message.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the Kind from an error chain. Unclassified errors
// report KindUnknown and should be treated as server faults.
func KindOf(err error) Kind {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Kind
	}
	return KindUnknown
}
