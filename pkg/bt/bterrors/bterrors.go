// Package bterrors defines the error chain the behavior-tree runtime and its
// surrounding services (scheduler, planner, VLA) raise, in the same
// message+cause+kind shape used throughout this codebase's other error
// chains: a stable Kind for programmatic dispatch, a human message, and an
// optional wrapped cause reachable via errors.Unwrap/Is/As.
package bterrors

import "fmt"

// Kind classifies a BTError for callers that need to branch on error
// category (e.g. to decide whether a failure is retryable).
type Kind string

const (
	KindCompile   Kind = "compile"
	KindHost      Kind = "host"
	KindCallback  Kind = "callback"
	KindScheduler Kind = "scheduler"
	KindPlanner   Kind = "planner"
	KindVLA       Kind = "vla"
)

// BTError is the error type returned by every package in this module.
type BTError struct {
	Kind    Kind
	Message string
	Cause   error
}

// New builds a BTError with no wrapped cause.
func New(kind Kind, message string) *BTError {
	return &BTError{Kind: kind, Message: message}
}

// NewWithCause builds a BTError wrapping an underlying cause.
func NewWithCause(kind Kind, message string, cause error) *BTError {
	return &BTError{Kind: kind, Message: message, Cause: cause}
}

// Errorf builds a BTError with a formatted message.
func Errorf(kind Kind, format string, args ...any) *BTError {
	return &BTError{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// FromError wraps an arbitrary error as a BTError of the given kind, unless
// it already is one, in which case it is returned unchanged.
func FromError(kind Kind, err error) *BTError {
	if err == nil {
		return nil
	}
	var existing *BTError
	if ok := asBTError(err, &existing); ok {
		return existing
	}
	return &BTError{Kind: kind, Message: err.Error(), Cause: err}
}

func asBTError(err error, target **BTError) bool {
	for err != nil {
		if be, ok := err.(*BTError); ok {
			*target = be
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

func (e *BTError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap exposes the wrapped cause to errors.Is/errors.As.
func (e *BTError) Unwrap() error { return e.Cause }

// Is supports errors.Is(err, bterrors.New(kind, "")) style kind checks when
// the sentinel's Message is empty; otherwise both Kind and Message must
// match.
func (e *BTError) Is(target error) bool {
	other, ok := target.(*BTError)
	if !ok {
		return false
	}
	if other.Message == "" {
		return e.Kind == other.Kind
	}
	return e.Kind == other.Kind && e.Message == other.Message
}
