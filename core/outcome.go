package core

import (
	"errors"
	"fmt"
)

// Outcome is the result of a call to an external backend. Value is always
// usable; Err tells whether it is the real answer or a fallback.
type Outcome[T any] struct {
	Value T
	Err   error
}

func Success[T any](value T) Outcome[T] {
	return Outcome[T]{Value: value}
}

func Failure[T any](fallback T, err error) Outcome[T] {
	return Outcome[T]{Value: fallback, Err: err}
}

func (o Outcome[T]) Ok() bool {
	return o.Err == nil
}

type FailureKind int

const (
	FailureTransport FailureKind = iota
	FailureStatus
	FailureMalformed
)

func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureStatus:
		return "status"
	case FailureMalformed:
		return "malformed"
	default:
		return "unknown"
	}
}

// BackendError describes why a language model or image backend call failed.
type BackendError struct {
	Backend string
	Kind    FailureKind
	Status  int
	Err     error
}

func (e *BackendError) Error() string {
	if e.Kind == FailureStatus {
		return fmt.Sprintf("%s: %s failure: status %d: %v", e.Backend, e.Kind, e.Status, e.Err)
	}
	return fmt.Sprintf("%s: %s failure: %v", e.Backend, e.Kind, e.Err)
}

func (e *BackendError) Unwrap() error {
	return e.Err
}

// FailureKindOf reports the kind of a backend failure wrapped in err.
func FailureKindOf(err error) (FailureKind, bool) {
	var be *BackendError
	if errors.As(err, &be) {
		return be.Kind, true
	}
	return 0, false
}
