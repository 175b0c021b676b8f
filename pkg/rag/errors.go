package rag

import (
	"errors"
	"fmt"
)

// Error kinds. Every failure returned by Service wraps exactly one of them.
var (
	ErrConfiguration = errors.New("configuration error")
	ErrSource        = errors.New("source error")
	ErrIndexNotFound = errors.New("invalid directory")
	ErrProvider      = errors.New("provider error")
	ErrValidation    = errors.New("validation error")
)

// Error carries the kind of failure, the operation that produced it and the
// underlying cause. errors.Is matches both Kind and Err.
type Error struct {
	Kind error
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

// Wrap tags err with kind. A nil err stays nil; an err that already carries
// a kind is returned as is so the innermost classification wins.
func Wrap(kind error, op string, err error) error {
	if err == nil {
		return nil
	}
	var re *Error
	if errors.As(err, &re) {
		return err
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds an *Error of the given kind from a formatted message.
func Errorf(kind error, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf reports which kind err belongs to, or nil if it is unclassified.
func KindOf(err error) error {
	for _, k := range []error{ErrValidation, ErrIndexNotFound, ErrSource, ErrConfiguration, ErrProvider} {
		if errors.Is(err, k) {
			return k
		}
	}
	return nil
}
