package ingest

import (
	"errors"
	"fmt"
)

var (
	ErrValidation  = errors.New("validation failed")
	ErrStorage     = errors.New("image storage failed")
	ErrPersistence = errors.New("issue persistence failed")
)

type Kind int

const (
	KindValidation Kind = iota + 1
	KindStorage
	KindPersistence
)

func (k Kind) String() string {
	switch k {
	case KindValidation:
		return "validation"
	case KindStorage:
		return "storage"
	case KindPersistence:
		return "persistence"
	default:
		return "unknown"
	}
}

// Error terminates a submission. It matches the sentinel of its kind and the
// underlying cause with errors.Is.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: %v", e.Op, e.Err)
}

func (e *Error) Unwrap() []error {
	return []error{e.sentinel(), e.Err}
}

func (e *Error) sentinel() error {
	switch e.Kind {
	case KindValidation:
		return ErrValidation
	case KindStorage:
		return ErrStorage
	default:
		return ErrPersistence
	}
}

func validationError(format string, args ...any) *Error {
	return &Error{Kind: KindValidation, Op: "validate submission", Err: fmt.Errorf(format, args...)}
}
