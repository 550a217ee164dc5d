// Package apperr defines the storage error taxonomy shared by every backend.
//
// Callers decide policy from the kind of failure, never from the message:
// retryable errors (I/O, network, timeouts, lock contention) may be retried by
// the caller, corruption errors must not be, and not-found is ordinary control flow.
package apperr

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("not found")
	ErrConflict      = errors.New("conflict")
	ErrAlreadyExists = errors.New("already exists")
	ErrCorrupted     = errors.New("corrupted")
)

// Kind classifies a storage failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindAlreadyExists
	KindConflict
	KindInvalid
	KindIO
	KindNetwork
	KindTimeout
	KindBusy
	KindCorruption
)

var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindNotFound:      "not_found",
	KindAlreadyExists: "already_exists",
	KindConflict:      "conflict",
	KindInvalid:       "invalid",
	KindIO:            "io",
	KindNetwork:       "network",
	KindTimeout:       "timeout",
	KindBusy:          "busy",
	KindCorruption:    "corruption",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Error is a classified storage error.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

// New returns a classified error for op.
func New(kind Kind, op string, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf is New with a formatted cause.
func Errorf(kind Kind, op, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Kind, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	default:
		return e.Kind.String()
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrNotFound) and friends match classified errors.
func (e *Error) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Kind == KindNotFound
	case ErrConflict:
		return e.Kind == KindConflict
	case ErrAlreadyExists:
		return e.Kind == KindAlreadyExists
	case ErrCorrupted:
		return e.Kind == KindCorruption
	}
	return false
}

// Retryable reports whether the same operation may succeed if attempted again.
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindIO, KindNetwork, KindTimeout, KindBusy, KindConflict:
		return true
	}
	return false
}

// Corrupted reports whether stored data failed an integrity check.
func (e *Error) Corrupted() bool { return e.Kind == KindCorruption }

// NotFound reports whether the addressed record does not exist.
func (e *Error) NotFound() bool { return e.Kind == KindNotFound }

// KindOf extracts the kind of err. Context deadline errors classify as timeouts
// even when no backend wrapped them.
func KindOf(err error) Kind {
	if err == nil {
		return KindUnknown
	}
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Kind
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return KindTimeout
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrConflict):
		return KindConflict
	case errors.Is(err, ErrAlreadyExists):
		return KindAlreadyExists
	case errors.Is(err, ErrCorrupted):
		return KindCorruption
	}
	return KindUnknown
}

// IsRetryable reports whether err is worth retrying. Corruption is never retryable.
func IsRetryable(err error) bool {
	var ae *Error
	if errors.As(err, &ae) {
		return ae.Retryable()
	}
	return KindOf(err) == KindTimeout
}

// IsCorruption reports whether err signals an integrity failure.
func IsCorruption(err error) bool { return KindOf(err) == KindCorruption }

// IsNotFound reports whether err signals a missing record.
func IsNotFound(err error) bool { return KindOf(err) == KindNotFound }

// NotFound is shorthand for a not-found error on op.
func NotFound(op, what string) *Error {
	return Errorf(KindNotFound, op, "%s", what)
}
