package cases

import (
	"errors"
	"fmt"
)

// Errors returned by a Service. Callers map them to user-facing denials
// with Kind.
var (
	ErrNotFound    = errors.New("case not found")
	ErrNotOwner    = errors.New("case belongs to another user")
	ErrLocked      = errors.New("case can no longer be changed")
	ErrUnavailable = errors.New("case service unavailable")
)

// ErrorKind is the wire name of a case error.
type ErrorKind string

const (
	KindNotFound    ErrorKind = "NOT_FOUND"
	KindNotOwner    ErrorKind = "NOT_OWNER"
	KindLocked      ErrorKind = "LOCKED"
	KindUnavailable ErrorKind = "UNAVAILABLE"
)

// Kind classifies err. Errors from outside this package are reported as
// unavailable; nil has no kind.
func Kind(err error) ErrorKind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrNotFound):
		return KindNotFound
	case errors.Is(err, ErrNotOwner):
		return KindNotOwner
	case errors.Is(err, ErrLocked):
		return KindLocked
	default:
		return KindUnavailable
	}
}

func unavailable(op string, err error) error {
	return fmt.Errorf("%s: %w: %w", op, ErrUnavailable, err)
}
