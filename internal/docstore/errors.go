package docstore

import (
	"errors"
	"fmt"
)

// Kind classifies a store failure. The zero value is KindUnknown,
// which is treated as transient and therefore retryable.
type Kind int

const (
	KindUnknown Kind = iota
	KindNotFound
	KindPermissionDenied
	KindAlreadyExists
	KindPreconditionFailed
	KindOutOfRange
	KindUnauthenticated
	KindInvalidArgument
	KindUnavailable
)

// kindNames doubles as the canonical wire-code table. Drivers report
// failures using these string codes; everything else maps to KindUnknown.
var kindNames = map[Kind]string{
	KindUnknown:            "unknown",
	KindNotFound:           "not-found",
	KindPermissionDenied:   "permission-denied",
	KindAlreadyExists:      "already-exists",
	KindPreconditionFailed: "failed-precondition",
	KindOutOfRange:         "out-of-range",
	KindUnauthenticated:    "unauthenticated",
	KindInvalidArgument:    "invalid-argument",
	KindUnavailable:        "unavailable",
}

var codeKinds = func() map[string]Kind {
	m := make(map[string]Kind, len(kindNames))
	for k, code := range kindNames {
		m[code] = k
	}
	return m
}()

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "unknown"
}

// Retryable reports whether an operation failing with this kind may be
// attempted again. The non-retryable set is closed: permission-denied,
// not-found, already-exists, failed-precondition, out-of-range,
// unauthenticated and invalid-argument always fail fast.
func (k Kind) Retryable() bool {
	switch k {
	case KindNotFound, KindPermissionDenied, KindAlreadyExists,
		KindPreconditionFailed, KindOutOfRange, KindUnauthenticated,
		KindInvalidArgument:
		return false
	default:
		return true
	}
}

// KindForCode maps an underlying store code to its Kind.
func KindForCode(code string) Kind {
	if k, ok := codeKinds[code]; ok {
		return k
	}
	return KindUnknown
}

// Error is a classified store failure.
type Error struct {
	Kind Kind
	Op   string
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("%s: %s", e.Op, e.Kind)
	}
	return fmt.Sprintf("%s: %s: %v", e.Op, e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

// NewError wraps err with an operation name and kind.
func NewError(op string, kind Kind, err error) *Error {
	return &Error{Kind: kind, Op: op, Err: err}
}

// Errorf builds a classified failure from a format string.
func Errorf(op string, kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Op: op, Err: fmt.Errorf(format, args...)}
}

// KindOf extracts the Kind from err, walking the wrap chain.
// Unclassified errors are KindUnknown.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}
