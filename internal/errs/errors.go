// Package errs defines the error taxonomy shared by every transform family.
//
// Each failure carries a Kind. Callers match kinds with errors.Is against the
// package sentinels, or extract the full *Error with errors.As:
//
//	if errors.Is(err, errs.ErrInvalidSize) { ... }
package errs

import (
	"errors"
	"fmt"
)

// Kind classifies a failure.
type Kind int

// Failure kinds.
const (
	KindUnknown Kind = iota
	KindInvalidSize
	KindInvalidType
	KindInvalidParameter
	KindNotSupported
	KindVendor
	KindOutOfMemory
	KindAllocation
)

// Sentinel errors, one per kind.
var (
	// ErrInvalidSize indicates a shape or stride relationship required by a transform does not hold.
	ErrInvalidSize = errors.New("invalid size")

	// ErrInvalidType indicates an element type combination the transform cannot handle.
	ErrInvalidType = errors.New("invalid type")

	// ErrInvalidParameter indicates a flag, provider or argument out of range.
	ErrInvalidParameter = errors.New("invalid parameter")

	// ErrNotSupported indicates a recognized mode the current configuration does not implement.
	ErrNotSupported = errors.New("not supported")

	// ErrVendor indicates the vendor library reported a failure.
	ErrVendor = errors.New("vendor library error")

	// ErrOutOfMemory indicates the allocator could not satisfy a request.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrAllocation indicates a free of an unregistered block or similar bookkeeping failure.
	ErrAllocation = errors.New("allocation error")
)

// String returns the kind name.
func (k Kind) String() string {
	switch k {
	case KindInvalidSize:
		return "InvalidSize"
	case KindInvalidType:
		return "InvalidType"
	case KindInvalidParameter:
		return "InvalidParameter"
	case KindNotSupported:
		return "NotSupported"
	case KindVendor:
		return "Vendor"
	case KindOutOfMemory:
		return "OutOfMemory"
	case KindAllocation:
		return "Allocation"
	default:
		return "Unknown"
	}
}

func (k Kind) sentinel() error {
	switch k {
	case KindInvalidSize:
		return ErrInvalidSize
	case KindInvalidType:
		return ErrInvalidType
	case KindInvalidParameter:
		return ErrInvalidParameter
	case KindNotSupported:
		return ErrNotSupported
	case KindVendor:
		return ErrVendor
	case KindOutOfMemory:
		return ErrOutOfMemory
	case KindAllocation:
		return ErrAllocation
	default:
		return nil
	}
}

// Error is a classified failure raised by an operation.
type Error struct {
	Kind Kind   // Failure class.
	Op   string // Operation that failed, e.g. "fft" or "matmul".
	Msg  string // Human-readable detail.
	Err  error  // Underlying cause, if any.
}

// Error implements the error interface.
func (e *Error) Error() string {
	msg := e.Op
	if msg != "" {
		msg += ": "
	}
	msg += e.Kind.String()
	if e.Msg != "" {
		msg += ": " + e.Msg
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports whether target is the sentinel for e's kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// New creates a classified error with a formatted message.
func New(kind Kind, op, format string, args ...any) error {
	return &Error{Kind: kind, Op: op, Msg: fmt.Sprintf(format, args...)}
}

// Wrap classifies err under kind. A nil err yields nil.
func Wrap(kind Kind, op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Op: op, Err: err}
}

// KindOf returns the kind of the first *Error in err's chain.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindUnknown
}

// Recover converts a recovered panic value into a vendor error.
// Use it in a deferred call at a vendor boundary:
//
//	defer errs.Recover("gemm", &err)
func Recover(op string, err *error) {
	r := recover()
	if r == nil {
		return
	}
	if e, ok := r.(error); ok {
		*err = &Error{Kind: KindVendor, Op: op, Err: e}
		return
	}
	*err = &Error{Kind: KindVendor, Op: op, Msg: fmt.Sprint(r)}
}
