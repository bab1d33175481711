package cellcore

import "fmt"

// ErrKind identifies one of the ABI error kinds a hypercall can fail with
// (spec §7). Each maps to a negative return code in the hypercall ABI
// (see abi.go).
type ErrKind int

const (
	// ErrNone is the zero value; Error never carries it.
	ErrNone ErrKind = iota
	ErrPermissionDenied
	ErrInvalid
	ErrNotFound
	ErrExists
	ErrBusy
	ErrTooBig
	ErrOutOfMemory
)

func (k ErrKind) String() string {
	switch k {
	case ErrPermissionDenied:
		return "permission_denied"
	case ErrInvalid:
		return "invalid"
	case ErrNotFound:
		return "not_found"
	case ErrExists:
		return "exists"
	case ErrBusy:
		return "busy"
	case ErrTooBig:
		return "too_big"
	case ErrOutOfMemory:
		return "out_of_memory"
	}
	return "none"
}

// Error is the typed error returned by every lifecycle operation. Grounded
// on the teacher's string-prefixed sentinel errors (vmNotFound, vmNotKVM,
// isVMNotFound in minimega/vm.go), but using a typed Kind instead of a
// string-prefix convention so callers can match with errors.Is.
type Error struct {
	Kind ErrKind
	Msg  string
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Msg)
}

// Is reports whether target is a *Error with the same Kind, so that
// errors.Is(err, &Error{Kind: ErrNotFound}) style matching works even when
// err has been wrapped with fmt.Errorf("...: %w", err).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

func newErr(kind ErrKind, format string, args ...interface{}) *Error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// KindOf extracts the ErrKind carried by err, or ErrNone if err is nil or
// not a *Error.
func KindOf(err error) ErrKind {
	e, ok := err.(*Error)
	if !ok {
		return ErrNone
	}
	return e.Kind
}
