package pollsched

import (
	"errors"
	"fmt"
	"syscall"
)

// Error is the scheduler's structured error type, built with NewError,
// NewRegistrationError or WrapError. The backends in this module do not
// return it themselves: Register returns readiness.ErrSlotTableFull or a
// plain error, and the dispatcher wraps wait failures in dispatch.WaitError.
type Error struct {
	Op       string    // operation that failed, e.g. "register", "wait"
	Class    Class     // class the operation concerned, if any
	Waitable int64     // fd/handle/socket, 0 if not applicable
	Code     ErrorCode // high-level category, from the §7 taxonomy
	Errno    syscall.Errno
	Msg      string
	Inner    error
}

func (e *Error) Error() string {
	var parts []string
	if e.Op != "" {
		parts = append(parts, fmt.Sprintf("op=%s", e.Op))
	}
	if e.Waitable != 0 {
		parts = append(parts, fmt.Sprintf("waitable=%d", e.Waitable))
	}
	if e.Errno != 0 {
		parts = append(parts, fmt.Sprintf("errno=%d", e.Errno))
	}

	msg := e.Msg
	if msg == "" {
		msg = string(e.Code)
	}
	if len(parts) > 0 {
		return fmt.Sprintf("pollsched: %s (%s)", msg, parts[0])
	}
	return fmt.Sprintf("pollsched: %s", msg)
}

// Unwrap returns the wrapped error for errors.Is/As support.
func (e *Error) Unwrap() error { return e.Inner }

// Is supports errors.Is comparison by error code.
func (e *Error) Is(target error) bool {
	te, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Code == te.Code
}

// ErrorCode categorizes a returned error per spec.md §7's taxonomy. Only
// the resource-exhaustion and platform-transient/fatal branches of that
// taxonomy ever surface as a returned error; programmer-error conditions go
// through logging.PanicHook instead (see facade.go).
type ErrorCode string

const (
	// ErrCodeInsufficientResources: a per-class slot table was full;
	// register rolled back and returned StatusInsufficientResources.
	ErrCodeInsufficientResources ErrorCode = "insufficient resources"
	// ErrCodeInvalidRegistration: a register call's parameters were
	// malformed in a way recoverable without a panic (e.g. a zero
	// function). Reserved for callers that want a returned error instead
	// of the panic hook; the default facade still panics per §7.
	ErrCodeInvalidRegistration ErrorCode = "invalid registration"
	// ErrCodeUnsupportedType: an entry's EventType wasn't one of
	// TIMER/DEVICE/MAIN_LOOP.
	ErrCodeUnsupportedType ErrorCode = "unsupported event type"
	// ErrCodeConflictingWaiter: a second reader or writer was registered
	// for an already-occupied slot half (PollBackend only; spec.md §9
	// bug-smell (a)).
	ErrCodeConflictingWaiter ErrorCode = "conflicting waiter"
	// ErrCodeNotInitialized: an operation was attempted before Init*.
	ErrCodeNotInitialized ErrorCode = "scheduler not initialized"
	// ErrCodeAlreadyInitialized: Init* was called twice.
	ErrCodeAlreadyInitialized ErrorCode = "scheduler already initialized"
	// ErrCodePlatformTransient: the wait primitive reported "invalid
	// handle" or similar, usually a race between unregister and wait;
	// logged and the pass continues.
	ErrCodePlatformTransient ErrorCode = "platform transient error"
	// ErrCodePlatformFatal: the wait primitive returned an unexpected
	// error; a diagnostic dump precedes abort.
	ErrCodePlatformFatal ErrorCode = "platform fatal error"
)

// NewError creates a structured error with no errno or wrapped cause.
func NewError(op string, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Code: code, Msg: msg}
}

// NewErrorWithErrno creates a structured error carrying a kernel errno.
func NewErrorWithErrno(op string, code ErrorCode, errno syscall.Errno) *Error {
	return &Error{Op: op, Code: code, Errno: errno, Msg: errno.Error()}
}

// NewRegistrationError creates a structured error for a failed register
// call, carrying the class and waitable it concerned.
func NewRegistrationError(op string, class Class, waitable int64, code ErrorCode, msg string) *Error {
	return &Error{Op: op, Class: class, Waitable: waitable, Code: code, Msg: msg}
}

// WrapError wraps an arbitrary error (typically from a backend's wait
// primitive) with scheduler context, mapping known syscall errnos to the
// §7 taxonomy.
func WrapError(op string, inner error) *Error {
	if inner == nil {
		return nil
	}
	if pe, ok := inner.(*Error); ok {
		return &Error{Op: op, Class: pe.Class, Waitable: pe.Waitable, Code: pe.Code, Errno: pe.Errno, Msg: pe.Msg, Inner: pe.Inner}
	}
	if errno, ok := inner.(syscall.Errno); ok {
		return &Error{Op: op, Code: mapErrnoToCode(errno), Errno: errno, Msg: errno.Error(), Inner: inner}
	}
	return &Error{Op: op, Code: ErrCodePlatformFatal, Msg: inner.Error(), Inner: inner}
}

// mapErrnoToCode maps a wait-primitive errno to the §7 taxonomy.
// EBADF/ENOENT are the classic "unregister raced the wait primitive"
// shapes and are treated as transient; everything else unrecognized is
// platform-fatal.
func mapErrnoToCode(errno syscall.Errno) ErrorCode {
	switch errno {
	case syscall.EBADF, syscall.ENOENT:
		return ErrCodePlatformTransient
	case syscall.EINVAL:
		return ErrCodeInvalidRegistration
	case syscall.ENOMEM:
		return ErrCodeInsufficientResources
	default:
		return ErrCodePlatformFatal
	}
}

// IsCode reports whether err is a *Error carrying code.
func IsCode(err error, code ErrorCode) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Code == code
	}
	return false
}

// IsErrno reports whether err is a *Error carrying errno.
func IsErrno(err error, errno syscall.Errno) bool {
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Errno == errno
	}
	return false
}
