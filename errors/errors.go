// Package errors provides the kernel-wide error taxonomy used by every
// subsystem that eventually surfaces a result across the syscall
// boundary (spec §7). All errors support errors.Is/errors.As.
package errors

import (
	"errors"
	"fmt"
)

// Kind classifies a kernel error into one of the stable taxa a
// SyscallResult can carry.
type Kind int

const (
	// KindPermissionDenied means a sandbox/capability check rejected the
	// request. Never recovered.
	KindPermissionDenied Kind = iota
	// KindCapacityExceeded means a memory/FD/queue/pipe/shm limit was hit.
	KindCapacityExceeded
	// KindWouldBlock means a non-blocking attempt found no data/space.
	// Handlers retry this internally under a timeout; it must never
	// escape to the syscall boundary raw.
	KindWouldBlock
	// KindTimeout means a blocking operation exceeded its timeout policy.
	KindTimeout
	// KindNotFound means a pid/pipe/queue/shm/fd id did not resolve.
	KindNotFound
	// KindInvalidArgument means a bad offset, flag, or parameter.
	KindInvalidArgument
	// KindClosed means the resource (pipe, queue) is closed.
	KindClosed
	// KindInternal means a panic or poisoned lock; the handler gave up
	// rather than continue with corrupted state.
	KindInternal
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindCapacityExceeded:
		return "capacity_exceeded"
	case KindWouldBlock:
		return "would_block"
	case KindTimeout:
		return "timeout"
	case KindNotFound:
		return "not_found"
	case KindInvalidArgument:
		return "invalid_argument"
	case KindClosed:
		return "closed"
	case KindInternal:
		return "internal_error"
	default:
		return "unknown"
	}
}

// KernelError is the concrete error type threaded through every
// subsystem. Op names the failing operation (e.g. "pipe.write"),
// Resource optionally identifies the resource involved (a pid, a pipe
// id rendered as a string, a path).
type KernelError struct {
	Kind     Kind
	Op       string
	Resource string
	Detail   string
	Err      error
}

func (e *KernelError) Error() string {
	if e == nil {
		return "<nil>"
	}
	msg := ""
	if e.Op != "" {
		msg += e.Op + ": "
	}
	if e.Resource != "" {
		msg += e.Resource + ": "
	}
	if e.Detail != "" {
		msg += e.Detail
	} else {
		msg += e.Kind.String()
	}
	if e.Err != nil {
		msg += fmt.Sprintf(": %v", e.Err)
	}
	return msg
}

func (e *KernelError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Err
}

// Is matches another *KernelError with the same Kind, letting callers
// write errors.Is(err, errors.New(KindNotFound, "", "")).
func (e *KernelError) Is(target error) bool {
	if e == nil {
		return target == nil
	}
	t, ok := target.(*KernelError)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// New builds a KernelError carrying no underlying cause.
func New(kind Kind, op, detail string) *KernelError {
	return &KernelError{Kind: kind, Op: op, Detail: detail}
}

// Wrap attaches kernel classification to an arbitrary error.
func Wrap(err error, kind Kind, op string) *KernelError {
	if err == nil {
		return nil
	}
	return &KernelError{Kind: kind, Op: op, Err: err}
}

// WithResource returns a copy of e annotated with a resource identity.
func (e *KernelError) WithResource(resource string) *KernelError {
	if e == nil {
		return nil
	}
	cp := *e
	cp.Resource = resource
	return &cp
}

// KindOf extracts the Kind of err, defaulting to KindInternal for any
// error that was never classified (a programmer error somewhere).
func KindOf(err error) Kind {
	var ke *KernelError
	if errors.As(err, &ke) {
		return ke.Kind
	}
	return KindInternal
}

// Sentinel constructors mirroring the common taxa so call sites read
// naturally: errors.NotFound("pipe", "123").
func NotFound(op, detail string) *KernelError {
	return New(KindNotFound, op, detail)
}

func PermissionDenied(op, detail string) *KernelError {
	return New(KindPermissionDenied, op, detail)
}

func CapacityExceeded(op, detail string) *KernelError {
	return New(KindCapacityExceeded, op, detail)
}

func InvalidArgument(op, detail string) *KernelError {
	return New(KindInvalidArgument, op, detail)
}

func Closed(op, detail string) *KernelError {
	return New(KindClosed, op, detail)
}

func WouldBlock(op, detail string) *KernelError {
	return New(KindWouldBlock, op, detail)
}

func Timeout(op, detail string) *KernelError {
	return New(KindTimeout, op, detail)
}

func Internal(op, detail string) *KernelError {
	return New(KindInternal, op, detail)
}

// Is re-exports the standard library helper so call sites only need to
// import this package.
func Is(err, target error) bool { return errors.Is(err, target) }

// As re-exports the standard library helper so call sites only need to
// import this package.
func As(err error, target interface{}) bool { return errors.As(err, target) }
